package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/SergeiKhy/rentcard-share/internal/models"
	"github.com/SergeiKhy/rentcard-share/internal/repository"
	"go.uber.org/zap"
)

const unknownKey = "unknown"

// AnalyticsService построение и чтение агрегатов аналитики
type AnalyticsService interface {
	// Aggregate пересчитывает бакет из сырых событий и полностью перезаписывает строку агрегата
	Aggregate(ctx context.Context, entity models.EntityRef, granularity models.Granularity, date time.Time) (*models.AnalyticsAggregation, error)
	// AggregateDay пересчитывает все бакеты, содержащие day, для всех сущностей с событиями за этот день
	AggregateDay(ctx context.Context, day time.Time) (int, error)
	List(ctx context.Context, entity models.EntityRef, granularity models.Granularity, from, to time.Time) ([]models.AnalyticsAggregation, error)
}

type analyticsService struct {
	aggRepo repository.AggregationRepository
	logger  *zap.Logger
	opts    options
}

func NewAnalyticsService(aggRepo repository.AggregationRepository, logger *zap.Logger, opts ...Option) AnalyticsService {
	return &analyticsService{
		aggRepo: aggRepo,
		logger:  orNop(logger),
		opts:    buildOptions(opts),
	}
}

func (s *analyticsService) Aggregate(ctx context.Context, entity models.EntityRef, granularity models.Granularity, date time.Time) (*models.AnalyticsAggregation, error) {
	if !entity.Type.Valid() || entity.ID <= 0 {
		return nil, ErrInvalidEntity
	}
	if !granularity.Valid() {
		return nil, ErrInvalidGranularity
	}

	from := granularity.BucketStart(date)
	to := granularity.BucketEnd(from)

	facts, err := s.aggRepo.ListViewFacts(ctx, entity, from, to)
	if err != nil {
		return nil, err
	}
	interests, err := s.aggRepo.CountInterests(ctx, entity, from, to)
	if err != nil {
		return nil, err
	}

	agg := &models.AnalyticsAggregation{
		EntityType:      entity.Type,
		EntityID:        entity.ID,
		AggregationType: granularity,
		Date:            from,
		Metrics:         computeMetrics(facts, interests),
	}

	if err := s.aggRepo.Upsert(ctx, agg); err != nil {
		return nil, err
	}

	s.logger.Debug("Aggregation stored",
		zap.String("entity", entity.String()),
		zap.String("granularity", string(granularity)),
		zap.Time("date", from),
		zap.Int64("views", agg.Metrics.Views),
	)
	return agg, nil
}

func (s *analyticsService) AggregateDay(ctx context.Context, day time.Time) (int, error) {
	from := models.Daily.BucketStart(day)
	entities, err := s.aggRepo.ListActiveEntities(ctx, from, models.Daily.BucketEnd(from))
	if err != nil {
		return 0, err
	}

	var errs []error
	stored := 0
	for _, entity := range entities {
		for _, g := range models.Granularities {
			if ctx.Err() != nil {
				return stored, ctx.Err()
			}
			if _, err := s.Aggregate(ctx, entity, g, from); err != nil {
				errs = append(errs, fmt.Errorf("%s %s: %w", entity, g, err))
				continue
			}
			stored++
		}
	}

	s.logger.Info("Daily aggregation finished",
		zap.Time("day", from),
		zap.Int("entities", len(entities)),
		zap.Int("stored", stored),
		zap.Int("failed", len(errs)),
	)
	return stored, errors.Join(errs...)
}

func (s *analyticsService) List(ctx context.Context, entity models.EntityRef, granularity models.Granularity, from, to time.Time) ([]models.AnalyticsAggregation, error) {
	if !entity.Type.Valid() || entity.ID <= 0 {
		return nil, ErrInvalidEntity
	}
	if !granularity.Valid() {
		return nil, ErrInvalidGranularity
	}
	if !to.After(from) {
		return nil, fmt.Errorf("%w: empty date range", ErrValidation)
	}
	return s.aggRepo.List(ctx, entity, granularity, granularity.BucketStart(from), to)
}

// computeMetrics строит метрики бакета. Результат детерминирован для одного и того же набора фактов.
func computeMetrics(facts []models.EventFact, interests int64) models.AggregationMetrics {
	sources := map[string]int64{}
	devices := map[string]int64{}
	locations := map[string]int64{}

	m := models.AggregationMetrics{Interests: interests}
	for _, f := range facts {
		m.Views++
		if f.IsUnique {
			m.UniqueViews++
		}
		sources[keyOrUnknown(f.Source)]++
		devices[keyOrUnknown(f.DeviceType)]++
		locations[keyOrUnknown(f.Country)]++
	}

	m.ConversionRate = round(float64(interests)/float64(max(m.Views, 1)), 4)
	m.TopSources = breakdown(sources)
	m.DeviceBreakdown = breakdown(devices)
	m.LocationBreakdown = breakdown(locations)
	return m
}

// breakdown сортирует по убыванию количества, затем по ключу; проценты от суммы разбивки
func breakdown(counts map[string]int64) []models.BreakdownEntry {
	entries := make([]models.BreakdownEntry, 0, len(counts))
	for key, count := range counts {
		entries = append(entries, models.BreakdownEntry{Key: key, Count: count})
	}
	return withPercentages(entries)
}

func withPercentages(entries []models.BreakdownEntry) []models.BreakdownEntry {
	var total int64
	for _, e := range entries {
		total += e.Count
	}

	out := make([]models.BreakdownEntry, len(entries))
	for i, e := range entries {
		e.Percentage = 0
		if total > 0 {
			e.Percentage = round(float64(e.Count)*100/float64(total), 2)
		}
		out[i] = e
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func keyOrUnknown(key string) string {
	if key == "" {
		return unknownKey
	}
	return key
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
