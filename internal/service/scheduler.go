package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const jobTimeout = 10 * time.Minute

// Scheduler фоновые задачи: ночная агрегация и повтор outbox
type Scheduler struct {
	cron      *cron.Cron
	analytics AnalyticsService
	processor EventProcessor
	logger    *zap.Logger
	now       func() time.Time
}

func NewScheduler(analytics AnalyticsService, processor EventProcessor, logger *zap.Logger, opts ...Option) *Scheduler {
	o := buildOptions(opts)
	return &Scheduler{
		cron:      cron.New(cron.WithLocation(time.UTC)),
		analytics: analytics,
		processor: processor,
		logger:    orNop(logger),
		now:       o.now,
	}
}

// Register добавляет задачи по cron-выражениям; пустое выражение отключает задачу
func (s *Scheduler) Register(aggregationSpec, replaySpec string) error {
	if aggregationSpec != "" {
		if _, err := s.cron.AddFunc(aggregationSpec, s.RunAggregation); err != nil {
			return fmt.Errorf("failed to schedule aggregation: %w", err)
		}
	}
	if replaySpec != "" {
		if _, err := s.cron.AddFunc(replaySpec, s.RunReplay); err != nil {
			return fmt.Errorf("failed to schedule outbox replay: %w", err)
		}
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop ждёт завершения выполняющихся задач
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunAggregation пересчитывает бакеты за прошедшие UTC сутки
func (s *Scheduler) RunAggregation() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	day := s.now().UTC().AddDate(0, 0, -1)
	if _, err := s.analytics.AggregateDay(ctx, day); err != nil {
		s.logger.Error("Scheduled aggregation failed", zap.Time("day", day), zap.Error(err))
	}
}

func (s *Scheduler) RunReplay() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if _, err := s.processor.ReplayOutbox(ctx); err != nil {
		s.logger.Error("Outbox replay failed", zap.Error(err))
	}
}
