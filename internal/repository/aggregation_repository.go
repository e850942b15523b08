package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/SergeiKhy/rentcard-share/internal/models"
)

type AggregationRepository interface {
	// ListViewFacts читает сырые события сущности в окне [from, to) в порядке записи
	ListViewFacts(ctx context.Context, entity models.EntityRef, from, to time.Time) ([]models.EventFact, error)
	CountInterests(ctx context.Context, entity models.EntityRef, from, to time.Time) (int64, error)
	// ListActiveEntities возвращает сущности, у которых есть события или интересы в окне
	ListActiveEntities(ctx context.Context, from, to time.Time) ([]models.EntityRef, error)
	// Upsert полностью перезаписывает metrics по ключу (entity_type, entity_id, aggregation_type, date)
	Upsert(ctx context.Context, agg *models.AnalyticsAggregation) error
	List(ctx context.Context, entity models.EntityRef, granularity models.Granularity, from, to time.Time) ([]models.AnalyticsAggregation, error)
}

type aggregationRepository struct {
	db *PostgresDB
}

func NewAggregationRepository(db *PostgresDB) AggregationRepository {
	return &aggregationRepository{db: db}
}

// Просмотры арендатора берутся из rentcard_views, для арендодателя и объекта из кликов по их ссылкам
var viewFactQueries = map[models.EntityType]string{
	models.EntityTenant: `
		SELECT source, COALESCE(metadata->'device'->>'type', ''), COALESCE(metadata->'location'->>'country', ''), is_unique
		FROM rentcard_views
		WHERE tenant_id = $1 AND viewed_at >= $2 AND viewed_at < $3
		ORDER BY id`,
	models.EntityLandlord: `
		SELECT c.channel, COALESCE(c.device->>'type', ''), COALESCE(c.location->>'country', ''), c.is_unique
		FROM shortlink_clicks c
		JOIN shortlinks s ON s.id = c.shortlink_id
		WHERE s.landlord_id = $1 AND c.clicked_at >= $2 AND c.clicked_at < $3
		ORDER BY c.id`,
	models.EntityProperty: `
		SELECT c.channel, COALESCE(c.device->>'type', ''), COALESCE(c.location->>'country', ''), c.is_unique
		FROM shortlink_clicks c
		JOIN shortlinks s ON s.id = c.shortlink_id
		WHERE s.property_id = $1 AND c.clicked_at >= $2 AND c.clicked_at < $3
		ORDER BY c.id`,
}

var interestColumnByEntity = map[models.EntityType]string{
	models.EntityTenant:   "tenant_id",
	models.EntityLandlord: "landlord_id",
	models.EntityProperty: "property_id",
}

func (r *aggregationRepository) ListViewFacts(ctx context.Context, entity models.EntityRef, from, to time.Time) ([]models.EventFact, error) {
	query, ok := viewFactQueries[entity.Type]
	if !ok {
		return nil, fmt.Errorf("unknown entity type %q", entity.Type)
	}

	rows, err := r.db.Pool.Query(ctx, query, entity.ID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list view facts: %w", err)
	}
	defer rows.Close()

	facts := []models.EventFact{}
	for rows.Next() {
		var f models.EventFact
		if err := rows.Scan(&f.Source, &f.DeviceType, &f.Country, &f.IsUnique); err != nil {
			return nil, fmt.Errorf("failed to scan view fact: %w", err)
		}
		facts = append(facts, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating view facts: %w", err)
	}

	return facts, nil
}

func (r *aggregationRepository) CountInterests(ctx context.Context, entity models.EntityRef, from, to time.Time) (int64, error) {
	column, ok := interestColumnByEntity[entity.Type]
	if !ok {
		return 0, fmt.Errorf("unknown entity type %q", entity.Type)
	}

	query := `SELECT COUNT(*) FROM interest_analytics WHERE ` + column + ` = $1 AND created_at >= $2 AND created_at < $3`

	var count int64
	if err := r.db.Pool.QueryRow(ctx, query, entity.ID, from, to).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count interests: %w", err)
	}

	return count, nil
}

func (r *aggregationRepository) ListActiveEntities(ctx context.Context, from, to time.Time) ([]models.EntityRef, error) {
	query := `
		SELECT 'tenant', tenant_id FROM rentcard_views WHERE viewed_at >= $1 AND viewed_at < $2
		UNION
		SELECT 'landlord', s.landlord_id FROM shortlink_clicks c JOIN shortlinks s ON s.id = c.shortlink_id
			WHERE s.landlord_id IS NOT NULL AND c.clicked_at >= $1 AND c.clicked_at < $2
		UNION
		SELECT 'property', s.property_id FROM shortlink_clicks c JOIN shortlinks s ON s.id = c.shortlink_id
			WHERE s.property_id IS NOT NULL AND c.clicked_at >= $1 AND c.clicked_at < $2
		UNION
		SELECT 'tenant', tenant_id FROM interest_analytics WHERE created_at >= $1 AND created_at < $2
		UNION
		SELECT 'landlord', landlord_id FROM interest_analytics
			WHERE landlord_id IS NOT NULL AND created_at >= $1 AND created_at < $2
		UNION
		SELECT 'property', property_id FROM interest_analytics
			WHERE property_id IS NOT NULL AND created_at >= $1 AND created_at < $2
		ORDER BY 1, 2
	`

	rows, err := r.db.Pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list active entities: %w", err)
	}
	defer rows.Close()

	entities := []models.EntityRef{}
	for rows.Next() {
		var e models.EntityRef
		if err := rows.Scan(&e.Type, &e.ID); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		entities = append(entities, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entities: %w", err)
	}

	return entities, nil
}

func (r *aggregationRepository) Upsert(ctx context.Context, agg *models.AnalyticsAggregation) error {
	query := `
		INSERT INTO analytics_aggregations (entity_type, entity_id, aggregation_type, date, metrics, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (entity_type, entity_id, aggregation_type, date)
		DO UPDATE SET metrics = EXCLUDED.metrics, updated_at = NOW()
		RETURNING id, updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		agg.EntityType,
		agg.EntityID,
		agg.AggregationType,
		agg.Date,
		agg.Metrics,
	).Scan(&agg.ID, &agg.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert aggregation: %w", err)
	}

	return nil
}

func (r *aggregationRepository) List(ctx context.Context, entity models.EntityRef, granularity models.Granularity, from, to time.Time) ([]models.AnalyticsAggregation, error) {
	query := `
		SELECT id, entity_type, entity_id, aggregation_type, date, metrics, updated_at
		FROM analytics_aggregations
		WHERE entity_type = $1 AND entity_id = $2 AND aggregation_type = $3 AND date >= $4 AND date < $5
		ORDER BY date
	`

	rows, err := r.db.Pool.Query(ctx, query, entity.Type, entity.ID, granularity, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list aggregations: %w", err)
	}
	defer rows.Close()

	aggs := []models.AnalyticsAggregation{}
	for rows.Next() {
		var a models.AnalyticsAggregation
		if err := rows.Scan(&a.ID, &a.EntityType, &a.EntityID, &a.AggregationType, &a.Date, &a.Metrics, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan aggregation: %w", err)
		}
		aggs = append(aggs, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating aggregations: %w", err)
	}

	return aggs, nil
}
