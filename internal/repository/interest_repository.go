package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SergeiKhy/rentcard-share/internal/models"
	"github.com/jackc/pgx/v5"
)

var (
	ErrInterestNotFound = errors.New("interest analytics not found")
	ErrInterestExists   = errors.New("interest analytics already exists")
)

type InterestRepository interface {
	Create(ctx context.Context, ia *models.InterestAnalytics) error
	// CreateConverted в одной транзакции переводит сессию ia.SessionID в converted и вставляет строку.
	// Если сессия уже конвертирована, ничего не пишет и возвращает ErrSessionAlreadyConverted.
	CreateConverted(ctx context.Context, ia *models.InterestAnalytics) error
	GetByInterestID(ctx context.Context, interestID int64) (*models.InterestAnalytics, error)
	// UpdateOutcome выставляет итоговый статус; время ответа арендодателя пишется только один раз
	UpdateOutcome(ctx context.Context, interestID int64, status models.InterestStatus, responseMinutes int64, now time.Time) (*models.InterestAnalytics, error)
}

const interestColumns = `id, interest_id, tenant_id, landlord_id, property_id, session_id, views_before_interest,
	time_to_interest, engagement_score, landlord_response_time, final_status, created_at, updated_at`

type interestRepository struct {
	db *PostgresDB
}

func NewInterestRepository(db *PostgresDB) InterestRepository {
	return &interestRepository{db: db}
}

// rowQuerier общий для пула и транзакции
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *interestRepository) Create(ctx context.Context, ia *models.InterestAnalytics) error {
	return insertInterest(ctx, r.db.Pool, ia)
}

func (r *interestRepository) CreateConverted(ctx context.Context, ia *models.InterestAnalytics) error {
	if ia.SessionID == nil {
		return r.Create(ctx, ia)
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin conversion: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, markConvertedQuery, *ia.SessionID, ia.InterestID, ia.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to convert view session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrSessionAlreadyConverted
	}

	if err := insertInterest(ctx, tx, ia); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit conversion: %w", err)
	}
	return nil
}

func insertInterest(ctx context.Context, q rowQuerier, ia *models.InterestAnalytics) error {
	query := `
		INSERT INTO interest_analytics (interest_id, tenant_id, landlord_id, property_id, session_id,
			views_before_interest, time_to_interest, engagement_score, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING id
	`

	err := q.QueryRow(ctx, query,
		ia.InterestID,
		ia.TenantID,
		ia.LandlordID,
		ia.PropertyID,
		ia.SessionID,
		ia.ViewsBeforeInterest,
		ia.TimeToInterest,
		ia.EngagementScore,
		ia.CreatedAt,
	).Scan(&ia.ID)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrInterestExists
		}
		return fmt.Errorf("failed to create interest analytics: %w", err)
	}

	ia.UpdatedAt = ia.CreatedAt
	return nil
}

func (r *interestRepository) GetByInterestID(ctx context.Context, interestID int64) (*models.InterestAnalytics, error) {
	query := `SELECT ` + interestColumns + ` FROM interest_analytics WHERE interest_id = $1`
	return r.getOne(ctx, query, interestID)
}

func (r *interestRepository) UpdateOutcome(ctx context.Context, interestID int64, status models.InterestStatus, responseMinutes int64, now time.Time) (*models.InterestAnalytics, error) {
	query := `
		UPDATE interest_analytics
		SET final_status = $2,
			landlord_response_time = COALESCE(landlord_response_time, $3),
			updated_at = $4
		WHERE interest_id = $1
		RETURNING ` + interestColumns

	return r.getOne(ctx, query, interestID, status, responseMinutes, now)
}

func (r *interestRepository) getOne(ctx context.Context, query string, args ...any) (*models.InterestAnalytics, error) {
	ia := &models.InterestAnalytics{}
	err := r.db.Pool.QueryRow(ctx, query, args...).Scan(
		&ia.ID,
		&ia.InterestID,
		&ia.TenantID,
		&ia.LandlordID,
		&ia.PropertyID,
		&ia.SessionID,
		&ia.ViewsBeforeInterest,
		&ia.TimeToInterest,
		&ia.EngagementScore,
		&ia.LandlordResponseTime,
		&ia.FinalStatus,
		&ia.CreatedAt,
		&ia.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInterestNotFound
		}
		return nil, fmt.Errorf("failed to get interest analytics: %w", err)
	}

	return ia, nil
}
