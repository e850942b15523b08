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
	ErrSessionNotFound         = errors.New("view session not found")
	ErrSessionAlreadyConverted = errors.New("view session already converted")
)

type SessionRepository interface {
	// FindLatest возвращает самую свежую сессию отпечатка у арендатора (по end_time).
	// Сессии разных арендаторов с одним отпечатком не пересекаются.
	FindLatest(ctx context.Context, fingerprint string, tenantID int64) (*models.ViewSession, error)
	Create(ctx context.Context, session *models.ViewSession) error
	// Extend атомарно продлевает сессию одним просмотром
	Extend(ctx context.Context, id int64, at time.Time, durationSeconds int64) error
}

type sessionRepository struct {
	db *PostgresDB
}

func NewSessionRepository(db *PostgresDB) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) FindLatest(ctx context.Context, fingerprint string, tenantID int64) (*models.ViewSession, error) {
	query := `
		SELECT id, session_fingerprint, share_token_id, tenant_id, start_time, end_time, total_views,
			total_duration, converted_to_interest, interest_id, conversion_time
		FROM view_sessions
		WHERE session_fingerprint = $1 AND tenant_id = $2
		ORDER BY end_time DESC, id DESC
		LIMIT 1
	`

	s := &models.ViewSession{}
	err := r.db.Pool.QueryRow(ctx, query, fingerprint, tenantID).Scan(
		&s.ID,
		&s.SessionFingerprint,
		&s.ShareTokenID,
		&s.TenantID,
		&s.StartTime,
		&s.EndTime,
		&s.TotalViews,
		&s.TotalDuration,
		&s.ConvertedToInterest,
		&s.InterestID,
		&s.ConversionTime,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get view session: %w", err)
	}

	return s, nil
}

func (r *sessionRepository) Create(ctx context.Context, session *models.ViewSession) error {
	query := `
		INSERT INTO view_sessions (session_fingerprint, share_token_id, tenant_id, start_time, end_time,
			total_views, total_duration)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	err := r.db.Pool.QueryRow(ctx, query,
		session.SessionFingerprint,
		session.ShareTokenID,
		session.TenantID,
		session.StartTime,
		session.EndTime,
		session.TotalViews,
		session.TotalDuration,
	).Scan(&session.ID)

	if err != nil {
		return fmt.Errorf("failed to create view session: %w", err)
	}

	return nil
}

func (r *sessionRepository) Extend(ctx context.Context, id int64, at time.Time, durationSeconds int64) error {
	query := `
		UPDATE view_sessions
		SET end_time = GREATEST(end_time, $2),
			total_views = total_views + 1,
			total_duration = total_duration + $3
		WHERE id = $1
	`

	result, err := r.db.Pool.Exec(ctx, query, id, at, durationSeconds)
	if err != nil {
		return fmt.Errorf("failed to extend view session: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrSessionNotFound
	}

	return nil
}

// markConvertedQuery переводит сессию в converted один раз; выполняется в транзакции InterestRepository.CreateConverted
const markConvertedQuery = `
	UPDATE view_sessions
	SET converted_to_interest = TRUE, interest_id = $2, conversion_time = $3
	WHERE id = $1 AND NOT converted_to_interest
`
