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
	ErrShareTokenNotFound = errors.New("share token not found")
	ErrShareTokenExists   = errors.New("share token already exists")
)

type ShareTokenRepository interface {
	Create(ctx context.Context, token *models.ShareToken) error
	GetByToken(ctx context.Context, token string) (*models.ShareToken, error)
	GetByID(ctx context.Context, id int64) (*models.ShareToken, error)
	ListByTenant(ctx context.Context, tenantID int64) ([]models.ShareToken, error)
	// IncrementViews атомарно увеличивает счётчик только у валидного на момент now токена.
	// Для невалидного или отсутствующего токена возвращает ErrShareTokenNotFound.
	IncrementViews(ctx context.Context, token string, now time.Time) (*models.ShareToken, error)
	Revoke(ctx context.Context, id int64) error
}

const shareTokenColumns = `id, token, tenant_id, scope, expires_at, revoked, view_count, last_viewed_at, created_at`

type shareTokenRepository struct {
	db *PostgresDB
}

func NewShareTokenRepository(db *PostgresDB) ShareTokenRepository {
	return &shareTokenRepository{db: db}
}

func (r *shareTokenRepository) Create(ctx context.Context, token *models.ShareToken) error {
	query := `
		INSERT INTO share_tokens (token, tenant_id, scope, expires_at, revoked, view_count, created_at)
		VALUES ($1, $2, $3, $4, FALSE, 0, $5)
		RETURNING id, created_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		token.Token,
		token.TenantID,
		token.Scope,
		token.ExpiresAt,
		token.CreatedAt,
	).Scan(&token.ID, &token.CreatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrShareTokenExists
		}
		return fmt.Errorf("failed to create share token: %w", err)
	}

	return nil
}

func (r *shareTokenRepository) GetByToken(ctx context.Context, token string) (*models.ShareToken, error) {
	query := `SELECT ` + shareTokenColumns + ` FROM share_tokens WHERE token = $1`
	return r.getOne(ctx, query, token)
}

func (r *shareTokenRepository) GetByID(ctx context.Context, id int64) (*models.ShareToken, error) {
	query := `SELECT ` + shareTokenColumns + ` FROM share_tokens WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *shareTokenRepository) ListByTenant(ctx context.Context, tenantID int64) ([]models.ShareToken, error) {
	query := `SELECT ` + shareTokenColumns + ` FROM share_tokens WHERE tenant_id = $1 ORDER BY created_at DESC, id DESC`

	rows, err := r.db.Pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list share tokens: %w", err)
	}
	defer rows.Close()

	tokens := []models.ShareToken{}
	for rows.Next() {
		token, err := scanShareToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan share token: %w", err)
		}
		tokens = append(tokens, *token)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating share tokens: %w", err)
	}

	return tokens, nil
}

func (r *shareTokenRepository) IncrementViews(ctx context.Context, token string, now time.Time) (*models.ShareToken, error) {
	query := `
		UPDATE share_tokens
		SET view_count = view_count + 1, last_viewed_at = $2
		WHERE token = $1 AND NOT revoked AND (expires_at IS NULL OR expires_at > $2)
		RETURNING ` + shareTokenColumns

	return r.getOne(ctx, query, token, now)
}

func (r *shareTokenRepository) Revoke(ctx context.Context, id int64) error {
	query := `UPDATE share_tokens SET revoked = TRUE WHERE id = $1`

	result, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to revoke share token: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrShareTokenNotFound
	}

	return nil
}

func (r *shareTokenRepository) getOne(ctx context.Context, query string, args ...any) (*models.ShareToken, error) {
	token, err := scanShareToken(r.db.Pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrShareTokenNotFound
		}
		return nil, fmt.Errorf("failed to get share token: %w", err)
	}
	return token, nil
}

func scanShareToken(row pgx.Row) (*models.ShareToken, error) {
	token := &models.ShareToken{}
	err := row.Scan(
		&token.ID,
		&token.Token,
		&token.TenantID,
		&token.Scope,
		&token.ExpiresAt,
		&token.Revoked,
		&token.ViewCount,
		&token.LastViewedAt,
		&token.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return token, nil
}
