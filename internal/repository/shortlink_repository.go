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
	ErrShortlinkNotFound = errors.New("shortlink not found")
	ErrSlugExists        = errors.New("slug already exists")
)

type ShortlinkRepository interface {
	Create(ctx context.Context, link *models.Shortlink) error
	GetBySlug(ctx context.Context, slug string) (*models.Shortlink, error)
	// IncrementClicks атомарно увеличивает счётчик активной и не истёкшей ссылки и
	// возвращает новое значение. Иначе ErrShortlinkNotFound.
	IncrementClicks(ctx context.Context, id int64, now time.Time) (int64, error)
	Deactivate(ctx context.Context, id int64) error
}

const shortlinkColumns = `id, slug, target_url, share_token_id, tenant_id, landlord_id, property_id,
	resource_type, resource_id, channel, click_count, last_clicked_at, active, expires_at, created_at`

type shortlinkRepository struct {
	db *PostgresDB
}

func NewShortlinkRepository(db *PostgresDB) ShortlinkRepository {
	return &shortlinkRepository{db: db}
}

func (r *shortlinkRepository) Create(ctx context.Context, link *models.Shortlink) error {
	query := `
		INSERT INTO shortlinks (slug, target_url, share_token_id, tenant_id, landlord_id, property_id,
			resource_type, resource_id, channel, active, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE, $10, $11)
		RETURNING id, created_at
	`

	err := r.db.Pool.QueryRow(
		ctx,
		query,
		link.Slug,
		link.TargetURL,
		link.ShareTokenID,
		link.TenantID,
		link.LandlordID,
		link.PropertyID,
		link.ResourceType,
		link.ResourceID,
		link.Channel,
		link.ExpiresAt,
		link.CreatedAt,
	).Scan(&link.ID, &link.CreatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlugExists
		}
		return fmt.Errorf("failed to create shortlink: %w", err)
	}

	link.Active = true
	return nil
}

// GetBySlug возвращает ссылку в любом состоянии; активность и срок проверяет сервис
func (r *shortlinkRepository) GetBySlug(ctx context.Context, slug string) (*models.Shortlink, error) {
	query := `SELECT ` + shortlinkColumns + ` FROM shortlinks WHERE slug = $1`

	link := &models.Shortlink{}
	err := r.db.Pool.QueryRow(ctx, query, slug).Scan(
		&link.ID,
		&link.Slug,
		&link.TargetURL,
		&link.ShareTokenID,
		&link.TenantID,
		&link.LandlordID,
		&link.PropertyID,
		&link.ResourceType,
		&link.ResourceID,
		&link.Channel,
		&link.ClickCount,
		&link.LastClickedAt,
		&link.Active,
		&link.ExpiresAt,
		&link.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrShortlinkNotFound
		}
		return nil, fmt.Errorf("failed to get shortlink: %w", err)
	}

	return link, nil
}

func (r *shortlinkRepository) IncrementClicks(ctx context.Context, id int64, now time.Time) (int64, error) {
	query := `
		UPDATE shortlinks
		SET click_count = click_count + 1, last_clicked_at = $2
		WHERE id = $1 AND active AND (expires_at IS NULL OR expires_at > $2)
		RETURNING click_count
	`

	var count int64
	if err := r.db.Pool.QueryRow(ctx, query, id, now).Scan(&count); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrShortlinkNotFound
		}
		return 0, fmt.Errorf("failed to increment clicks: %w", err)
	}

	return count, nil
}

func (r *shortlinkRepository) Deactivate(ctx context.Context, id int64) error {
	query := `UPDATE shortlinks SET active = FALSE WHERE id = $1`

	result, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate shortlink: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrShortlinkNotFound
	}

	return nil
}
