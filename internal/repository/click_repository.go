package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/SergeiKhy/rentcard-share/internal/models"
	"github.com/jackc/pgx/v5"
)

type ClickRepository interface {
	// RecordClick пишет клик и выставляет click.IsUnique по первому появлению отпечатка для ownerKey
	RecordClick(ctx context.Context, click *models.ShortlinkClick, ownerKey string) error
	// GetStats возвращает записанные клики, уникальные клики и разбивку по каналам (без процентов)
	GetStats(ctx context.Context, shortlinkID int64) (*models.ShortlinkStats, error)
}

type clickRepository struct {
	db *PostgresDB
}

func NewClickRepository(db *PostgresDB) ClickRepository {
	return &clickRepository{db: db}
}

func (r *clickRepository) RecordClick(ctx context.Context, click *models.ShortlinkClick, ownerKey string) error {
	query := `
		INSERT INTO shortlink_clicks (shortlink_id, channel, fingerprint, is_unique, device, location,
			referrer, session_id, user_id, clicked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	err := pgx.BeginFunc(ctx, r.db.Pool, func(tx pgx.Tx) error {
		unique, err := markFirstSeen(ctx, tx, ownerKey, click.Fingerprint, click.ClickedAt)
		if err != nil {
			return err
		}
		click.IsUnique = unique

		return tx.QueryRow(ctx, query,
			click.ShortlinkID,
			click.Channel,
			click.Fingerprint,
			click.IsUnique,
			click.Device,
			click.Location,
			click.Referrer,
			click.SessionID,
			click.UserID,
			click.ClickedAt,
		).Scan(&click.ID)
	})

	if err != nil {
		return fmt.Errorf("failed to record click: %w", err)
	}

	return nil
}

func (r *clickRepository) GetStats(ctx context.Context, shortlinkID int64) (*models.ShortlinkStats, error) {
	query := `
		SELECT channel, COUNT(*) AS clicks, COUNT(*) FILTER (WHERE is_unique) AS unique_clicks
		FROM shortlink_clicks
		WHERE shortlink_id = $1
		GROUP BY channel
		ORDER BY clicks DESC, channel
	`

	rows, err := r.db.Pool.Query(ctx, query, shortlinkID)
	if err != nil {
		return nil, fmt.Errorf("failed to get click stats: %w", err)
	}
	defer rows.Close()

	stats := &models.ShortlinkStats{Channels: []models.BreakdownEntry{}}
	for rows.Next() {
		var (
			entry  models.BreakdownEntry
			unique int64
		)
		if err := rows.Scan(&entry.Key, &entry.Count, &unique); err != nil {
			return nil, fmt.Errorf("failed to scan click stat: %w", err)
		}
		stats.RecordedClicks += entry.Count
		stats.UniqueClicks += unique
		stats.Channels = append(stats.Channels, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating click stats: %w", err)
	}

	return stats, nil
}

// markFirstSeen фиксирует пару (ownerKey, fingerprint) и сообщает, встретилась ли она впервые.
// Параллельные транзакции с той же парой сериализуются на первичном ключе.
func markFirstSeen(ctx context.Context, tx pgx.Tx, ownerKey, fingerprint string, at time.Time) (bool, error) {
	query := `
		INSERT INTO visitor_fingerprints (owner_key, fingerprint, first_seen_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner_key, fingerprint) DO NOTHING
	`

	result, err := tx.Exec(ctx, query, ownerKey, fingerprint, at)
	if err != nil {
		return false, fmt.Errorf("failed to mark fingerprint: %w", err)
	}

	return result.RowsAffected() == 1, nil
}
