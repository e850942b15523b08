package repository

import (
	"context"
	"fmt"

	"github.com/SergeiKhy/rentcard-share/internal/models"
	"github.com/jackc/pgx/v5"
)

type ViewRepository interface {
	// RecordView пишет просмотр и выставляет view.IsUnique по первому появлению отпечатка для ownerKey
	RecordView(ctx context.Context, view *models.RentcardView, ownerKey string) error
}

type viewRepository struct {
	db *PostgresDB
}

func NewViewRepository(db *PostgresDB) ViewRepository {
	return &viewRepository{db: db}
}

func (r *viewRepository) RecordView(ctx context.Context, view *models.RentcardView, ownerKey string) error {
	query := `
		INSERT INTO rentcard_views (share_token_id, tenant_id, viewer_fingerprint, source, source_id,
			metadata, is_unique, viewed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	err := pgx.BeginFunc(ctx, r.db.Pool, func(tx pgx.Tx) error {
		unique, err := markFirstSeen(ctx, tx, ownerKey, view.ViewerFingerprint, view.ViewedAt)
		if err != nil {
			return err
		}
		view.IsUnique = unique

		return tx.QueryRow(ctx, query,
			view.ShareTokenID,
			view.TenantID,
			view.ViewerFingerprint,
			view.Source,
			view.SourceID,
			view.Metadata,
			view.IsUnique,
			view.ViewedAt,
		).Scan(&view.ID)
	})

	if err != nil {
		return fmt.Errorf("failed to record view: %w", err)
	}

	return nil
}
