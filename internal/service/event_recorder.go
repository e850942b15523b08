package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/SergeiKhy/rentcard-share/internal/models"
	"github.com/SergeiKhy/rentcard-share/internal/repository"
	"go.uber.org/zap"
)

// EventSink принимает события аналитики без ожидания записи
type EventSink interface {
	SubmitClick(ctx context.Context, event *models.ClickEvent)
	SubmitView(ctx context.Context, event *models.ViewEvent)
}

// EventRecorder синхронная запись событий; вызывается воркерами EventProcessor
type EventRecorder interface {
	RecordShortlinkClick(ctx context.Context, event *models.ClickEvent) (*models.ShortlinkClick, error)
	// RecordRentcardView пишет просмотр (уникальность решается один раз при записи) и обновляет ViewSession
	RecordRentcardView(ctx context.Context, event *models.ViewEvent) (*models.RentcardView, error)
}

type eventRecorder struct {
	clickRepo   repository.ClickRepository
	viewRepo    repository.ViewRepository
	sessionRepo repository.SessionRepository
	tokenRepo   repository.ShareTokenRepository
	logger      *zap.Logger
	opts        options
}

func NewEventRecorder(
	clickRepo repository.ClickRepository,
	viewRepo repository.ViewRepository,
	sessionRepo repository.SessionRepository,
	tokenRepo repository.ShareTokenRepository,
	logger *zap.Logger,
	opts ...Option,
) EventRecorder {
	return &eventRecorder{
		clickRepo:   clickRepo,
		viewRepo:    viewRepo,
		sessionRepo: sessionRepo,
		tokenRepo:   tokenRepo,
		logger:      orNop(logger),
		opts:        buildOptions(opts),
	}
}

func (r *eventRecorder) RecordShortlinkClick(ctx context.Context, event *models.ClickEvent) (*models.ShortlinkClick, error) {
	if event.ShortlinkID <= 0 || event.Fingerprint == "" {
		return nil, fmt.Errorf("%w: click without shortlink or fingerprint", ErrValidation)
	}

	click := &models.ShortlinkClick{
		ShortlinkID: event.ShortlinkID,
		Channel:     event.Channel,
		Fingerprint: event.Fingerprint,
		Device:      event.Device,
		Location:    event.Location,
		Referrer:    event.Referrer,
		SessionID:   event.SessionID,
		UserID:      event.UserID,
		ClickedAt:   r.occurredAt(event.OccurredAt),
	}

	if err := r.clickRepo.RecordClick(ctx, click, shortlinkOwnerKey(event.ShortlinkID)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecordingFailure, err)
	}

	return click, nil
}

func (r *eventRecorder) RecordRentcardView(ctx context.Context, event *models.ViewEvent) (*models.RentcardView, error) {
	if !event.Source.Valid() {
		return nil, ErrInvalidSource
	}
	if event.ViewerFingerprint == "" {
		return nil, fmt.Errorf("%w: view without fingerprint", ErrValidation)
	}
	for _, action := range event.Metadata.Actions {
		if !action.Valid() {
			return nil, fmt.Errorf("%w: unknown view action %q", ErrValidation, action)
		}
	}

	// Владелец просмотра по токену всегда берётся из токена
	tenantID := event.TenantID
	if event.ShareTokenID != nil {
		token, err := r.tokenRepo.GetByID(ctx, *event.ShareTokenID)
		if err != nil {
			if errors.Is(err, repository.ErrShareTokenNotFound) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("%w: %v", ErrRecordingFailure, err)
		}
		if tenantID != 0 && tenantID != token.TenantID {
			return nil, fmt.Errorf("%w: share token %d belongs to another tenant", ErrValidation, token.ID)
		}
		tenantID = token.TenantID
	}
	if tenantID <= 0 {
		return nil, fmt.Errorf("%w: view without share token or tenant", ErrValidation)
	}
	if event.Metadata.DurationSeconds < 0 {
		event.Metadata.DurationSeconds = 0
	}

	view := &models.RentcardView{
		ShareTokenID:      event.ShareTokenID,
		TenantID:          tenantID,
		ViewerFingerprint: event.ViewerFingerprint,
		Source:            event.Source,
		SourceID:          event.SourceID,
		Metadata:          event.Metadata,
		ViewedAt:          r.occurredAt(event.OccurredAt),
	}

	if err := r.viewRepo.RecordView(ctx, view, viewOwnerKey(event.ShareTokenID, tenantID)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecordingFailure, err)
	}

	// Сессия вторична по отношению к самому просмотру
	if err := r.touchSession(ctx, view); err != nil {
		r.logger.Warn("Не удалось обновить сессию просмотра",
			zap.Int64("tenant_id", tenantID),
			zap.Error(err),
		)
	}

	return view, nil
}

// touchSession продлевает последнюю сессию отпечатка у того же арендатора в пределах окна или открывает новую
func (r *eventRecorder) touchSession(ctx context.Context, view *models.RentcardView) error {
	duration := view.Metadata.DurationSeconds

	session, err := r.sessionRepo.FindLatest(ctx, view.ViewerFingerprint, view.TenantID)
	switch {
	case err == nil && view.ViewedAt.Sub(session.EndTime) <= r.opts.sessionWindow:
		return r.sessionRepo.Extend(ctx, session.ID, view.ViewedAt, duration)
	case err != nil && !errors.Is(err, repository.ErrSessionNotFound):
		return err
	}

	return r.sessionRepo.Create(ctx, &models.ViewSession{
		SessionFingerprint: view.ViewerFingerprint,
		ShareTokenID:       view.ShareTokenID,
		TenantID:           view.TenantID,
		StartTime:          view.ViewedAt,
		EndTime:            view.ViewedAt,
		TotalViews:         1,
		TotalDuration:      duration,
	})
}

func (r *eventRecorder) occurredAt(t time.Time) time.Time {
	if t.IsZero() {
		return r.opts.now()
	}
	return t.UTC()
}

// viewOwnerKey ключ уникальности просмотра: токен, если он есть, иначе арендатор
func viewOwnerKey(shareTokenID *int64, tenantID int64) string {
	if shareTokenID != nil {
		return "token:" + strconv.FormatInt(*shareTokenID, 10)
	}
	return "tenant:" + strconv.FormatInt(tenantID, 10)
}

func shortlinkOwnerKey(shortlinkID int64) string {
	return "shortlink:" + strconv.FormatInt(shortlinkID, 10)
}
