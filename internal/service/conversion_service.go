package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SergeiKhy/rentcard-share/internal/models"
	"github.com/SergeiKhy/rentcard-share/internal/repository"
	"go.uber.org/zap"
)

const maxEngagementScore = 100

// ConversionService связывает интересы с сессиями просмотра
type ConversionService interface {
	// LinkInterestToSession всегда создаёт строку InterestAnalytics; привязка к сессии
	// носит рекомендательный характер и при отсутствии сессии только логируется
	LinkInterestToSession(ctx context.Context, input *models.LinkInterestInput) (*models.InterestAnalytics, error)
	UpdateInterestOutcome(ctx context.Context, interestID int64, status models.InterestStatus) (*models.InterestAnalytics, error)
}

type conversionService struct {
	sessionRepo  repository.SessionRepository
	interestRepo repository.InterestRepository
	logger       *zap.Logger
	opts         options
}

func NewConversionService(
	sessionRepo repository.SessionRepository,
	interestRepo repository.InterestRepository,
	logger *zap.Logger,
	opts ...Option,
) ConversionService {
	return &conversionService{
		sessionRepo:  sessionRepo,
		interestRepo: interestRepo,
		logger:       orNop(logger),
		opts:         buildOptions(opts),
	}
}

func (s *conversionService) LinkInterestToSession(ctx context.Context, input *models.LinkInterestInput) (*models.InterestAnalytics, error) {
	if input.InterestID <= 0 || input.TenantID <= 0 {
		return nil, fmt.Errorf("%w: interest and tenant are required", ErrValidation)
	}

	existing, err := s.interestRepo.GetByInterestID(ctx, input.InterestID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrInterestNotFound) {
		return nil, err
	}

	now := s.opts.now()
	logger := s.logger.With(zap.Int64("interest_id", input.InterestID))

	if session := s.convertibleSession(ctx, input, logger); session != nil {
		ia := newInterestAnalytics(input, now)
		applyFunnel(ia, session)

		// Пометка сессии и вставка строки идут одной транзакцией
		err := s.interestRepo.CreateConverted(ctx, ia)
		if !errors.Is(err, repository.ErrSessionAlreadyConverted) {
			return s.created(ctx, ia, err)
		}
		logger.Info("View session converted concurrently", zap.Int64("session_id", session.ID))
	}

	ia := newInterestAnalytics(input, now)
	return s.created(ctx, ia, s.interestRepo.Create(ctx, ia))
}

// created разбирает результат вставки; гонка двух вызовов с одним interestID отдаёт первую строку
func (s *conversionService) created(ctx context.Context, ia *models.InterestAnalytics, err error) (*models.InterestAnalytics, error) {
	switch {
	case err == nil:
		return ia, nil
	case errors.Is(err, repository.ErrInterestExists):
		return s.interestRepo.GetByInterestID(ctx, ia.InterestID)
	default:
		return nil, err
	}
}

// convertibleSession последняя сессия отпечатка у арендатора интереса, ещё не конвертированная
func (s *conversionService) convertibleSession(ctx context.Context, input *models.LinkInterestInput, logger *zap.Logger) *models.ViewSession {
	if input.SessionFingerprint == "" {
		logger.Info("Interest without session fingerprint, conversion not tracked")
		return nil
	}

	session, err := s.sessionRepo.FindLatest(ctx, input.SessionFingerprint, input.TenantID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			logger.Info("No view session for interest, conversion not tracked")
		} else {
			logger.Warn("Failed to look up view session", zap.Error(err))
		}
		return nil
	}

	if session.ConvertedToInterest {
		logger.Info("View session already converted", zap.Int64("session_id", session.ID))
		return nil
	}
	return session
}

func newInterestAnalytics(input *models.LinkInterestInput, now time.Time) *models.InterestAnalytics {
	return &models.InterestAnalytics{
		InterestID: input.InterestID,
		TenantID:   input.TenantID,
		LandlordID: input.LandlordID,
		PropertyID: input.PropertyID,
		CreatedAt:  now,
	}
}

// applyFunnel заполняет метрики воронки по сессии
func applyFunnel(ia *models.InterestAnalytics, session *models.ViewSession) {
	minutes := int64(ia.CreatedAt.Sub(session.StartTime).Minutes())
	if minutes < 0 {
		minutes = 0
	}

	sessionID := session.ID
	ia.SessionID = &sessionID
	ia.ViewsBeforeInterest = session.TotalViews
	ia.TimeToInterest = &minutes
	ia.EngagementScore = engagementScore(session.TotalViews, session.TotalDuration)
}

func (s *conversionService) UpdateInterestOutcome(ctx context.Context, interestID int64, status models.InterestStatus) (*models.InterestAnalytics, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	ia, err := s.interestRepo.GetByInterestID(ctx, interestID)
	if err != nil {
		if errors.Is(err, repository.ErrInterestNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	now := s.opts.now()
	responseMinutes := int64(now.Sub(ia.CreatedAt).Minutes())
	if responseMinutes < 0 {
		responseMinutes = 0
	}

	updated, err := s.interestRepo.UpdateOutcome(ctx, interestID, status, responseMinutes, now)
	if err != nil {
		if errors.Is(err, repository.ErrInterestNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return updated, nil
}

// engagementScore 10 баллов за просмотр и 1 за каждые 30 секунд, не больше 100
func engagementScore(views, durationSeconds int64) int {
	score := views*10 + durationSeconds/30
	if score > maxEngagementScore {
		return maxEngagementScore
	}
	return int(score)
}
