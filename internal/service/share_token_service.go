package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/SergeiKhy/rentcard-share/internal/models"
	"github.com/SergeiKhy/rentcard-share/internal/repository"
	"go.uber.org/zap"
)

const (
	tokenBytes       = 32
	maxTokenAttempts = 3
)

// ShareTokenService жизненный цикл токенов доступа к RentCard
type ShareTokenService interface {
	Create(ctx context.Context, input *models.CreateShareTokenInput) (*models.ShareToken, error)
	// Validate единственная проверка токена для всех читателей. Ошибки: ErrNotFound, ErrRevoked, ErrExpired.
	Validate(ctx context.Context, token string) (*models.ShareToken, error)
	// RecordView атомарно учитывает просмотр валидного токена; для невалидного ничего не меняет
	RecordView(ctx context.Context, token string) (*models.ShareToken, error)
	Revoke(ctx context.Context, tokenID int64, owner models.Owner) error
	ListTokens(ctx context.Context, owner models.Owner) ([]models.ShareToken, error)
}

type shareTokenService struct {
	tokenRepo repository.ShareTokenRepository
	logger    *zap.Logger
	opts      options
}

// NewShareTokenService создаёт новый экземпляр сервиса токенов
func NewShareTokenService(tokenRepo repository.ShareTokenRepository, logger *zap.Logger, opts ...Option) ShareTokenService {
	return &shareTokenService{
		tokenRepo: tokenRepo,
		logger:    orNop(logger),
		opts:      buildOptions(opts),
	}
}

func (s *shareTokenService) Create(ctx context.Context, input *models.CreateShareTokenInput) (*models.ShareToken, error) {
	if !input.Scope.Valid() {
		return nil, ErrInvalidScope
	}
	// Токены выпускает только арендатор для своей RentCard
	if input.Owner.Role != models.RoleTenant || input.Owner.ID <= 0 {
		return nil, ErrForbidden
	}

	now := s.opts.now()
	if input.ExpiresAt != nil && !input.ExpiresAt.After(now) {
		return nil, ErrExpiresInPast
	}

	var lastErr error
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		value, err := generateToken()
		if err != nil {
			return nil, fmt.Errorf("failed to generate token: %w", err)
		}

		token := &models.ShareToken{
			Token:     value,
			TenantID:  input.Owner.ID,
			Scope:     input.Scope,
			ExpiresAt: input.ExpiresAt,
			CreatedAt: now,
		}

		err = s.tokenRepo.Create(ctx, token)
		if err == nil {
			s.logger.Info("Share token created",
				zap.Int64("token_id", token.ID),
				zap.Int64("tenant_id", token.TenantID),
			)
			return token, nil
		}
		if !errors.Is(err, repository.ErrShareTokenExists) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("failed to create unique token: %w", lastErr)
}

func (s *shareTokenService) Validate(ctx context.Context, token string) (*models.ShareToken, error) {
	if token == "" {
		return nil, ErrNotFound
	}

	st, err := s.tokenRepo.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrShareTokenNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := tokenStatusError(st.Status(s.opts.now())); err != nil {
		return st, err
	}

	return st, nil
}

func (s *shareTokenService) RecordView(ctx context.Context, token string) (*models.ShareToken, error) {
	st, err := s.tokenRepo.IncrementViews(ctx, token, s.opts.now())
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, repository.ErrShareTokenNotFound) {
		return nil, err
	}

	// Условие UPDATE не выполнилось: выясняем причину той же проверкой, что и Validate
	st, err = s.Validate(ctx, token)
	if err != nil {
		return st, err
	}
	return nil, ErrNotFound
}

func (s *shareTokenService) Revoke(ctx context.Context, tokenID int64, owner models.Owner) error {
	st, err := s.tokenRepo.GetByID(ctx, tokenID)
	if err != nil {
		if errors.Is(err, repository.ErrShareTokenNotFound) {
			return ErrNotFound
		}
		return err
	}

	if !owner.IsTenant(st.TenantID) {
		return ErrForbidden
	}

	// Повторный отзыв ничего не меняет
	if st.Revoked {
		return nil
	}

	if err := s.tokenRepo.Revoke(ctx, tokenID); err != nil {
		if errors.Is(err, repository.ErrShareTokenNotFound) {
			return ErrNotFound
		}
		return err
	}

	s.logger.Info("Share token revoked", zap.Int64("token_id", tokenID), zap.Int64("tenant_id", st.TenantID))
	return nil
}

func (s *shareTokenService) ListTokens(ctx context.Context, owner models.Owner) ([]models.ShareToken, error) {
	if owner.Role != models.RoleTenant {
		return nil, ErrForbidden
	}
	return s.tokenRepo.ListByTenant(ctx, owner.ID)
}

// generateToken возвращает 256 бит случайности в base64url без паддинга
func generateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
