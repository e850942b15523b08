package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/SergeiKhy/rentcard-share/internal/models"
	"github.com/SergeiKhy/rentcard-share/internal/repository"
	"go.uber.org/zap"
)

// Константы сервиса
const (
	slugLength      = 8
	maxSlugAttempts = 5
	charset         = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var (
	urlPattern  = regexp.MustCompile(`^https?://[^\s]+$`)
	slugPattern = regexp.MustCompile(`^[a-zA-Z0-9]{4,32}$`)
)

// ShortlinkService короткие ссылки с атрибуцией канала
type ShortlinkService interface {
	CreateShortlink(ctx context.Context, input *models.CreateShortlinkInput) (*models.Shortlink, error)
	// Resolve возвращает ссылку для редиректа. Ошибки ErrNotFound, ErrInactive, ErrExpired, ErrRevoked
	// ничего не меняют. Запись клика выполняется в фоне и не влияет на результат.
	Resolve(ctx context.Context, req *models.ResolveRequest) (*models.Shortlink, error)
	Deactivate(ctx context.Context, slug string, owner models.Owner) error
	GetStats(ctx context.Context, slug string, owner models.Owner) (*models.ShortlinkStats, error)
	ShortURL(slug string) string
}

// shortlinkService реализация сервиса коротких ссылок
type shortlinkService struct {
	linkRepo  repository.ShortlinkRepository
	tokenRepo repository.ShareTokenRepository
	clickRepo repository.ClickRepository
	sink      EventSink
	logger    *zap.Logger
	opts      options
}

// NewShortlinkService создаёт новый экземпляр сервиса
func NewShortlinkService(
	linkRepo repository.ShortlinkRepository,
	tokenRepo repository.ShareTokenRepository,
	clickRepo repository.ClickRepository,
	sink EventSink,
	logger *zap.Logger,
	opts ...Option,
) ShortlinkService {
	return &shortlinkService{
		linkRepo:  linkRepo,
		tokenRepo: tokenRepo,
		clickRepo: clickRepo,
		sink:      sink,
		logger:    orNop(logger),
		opts:      buildOptions(opts),
	}
}

// CreateShortlink создаёт новую короткую ссылку
func (s *shortlinkService) CreateShortlink(ctx context.Context, input *models.CreateShortlinkInput) (*models.Shortlink, error) {
	if err := validateURL(input.TargetURL); err != nil {
		return nil, err
	}
	if !input.Channel.Valid() {
		return nil, ErrInvalidChannel
	}
	if !input.ResourceType.Valid() || input.ResourceID <= 0 {
		return nil, ErrInvalidResource
	}
	if !input.Owner.Role.Valid() || input.Owner.ID <= 0 {
		return nil, ErrForbidden
	}

	now := s.opts.now()
	if input.ExpiresAt != nil && !input.ExpiresAt.After(now) {
		return nil, ErrExpiresInPast
	}

	link := &models.Shortlink{
		TargetURL:    input.TargetURL,
		ShareTokenID: input.ShareTokenID,
		PropertyID:   input.PropertyID,
		ResourceType: input.ResourceType,
		ResourceID:   input.ResourceID,
		Channel:      input.Channel,
		ExpiresAt:    input.ExpiresAt,
		CreatedAt:    now,
	}

	// Владелец фиксируется внешним ключом по роли
	ownerID := input.Owner.ID
	switch input.Owner.Role {
	case models.RoleTenant:
		link.TenantID = &ownerID
	case models.RoleLandlord:
		link.LandlordID = &ownerID
	}
	if input.ResourceType == models.ResourceProperty && link.PropertyID == nil {
		propertyID := input.ResourceID
		link.PropertyID = &propertyID
	}

	// Ссылка поверх токена: токен должен принадлежать владельцу и быть валидным
	if input.ShareTokenID != nil {
		token, err := s.tokenRepo.GetByID(ctx, *input.ShareTokenID)
		if err != nil {
			if errors.Is(err, repository.ErrShareTokenNotFound) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		if !input.Owner.IsTenant(token.TenantID) {
			return nil, ErrForbidden
		}
		if err := tokenStatusError(token.Status(now)); err != nil {
			return nil, err
		}
	}

	// Генерация slug с повтором при коллизии
	var lastErr error
	for attempt := 0; attempt < maxSlugAttempts; attempt++ {
		slug, err := s.opts.slugGenerator()
		if err != nil {
			return nil, fmt.Errorf("failed to generate slug: %w", err)
		}
		link.Slug = slug

		err = s.linkRepo.Create(ctx, link)
		if err == nil {
			s.logger.Info("Shortlink created",
				zap.String("slug", link.Slug),
				zap.String("channel", string(link.Channel)),
				zap.String("resource_type", string(link.ResourceType)),
			)
			return link, nil
		}
		if !errors.Is(err, repository.ErrSlugExists) {
			return nil, err
		}

		s.logger.Debug("Коллизия slug, повторная генерация", zap.String("slug", slug), zap.Int("attempt", attempt+1))
		lastErr = err
	}

	return nil, fmt.Errorf("failed to allocate unique slug after %d attempts: %w", maxSlugAttempts, lastErr)
}

func (s *shortlinkService) Resolve(ctx context.Context, req *models.ResolveRequest) (*models.Shortlink, error) {
	if !slugPattern.MatchString(req.Slug) {
		return nil, ErrNotFound
	}

	link, err := s.linkRepo.GetBySlug(ctx, req.Slug)
	if err != nil {
		if errors.Is(err, repository.ErrShortlinkNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	now := s.opts.now()
	if !link.Active {
		return nil, ErrInactive
	}
	if link.Expired(now) {
		return nil, ErrExpired
	}

	var token *models.ShareToken
	if link.ShareTokenID != nil {
		token, err = s.tokenRepo.GetByID(ctx, *link.ShareTokenID)
		if err != nil {
			if errors.Is(err, repository.ErrShareTokenNotFound) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		if err := tokenStatusError(token.Status(now)); err != nil {
			return nil, err
		}
	}

	// Фаза 2: счётчики и событие. Сбои логируются и не мешают редиректу.
	count, err := s.linkRepo.IncrementClicks(ctx, link.ID, now)
	switch {
	case errors.Is(err, repository.ErrShortlinkNotFound):
		// Ссылку деактивировали между чтением и обновлением
		return nil, ErrInactive
	case err != nil:
		s.logger.Warn("Failed to increment click count",
			zap.String("slug", link.Slug),
			zap.Error(fmt.Errorf("%w: %v", ErrRecordingFailure, err)),
		)
	default:
		link.ClickCount = count
		link.LastClickedAt = &now
	}

	s.sink.SubmitClick(ctx, &models.ClickEvent{
		ShortlinkID: link.ID,
		Slug:        link.Slug,
		Channel:     s.clickChannel(req.Channel, link),
		Fingerprint: req.Fingerprint,
		Device:      req.Device,
		Location:    req.Location,
		Referrer:    req.Referrer,
		SessionID:   req.SessionID,
		UserID:      req.UserID,
		OccurredAt:  now,
	})

	return link, nil
}

// clickChannel канал клика: переданный явно, иначе канал создания ссылки
func (s *shortlinkService) clickChannel(requested models.Channel, link *models.Shortlink) models.Channel {
	if requested == "" {
		return link.Channel
	}
	if !requested.Valid() {
		s.logger.Debug("Неизвестный канал клика, используется канал ссылки",
			zap.String("slug", link.Slug),
			zap.String("channel", string(requested)),
		)
		return link.Channel
	}
	return requested
}

func (s *shortlinkService) Deactivate(ctx context.Context, slug string, owner models.Owner) error {
	link, err := s.ownedLink(ctx, slug, owner)
	if err != nil {
		return err
	}

	if !link.Active {
		return nil
	}

	if err := s.linkRepo.Deactivate(ctx, link.ID); err != nil {
		if errors.Is(err, repository.ErrShortlinkNotFound) {
			return ErrNotFound
		}
		return err
	}

	s.logger.Info("Shortlink deactivated", zap.String("slug", slug))
	return nil
}

func (s *shortlinkService) GetStats(ctx context.Context, slug string, owner models.Owner) (*models.ShortlinkStats, error) {
	link, err := s.ownedLink(ctx, slug, owner)
	if err != nil {
		return nil, err
	}

	stats, err := s.clickRepo.GetStats(ctx, link.ID)
	if err != nil {
		return nil, err
	}

	stats.Slug = link.Slug
	stats.ClickCount = link.ClickCount
	stats.Channels = withPercentages(stats.Channels)
	return stats, nil
}

func (s *shortlinkService) ShortURL(slug string) string {
	return strings.TrimRight(s.opts.baseURL, "/") + "/r/" + slug
}

func (s *shortlinkService) ownedLink(ctx context.Context, slug string, owner models.Owner) (*models.Shortlink, error) {
	link, err := s.linkRepo.GetBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, repository.ErrShortlinkNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !link.OwnedBy(owner) {
		return nil, ErrForbidden
	}
	return link, nil
}

// generateSlug генерирует случайный slug длиной 8 символов
func generateSlug() (string, error) {
	result := make([]byte, slugLength)
	for i := 0; i < slugLength; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[num.Int64()]
	}
	return string(result), nil
}

// validateURL проверяет формат URL
func validateURL(url string) error {
	if !urlPattern.MatchString(url) {
		return ErrInvalidURL
	}
	return nil
}
