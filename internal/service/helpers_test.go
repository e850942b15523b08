package service_test

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/SergeiKhy/rentcard-share/internal/models"
	"github.com/SergeiKhy/rentcard-share/internal/service"
	"github.com/SergeiKhy/rentcard-share/internal/service/mocks"
)

var testNow = time.Date(2024, 3, 13, 12, 0, 0, 0, time.UTC)

// testClock управляемые часы для тестов
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: testNow}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// syncSink пишет события сразу через EventRecorder, без worker pool
type syncSink struct {
	recorder service.EventRecorder
	mu       sync.Mutex
	errs     []error
}

func (s *syncSink) SubmitClick(ctx context.Context, event *models.ClickEvent) {
	_, err := s.recorder.RecordShortlinkClick(ctx, event)
	s.record(err)
}

func (s *syncSink) SubmitView(ctx context.Context, event *models.ViewEvent) {
	_, err := s.recorder.RecordRentcardView(ctx, event)
	s.record(err)
}

func (s *syncSink) record(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

// testEnv все сервисы поверх общих моков
type testEnv struct {
	clock *testClock

	tokenRepo    *mocks.MockShareTokenRepository
	linkRepo     *mocks.MockShortlinkRepository
	clickRepo    *mocks.MockClickRepository
	viewRepo     *mocks.MockViewRepository
	sessionRepo  *mocks.MockSessionRepository
	interestRepo *mocks.MockInterestRepository
	aggRepo      *mocks.MockAggregationRepository

	sink       *syncSink
	recorder   service.EventRecorder
	tokens     service.ShareTokenService
	shortlinks service.ShortlinkService
	analytics  service.AnalyticsService
	conversion service.ConversionService
}

// setupTestEnv создаёт тестовое окружение с моковыми репозиториями
func setupTestEnv(extra ...service.Option) *testEnv {
	env := &testEnv{
		clock:        newTestClock(),
		tokenRepo:    mocks.NewMockShareTokenRepository(),
		linkRepo:     mocks.NewMockShortlinkRepository(),
		clickRepo:    mocks.NewMockClickRepository(),
		viewRepo:     mocks.NewMockViewRepository(),
		sessionRepo:  mocks.NewMockSessionRepository(),
	}
	env.interestRepo = mocks.NewMockInterestRepository(env.sessionRepo)
	env.aggRepo = mocks.NewMockAggregationRepository(env.linkRepo, env.clickRepo, env.viewRepo, env.interestRepo)

	logger := zap.NewNop()
	opts := append([]service.Option{service.WithClock(env.clock.Now)}, extra...)

	env.recorder = service.NewEventRecorder(env.clickRepo, env.viewRepo, env.sessionRepo, env.tokenRepo, logger, opts...)
	env.sink = &syncSink{recorder: env.recorder}
	env.tokens = service.NewShareTokenService(env.tokenRepo, logger, opts...)
	env.shortlinks = service.NewShortlinkService(env.linkRepo, env.tokenRepo, env.clickRepo, env.sink, logger, opts...)
	env.analytics = service.NewAnalyticsService(env.aggRepo, logger, opts...)
	env.conversion = service.NewConversionService(env.sessionRepo, env.interestRepo, logger, opts...)
	return env
}

func tenant(id int64) models.Owner {
	return models.Owner{Role: models.RoleTenant, ID: id}
}

func landlord(id int64) models.Owner {
	return models.Owner{Role: models.RoleLandlord, ID: id}
}

func ptr[T any](v T) *T {
	return &v
}

// createToken выпускает токен арендатора с заданным сроком (nil без срока)
func (e *testEnv) createToken(tenantID int64, expiresIn *time.Duration) *models.ShareToken {
	input := &models.CreateShareTokenInput{Scope: models.ScopeRentcard, Owner: tenant(tenantID)}
	if expiresIn != nil {
		input.ExpiresAt = ptr(e.clock.Now().Add(*expiresIn))
	}
	token, err := e.tokens.Create(context.Background(), input)
	if err != nil {
		panic(err)
	}
	return token
}
