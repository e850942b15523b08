package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/SergeiKhy/rentcard-share/internal/handler"
	"github.com/SergeiKhy/rentcard-share/internal/middleware"
	"github.com/SergeiKhy/rentcard-share/internal/models"
	"github.com/SergeiKhy/rentcard-share/internal/service"
	"github.com/SergeiKhy/rentcard-share/internal/service/mocks"
)

const (
	testAPIKey    = "test-key"
	testSecret    = "test-secret"
	testBaseURL   = "http://short.test"
	iPhoneUA      = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	desktopUA     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	contentTypeJS = "application/json"
)

// recordingSink пишет события синхронно, чтобы тесты видели результат сразу после ответа
type recordingSink struct {
	recorder service.EventRecorder
	mu       sync.Mutex
	errs     []error
}

func (s *recordingSink) SubmitClick(ctx context.Context, event *models.ClickEvent) {
	_, err := s.recorder.RecordShortlinkClick(ctx, event)
	s.add(err)
}

func (s *recordingSink) SubmitView(ctx context.Context, event *models.ViewEvent) {
	_, err := s.recorder.RecordRentcardView(ctx, event)
	s.add(err)
}

func (s *recordingSink) add(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type stubWorkers struct{}

func (stubWorkers) GetChannelStats() service.ChannelStats {
	return service.ChannelStats{BufferSize: 1000, BufferUsed: 12, WorkerCount: 3}
}

type testServer struct {
	router    *gin.Engine
	auth      *middleware.OwnerAuth
	tokenRepo *mocks.MockShareTokenRepository
	linkRepo  *mocks.MockShortlinkRepository
	clickRepo *mocks.MockClickRepository
	viewRepo  *mocks.MockViewRepository
	sessions  *mocks.MockSessionRepository
	interests *mocks.MockInterestRepository
	aggRepo   *mocks.MockAggregationRepository
	sink      *recordingSink
}

func setupServer(t *testing.T, health map[string]handler.Pinger) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &testServer{
		auth:      middleware.NewOwnerAuth(testSecret),
		tokenRepo: mocks.NewMockShareTokenRepository(),
		linkRepo:  mocks.NewMockShortlinkRepository(),
		clickRepo: mocks.NewMockClickRepository(),
		viewRepo:  mocks.NewMockViewRepository(),
		sessions:  mocks.NewMockSessionRepository(),
	}
	s.interests = mocks.NewMockInterestRepository(s.sessions)
	s.aggRepo = mocks.NewMockAggregationRepository(s.linkRepo, s.clickRepo, s.viewRepo, s.interests)

	logger := zap.NewNop()
	recorder := service.NewEventRecorder(s.clickRepo, s.viewRepo, s.sessions, s.tokenRepo, logger)
	s.sink = &recordingSink{recorder: recorder}

	apiKey := middleware.NewAPIKey(middleware.APIKeyConfig{
		ValidKeys: map[string]string{testAPIKey: "test"},
	})

	if health == nil {
		health = map[string]handler.Pinger{}
	}

	s.router = handler.NewRouter(
		handler.Services{
			ShareTokens: service.NewShareTokenService(s.tokenRepo, logger),
			Shortlinks: service.NewShortlinkService(s.linkRepo, s.tokenRepo, s.clickRepo, s.sink, logger,
				service.WithBaseURL(testBaseURL)),
			Analytics:  service.NewAnalyticsService(s.aggRepo, logger),
			Conversion: service.NewConversionService(s.sessions, s.interests, logger),
			Events:     s.sink,
			Workers:    stubWorkers{},
		},
		handler.Middlewares{
			APIKey:    apiKey.Middleware(),
			OwnerAuth: s.auth,
		},
		health,
		logger,
	)
	return s
}

type request struct {
	method  string
	path    string
	body    any
	owner   *models.Owner
	noKey   bool
	headers map[string]string
}

func (s *testServer) do(t *testing.T, r request) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	if r.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(r.body))
	}
	req := httptest.NewRequest(r.method, r.path, &body)
	req.RemoteAddr = "203.0.113.7:5555"
	if r.body != nil {
		req.Header.Set("Content-Type", contentTypeJS)
	}
	if !r.noKey {
		req.Header.Set("X-API-Key", testAPIKey)
	}
	if r.owner != nil {
		token, err := s.auth.Sign(*r.owner, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func tenantOwner(id int64) *models.Owner {
	return &models.Owner{Role: models.RoleTenant, ID: id}
}

func landlordOwner(id int64) *models.Owner {
	return &models.Owner{Role: models.RoleLandlord, ID: id}
}

func (s *testServer) createToken(t *testing.T, tenantID int64) handler.ShareTokenResponse {
	t.Helper()
	w := s.do(t, request{method: http.MethodPost, path: "/api/v1/share-tokens", owner: tenantOwner(tenantID)})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[handler.ShareTokenResponse](t, w)
}

func (s *testServer) createShortlink(t *testing.T, owner *models.Owner, body map[string]any) handler.CreateShortlinkResponse {
	t.Helper()
	w := s.do(t, request{method: http.MethodPost, path: "/api/v1/shortlinks", owner: owner, body: body})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[handler.CreateShortlinkResponse](t, w)
}

// TestShareToken_Lifecycle проверяет выпуск, проверку и отзыв токена через HTTP
func TestShareToken_Lifecycle(t *testing.T) {
	s := setupServer(t, nil)

	token := s.createToken(t, 7)
	assert.Equal(t, int64(7), token.TenantID)
	assert.Equal(t, models.ScopeRentcard, token.Scope)
	assert.Equal(t, models.TokenValid, token.Status)

	w := s.do(t, request{method: http.MethodGet, path: "/api/v1/share-tokens/validate/" + token.Token})
	require.Equal(t, http.StatusOK, w.Code)
	validated := decode[handler.ValidateTokenResponse](t, w)
	assert.Equal(t, models.TokenValid, validated.Status)
	require.NotNil(t, validated.Token)
	assert.Equal(t, token.ID, validated.Token.ID)

	revokePath := "/api/v1/share-tokens/" + strconv.FormatInt(token.ID, 10) + "/revoke"
	w = s.do(t, request{method: http.MethodPatch, path: revokePath, owner: tenantOwner(7)})
	require.Equal(t, http.StatusOK, w.Code)

	// Повторный отзыв не ошибка
	w = s.do(t, request{method: http.MethodPatch, path: revokePath, owner: tenantOwner(7)})
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, request{method: http.MethodGet, path: "/api/v1/share-tokens/validate/" + token.Token})
	require.Equal(t, http.StatusOK, w.Code)
	validated = decode[handler.ValidateTokenResponse](t, w)
	assert.Equal(t, models.TokenRevoked, validated.Status)
	assert.Nil(t, validated.Token)

	w = s.do(t, request{method: http.MethodGet, path: "/api/v1/share-tokens/validate/unknown-token"})
	assert.Equal(t, models.TokenNotFound, decode[handler.ValidateTokenResponse](t, w).Status)
}

// TestShareToken_Create_Rejected проверяет отказы при выпуске токена
func TestShareToken_Create_Rejected(t *testing.T) {
	s := setupServer(t, nil)

	// Арендодатель не выпускает токены
	w := s.do(t, request{method: http.MethodPost, path: "/api/v1/share-tokens", owner: landlordOwner(3)})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Без токена владельца
	w = s.do(t, request{method: http.MethodPost, path: "/api/v1/share-tokens"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Без API ключа
	w = s.do(t, request{method: http.MethodPost, path: "/api/v1/share-tokens", owner: tenantOwner(1), noKey: true})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Неизвестная область
	w = s.do(t, request{
		method: http.MethodPost, path: "/api/v1/share-tokens", owner: tenantOwner(1),
		body: map[string]any{"scope": "everything"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Срок в прошлом
	w = s.do(t, request{
		method: http.MethodPost, path: "/api/v1/share-tokens", owner: tenantOwner(1),
		body: map[string]any{"expires_at": time.Now().Add(-time.Hour)},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_error", decode[handler.ErrorResponse](t, w).Error)
}

// TestShareToken_Revoke_OtherTenant проверяет, что чужой токен отозвать нельзя
func TestShareToken_Revoke_OtherTenant(t *testing.T) {
	s := setupServer(t, nil)
	token := s.createToken(t, 7)

	w := s.do(t, request{
		method: http.MethodPatch,
		path:   "/api/v1/share-tokens/" + strconv.FormatInt(token.ID, 10) + "/revoke",
		owner:  tenantOwner(8),
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, request{method: http.MethodPatch, path: "/api/v1/share-tokens/abc/revoke", owner: tenantOwner(7)})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestShareToken_List проверяет список токенов владельца
func TestShareToken_List(t *testing.T) {
	s := setupServer(t, nil)
	s.createToken(t, 7)
	s.createToken(t, 7)
	s.createToken(t, 8)

	w := s.do(t, request{method: http.MethodGet, path: "/api/v1/share-tokens", owner: tenantOwner(7)})
	require.Equal(t, http.StatusOK, w.Code)
	tokens := decode[[]handler.ShareTokenResponse](t, w)
	assert.Len(t, tokens, 2)
	for _, tok := range tokens {
		assert.Equal(t, int64(7), tok.TenantID)
	}
}

// TestSharedView_Valid проверяет публичный просмотр по токену
func TestSharedView_Valid(t *testing.T) {
	s := setupServer(t, nil)
	token := s.createToken(t, 7)

	w := s.do(t, request{
		method:  http.MethodGet,
		path:    "/s/" + token.Token,
		noKey:   true,
		headers: map[string]string{"User-Agent": iPhoneUA, "CF-IPCountry": "de"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode[handler.SharedRentcardResponse](t, w)
	assert.Equal(t, int64(7), body.TenantID)
	assert.Equal(t, int64(1), body.ViewCount)

	views := s.viewRepo.Views()
	require.Len(t, views, 1)
	assert.Equal(t, models.SourceShareLink, views[0].Source)
	assert.Equal(t, strconv.FormatInt(token.ID, 10), views[0].SourceID)
	assert.Equal(t, models.DeviceMobile, views[0].Metadata.Device.Type)
	assert.Equal(t, "DE", views[0].Metadata.Location.Country)
	assert.True(t, views[0].IsUnique)
	assert.Len(t, views[0].ViewerFingerprint, 64)
}

// TestSharedView_Unavailable проверяет общий ответ для отозванного токена
func TestSharedView_Unavailable(t *testing.T) {
	s := setupServer(t, nil)
	token := s.createToken(t, 7)

	w := s.do(t, request{
		method: http.MethodPatch,
		path:   "/api/v1/share-tokens/" + strconv.FormatInt(token.ID, 10) + "/revoke",
		owner:  tenantOwner(7),
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, request{method: http.MethodGet, path: "/s/" + token.Token, noKey: true})
	assert.Equal(t, http.StatusGone, w.Code)
	resp := decode[handler.ErrorResponse](t, w)
	assert.Equal(t, "link_unavailable", resp.Error)
	assert.Equal(t, "link no longer available", resp.Message)
	assert.Empty(t, s.viewRepo.Views())

	w = s.do(t, request{method: http.MethodGet, path: "/s/does-not-exist", noKey: true})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestShortlink_CreateAndRedirect проверяет создание ссылки и редирект с записью клика
func TestShortlink_CreateAndRedirect(t *testing.T) {
	s := setupServer(t, nil)

	link := s.createShortlink(t, tenantOwner(7), map[string]any{
		"target_url":    "https://myrentcard.test/rentcard/7",
		"channel":       "copy",
		"resource_type": "rentcard",
		"resource_id":   7,
	})
	assert.Equal(t, testBaseURL+"/r/"+link.Slug, link.ShortURL)
	assert.Equal(t, models.ChannelCopy, link.Channel)

	w := s.do(t, request{
		method:  http.MethodGet,
		path:    "/r/" + link.Slug + "?ch=email",
		noKey:   true,
		headers: map[string]string{"User-Agent": desktopUA, "Referer": "https://mail.test/"},
	})
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://myrentcard.test/rentcard/7", w.Header().Get("Location"))
	assert.Contains(t, w.Header().Get("Set-Cookie"), "rc_sid=")

	clicks := s.clickRepo.Clicks()
	require.Len(t, clicks, 1)
	assert.Equal(t, models.ChannelEmail, clicks[0].Channel)
	assert.Equal(t, models.DeviceDesktop, clicks[0].Device.Type)
	assert.Equal(t, "https://mail.test/", clicks[0].Referrer)
	assert.NotEmpty(t, clicks[0].SessionID)

	w = s.do(t, request{
		method: http.MethodGet,
		path:   "/api/v1/shortlinks/" + link.Slug + "/stats",
		owner:  tenantOwner(7),
	})
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[models.ShortlinkStats](t, w)
	assert.Equal(t, int64(1), stats.ClickCount)
	assert.Equal(t, int64(1), stats.UniqueClicks)
}

// TestShortlink_RedirectToSharePage_CountsOnce проверяет, что переход по ссылке на страницу токена даёт один просмотр
func TestShortlink_RedirectToSharePage_CountsOnce(t *testing.T) {
	s := setupServer(t, nil)
	token := s.createToken(t, 7)

	link := s.createShortlink(t, tenantOwner(7), map[string]any{
		"target_url":     "https://myrentcard.test/s/" + token.Token,
		"channel":        "email",
		"resource_type":  "rentcard",
		"resource_id":    7,
		"share_token_id": token.ID,
	})

	w := s.do(t, request{method: http.MethodGet, path: "/r/" + link.Slug, noKey: true})
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())
	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/s/"+token.Token, location.Path)

	w = s.do(t, request{method: http.MethodGet, path: location.Path, noKey: true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, int64(1), decode[handler.SharedRentcardResponse](t, w).ViewCount)

	stored, err := s.tokenRepo.GetByID(context.Background(), token.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.ViewCount)
	assert.Len(t, s.clickRepo.Clicks(), 1)
	assert.Len(t, s.viewRepo.Views(), 1)
}

// TestShortlink_Create_Invalid проверяет валидацию запроса на создание
func TestShortlink_Create_Invalid(t *testing.T) {
	s := setupServer(t, nil)

	valid := func() map[string]any {
		return map[string]any{
			"target_url":    "https://myrentcard.test/p/1",
			"channel":       "qr",
			"resource_type": "property",
			"resource_id":   1,
		}
	}

	tests := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{name: "bad url", mutate: func(b map[string]any) { b["target_url"] = "not a url" }},
		{name: "unknown channel", mutate: func(b map[string]any) { b["channel"] = "fax" }},
		{name: "unknown resource", mutate: func(b map[string]any) { b["resource_type"] = "building" }},
		{name: "missing resource id", mutate: func(b map[string]any) { delete(b, "resource_id") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := valid()
			tt.mutate(body)
			w := s.do(t, request{method: http.MethodPost, path: "/api/v1/shortlinks", owner: landlordOwner(3), body: body})
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

// TestShortlink_Redirect_Unavailable проверяет неизвестную и деактивированную ссылку
func TestShortlink_Redirect_Unavailable(t *testing.T) {
	s := setupServer(t, nil)

	w := s.do(t, request{method: http.MethodGet, path: "/r/nosuchslug", noKey: true})
	assert.Equal(t, http.StatusNotFound, w.Code)

	link := s.createShortlink(t, landlordOwner(3), map[string]any{
		"target_url":    "https://myrentcard.test/p/1",
		"channel":       "sms",
		"resource_type": "property",
		"resource_id":   1,
	})

	// Чужой владелец не может деактивировать
	w = s.do(t, request{method: http.MethodPatch, path: "/api/v1/shortlinks/" + link.Slug + "/deactivate", owner: landlordOwner(4)})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, request{method: http.MethodPatch, path: "/api/v1/shortlinks/" + link.Slug + "/deactivate", owner: landlordOwner(3)})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, request{method: http.MethodGet, path: "/r/" + link.Slug, noKey: true})
	assert.Equal(t, http.StatusGone, w.Code)
	assert.Equal(t, "link no longer available", decode[handler.ErrorResponse](t, w).Message)
	assert.Empty(t, s.clickRepo.Clicks())
}

// TestShortlink_Redirect_RecordingFailure проверяет, что сбой записи не ломает редирект
func TestShortlink_Redirect_RecordingFailure(t *testing.T) {
	s := setupServer(t, nil)
	link := s.createShortlink(t, tenantOwner(7), map[string]any{
		"target_url":    "https://myrentcard.test/rentcard/7",
		"channel":       "copy",
		"resource_type": "rentcard",
		"resource_id":   7,
	})
	s.clickRepo.SetError(errors.New("db down"))

	w := s.do(t, request{method: http.MethodGet, path: "/r/" + link.Slug, noKey: true})
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, int64(1), s.linkRepo.Snapshot()[1].ClickCount)
}

// TestTracking_RecordView проверяет приём события просмотра
func TestTracking_RecordView(t *testing.T) {
	s := setupServer(t, nil)

	w := s.do(t, request{method: http.MethodPost, path: "/api/v1/views", body: map[string]any{
		"tenant_id":          7,
		"viewer_fingerprint": "fp-1",
		"source":             "qr_code",
		"duration_seconds":   45,
		"actions":            []string{"viewed_documents", "contacted"},
	}})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	views := s.viewRepo.Views()
	require.Len(t, views, 1)
	assert.Equal(t, "fp-1", views[0].ViewerFingerprint)
	assert.Equal(t, models.SourceQRCode, views[0].Source)
	assert.Equal(t, int64(45), views[0].Metadata.DurationSeconds)
	assert.Equal(t, []models.ViewAction{models.ActionViewedDocuments, models.ActionContacted}, views[0].Metadata.Actions)
}

// TestTracking_RecordView_Invalid проверяет отклонение невалидных событий до постановки в очередь
func TestTracking_RecordView_Invalid(t *testing.T) {
	s := setupServer(t, nil)

	bodies := map[string]map[string]any{
		"no owner":        {"source": "direct"},
		"unknown source":  {"tenant_id": 7, "source": "billboard"},
		"unknown action":  {"tenant_id": 7, "source": "direct", "actions": []string{"danced"}},
		"negative length": {"tenant_id": 7, "source": "direct", "duration_seconds": -1},
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			w := s.do(t, request{method: http.MethodPost, path: "/api/v1/views", body: body})
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
	assert.Empty(t, s.viewRepo.Views())
}

// TestTracking_ConversionFlow проверяет связку интереса с сессией и исход
func TestTracking_ConversionFlow(t *testing.T) {
	s := setupServer(t, nil)

	for i := 0; i < 2; i++ {
		w := s.do(t, request{method: http.MethodPost, path: "/api/v1/views", body: map[string]any{
			"tenant_id":          7,
			"viewer_fingerprint": "fp-visitor",
			"source":             "share_link",
			"duration_seconds":   60,
		}})
		require.Equal(t, http.StatusAccepted, w.Code)
	}

	w := s.do(t, request{method: http.MethodPost, path: "/api/v1/interests/100/conversion", body: map[string]any{
		"tenant_id":           7,
		"landlord_id":         3,
		"session_fingerprint": "fp-visitor",
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	ia := decode[models.InterestAnalytics](t, w)
	assert.Equal(t, int64(100), ia.InterestID)
	require.NotNil(t, ia.SessionID)
	assert.Equal(t, int64(2), ia.ViewsBeforeInterest)
	assert.Equal(t, 24, ia.EngagementScore)

	// Повтор возвращает ту же строку
	w = s.do(t, request{method: http.MethodPost, path: "/api/v1/interests/100/conversion", body: map[string]any{
		"tenant_id":           7,
		"session_fingerprint": "fp-visitor",
	}})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, ia.ID, decode[models.InterestAnalytics](t, w).ID)
	assert.Len(t, s.interests.All(), 1)

	w = s.do(t, request{method: http.MethodPatch, path: "/api/v1/interests/100/outcome", body: map[string]any{"status": "accepted"}})
	require.Equal(t, http.StatusOK, w.Code)
	updated := decode[models.InterestAnalytics](t, w)
	require.NotNil(t, updated.FinalStatus)
	assert.Equal(t, models.InterestAccepted, *updated.FinalStatus)
	assert.NotNil(t, updated.LandlordResponseTime)

	w = s.do(t, request{method: http.MethodPatch, path: "/api/v1/interests/100/outcome", body: map[string]any{"status": "maybe"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, request{method: http.MethodPatch, path: "/api/v1/interests/999/outcome", body: map[string]any{"status": "rejected"}})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, request{method: http.MethodPost, path: "/api/v1/interests/zero/conversion", body: map[string]any{"tenant_id": 7}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestAnalytics_AggregateAndList проверяет пересчёт бакета и чтение агрегатов
func TestAnalytics_AggregateAndList(t *testing.T) {
	s := setupServer(t, nil)

	for _, fp := range []string{"fp-a", "fp-b", "fp-a"} {
		w := s.do(t, request{method: http.MethodPost, path: "/api/v1/views", body: map[string]any{
			"tenant_id":          7,
			"viewer_fingerprint": fp,
			"source":             "email",
		}})
		require.Equal(t, http.StatusAccepted, w.Code)
	}

	today := time.Now().UTC().Format("2006-01-02")
	w := s.do(t, request{method: http.MethodPost, path: "/api/v1/analytics/tenant/7/aggregate", body: map[string]any{
		"granularity": "daily",
		"date":        today,
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	agg := decode[models.AnalyticsAggregation](t, w)
	assert.Equal(t, int64(3), agg.Metrics.Views)
	assert.Equal(t, int64(2), agg.Metrics.UniqueViews)
	require.Len(t, agg.Metrics.TopSources, 1)
	assert.Equal(t, "email", agg.Metrics.TopSources[0].Key)
	assert.Equal(t, 100.0, agg.Metrics.TopSources[0].Percentage)

	w = s.do(t, request{method: http.MethodGet, path: "/api/v1/analytics/tenant/7"})
	require.Equal(t, http.StatusOK, w.Code)
	rows := decode[[]models.AnalyticsAggregation](t, w)
	require.Len(t, rows, 1)
	assert.Equal(t, agg.Metrics, rows[0].Metrics)

	// Пустой результат отдаётся массивом
	w = s.do(t, request{method: http.MethodGet, path: "/api/v1/analytics/landlord/3?granularity=weekly"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

// TestAnalytics_InvalidParams проверяет валидацию параметров аналитики
func TestAnalytics_InvalidParams(t *testing.T) {
	s := setupServer(t, nil)

	paths := []string{
		"/api/v1/analytics/building/1",
		"/api/v1/analytics/tenant/abc",
		"/api/v1/analytics/tenant/1?granularity=hourly",
		"/api/v1/analytics/tenant/1?from=13.03.2024",
		"/api/v1/analytics/tenant/1?from=2024-03-10&to=2024-03-10",
		"/api/v1/analytics/tenant/1?from=2020-01-01&to=2024-01-01",
	}
	for _, p := range paths {
		w := s.do(t, request{method: http.MethodGet, path: p})
		assert.Equal(t, http.StatusBadRequest, w.Code, p)
	}

	w := s.do(t, request{method: http.MethodPost, path: "/api/v1/analytics/tenant/1/aggregate", body: map[string]any{
		"granularity": "yearly",
		"date":        "2024-03-13",
	}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestHealth проверяет liveness и readiness
func TestHealth(t *testing.T) {
	s := setupServer(t, map[string]handler.Pinger{
		"postgres": stubPinger{},
		"redis":    stubPinger{err: errors.New("connection refused")},
	})

	w := s.do(t, request{method: http.MethodGet, path: "/api/v1/health", noKey: true})
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, request{method: http.MethodGet, path: "/api/v1/ready", noKey: true})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "not_ready", body["status"])
	assert.Equal(t, map[string]any{"postgres": "ok", "redis": "unavailable"}, body["checks"])
	assert.Equal(t, map[string]any{"buffer_size": float64(1000), "buffer_used": float64(12), "worker_count": float64(3)}, body["events"])
}
