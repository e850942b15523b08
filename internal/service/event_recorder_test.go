package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SergeiKhy/rentcard-share/internal/models"
	"github.com/SergeiKhy/rentcard-share/internal/service"
)

func viewEvent(tenantID int64, fingerprint string) *models.ViewEvent {
	return &models.ViewEvent{
		TenantID:          tenantID,
		ViewerFingerprint: fingerprint,
		Source:            models.SourceDirect,
		Metadata: models.ViewMetadata{
			Device:          models.DeviceInfo{Type: models.DeviceMobile},
			Location:        models.LocationInfo{Country: "US"},
			DurationSeconds: 60,
		},
	}
}

// TestEventRecorder_RecordRentcardView_FirstSeenUnique проверяет уникальность по первому появлению
func TestEventRecorder_RecordRentcardView_FirstSeenUnique(t *testing.T) {
	env := setupTestEnv()
	ctx := context.Background()

	first, err := env.recorder.RecordRentcardView(ctx, viewEvent(1, "fp-a"))
	require.NoError(t, err)
	assert.True(t, first.IsUnique)
	assert.Equal(t, testNow, first.ViewedAt)

	second, err := env.recorder.RecordRentcardView(ctx, viewEvent(1, "fp-a"))
	require.NoError(t, err)
	assert.False(t, second.IsUnique)

	// Другой арендатор и другой отпечаток считаются отдельно
	other, err := env.recorder.RecordRentcardView(ctx, viewEvent(2, "fp-a"))
	require.NoError(t, err)
	assert.True(t, other.IsUnique)

	another, err := env.recorder.RecordRentcardView(ctx, viewEvent(1, "fp-b"))
	require.NoError(t, err)
	assert.True(t, another.IsUnique)
}

// TestEventRecorder_RecordRentcardView_TokenOwner проверяет арендатора, взятого из токена
func TestEventRecorder_RecordRentcardView_TokenOwner(t *testing.T) {
	env := setupTestEnv()
	ctx := context.Background()

	token := env.createToken(5, nil)
	event := viewEvent(0, "fp")
	event.ShareTokenID = &token.ID
	event.Source = models.SourceShareLink

	view, err := env.recorder.RecordRentcardView(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, int64(5), view.TenantID)
	assert.True(t, view.IsUnique)

	missing := viewEvent(0, "fp")
	missing.ShareTokenID = ptr(int64(999))
	_, err = env.recorder.RecordRentcardView(ctx, missing)
	assert.ErrorIs(t, err, service.ErrNotFound)
}

// TestEventRecorder_RecordRentcardView_TokenTenantMismatch проверяет, что арендатор из запроса не перебивает токен
func TestEventRecorder_RecordRentcardView_TokenTenantMismatch(t *testing.T) {
	env := setupTestEnv()
	ctx := context.Background()

	token := env.createToken(1, nil)

	foreign := viewEvent(2, "fp")
	foreign.ShareTokenID = &token.ID
	view, err := env.recorder.RecordRentcardView(ctx, foreign)
	assert.ErrorIs(t, err, service.ErrValidation)
	assert.Nil(t, view)
	assert.Empty(t, env.viewRepo.Views())
	assert.Empty(t, env.sessionRepo.Sessions())

	// Совпадающий арендатор принимается
	own := viewEvent(1, "fp")
	own.ShareTokenID = &token.ID
	view, err = env.recorder.RecordRentcardView(ctx, own)
	require.NoError(t, err)
	assert.Equal(t, int64(1), view.TenantID)
}

// TestEventRecorder_RecordRentcardView_Validation проверяет отклонение некорректных событий
func TestEventRecorder_RecordRentcardView_Validation(t *testing.T) {
	env := setupTestEnv()
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(e *models.ViewEvent)
	}{
		{"unknown source", func(e *models.ViewEvent) { e.Source = "billboard" }},
		{"no fingerprint", func(e *models.ViewEvent) { e.ViewerFingerprint = "" }},
		{"no owner", func(e *models.ViewEvent) { e.TenantID = 0 }},
		{"unknown action", func(e *models.ViewEvent) { e.Metadata.Actions = []models.ViewAction{"printed"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := viewEvent(1, "fp")
			tt.mutate(event)

			view, err := env.recorder.RecordRentcardView(ctx, event)
			assert.ErrorIs(t, err, service.ErrValidation)
			assert.Nil(t, view)
		})
	}
	assert.Empty(t, env.viewRepo.Views())
}

// TestEventRecorder_RecordRentcardView_StoreFailure проверяет ошибку записи
func TestEventRecorder_RecordRentcardView_StoreFailure(t *testing.T) {
	env := setupTestEnv()
	env.viewRepo.SetError(errors.New("connection refused"))

	_, err := env.recorder.RecordRentcardView(context.Background(), viewEvent(1, "fp"))
	assert.ErrorIs(t, err, service.ErrRecordingFailure)
	assert.Empty(t, env.sessionRepo.Sessions())
}

// TestEventRecorder_Sessions проверяет продление сессии внутри окна и новую сессию после
func TestEventRecorder_Sessions(t *testing.T) {
	env := setupTestEnv()
	ctx := context.Background()

	_, err := env.recorder.RecordRentcardView(ctx, viewEvent(1, "fp"))
	require.NoError(t, err)

	env.clock.Advance(10 * time.Minute)
	_, err = env.recorder.RecordRentcardView(ctx, viewEvent(1, "fp"))
	require.NoError(t, err)

	sessions := env.sessionRepo.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, int64(2), sessions[0].TotalViews)
	assert.Equal(t, int64(120), sessions[0].TotalDuration)
	assert.Equal(t, testNow, sessions[0].StartTime)
	assert.Equal(t, testNow.Add(10*time.Minute), sessions[0].EndTime)

	// Окно отсчитывается от последнего просмотра
	env.clock.Advance(31 * time.Minute)
	_, err = env.recorder.RecordRentcardView(ctx, viewEvent(1, "fp"))
	require.NoError(t, err)

	sessions = env.sessionRepo.Sessions()
	require.Len(t, sessions, 2)
	assert.Equal(t, int64(1), sessions[1].TotalViews)
	assert.Equal(t, testNow.Add(41*time.Minute), sessions[1].StartTime)
}

// TestEventRecorder_Sessions_PerTenant проверяет, что один отпечаток ведёт отдельные сессии у разных арендаторов
func TestEventRecorder_Sessions_PerTenant(t *testing.T) {
	env := setupTestEnv()
	ctx := context.Background()

	_, err := env.recorder.RecordRentcardView(ctx, viewEvent(1, "fp"))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		env.clock.Advance(time.Minute)
		_, err = env.recorder.RecordRentcardView(ctx, viewEvent(2, "fp"))
		require.NoError(t, err)
	}

	sessions := env.sessionRepo.Sessions()
	require.Len(t, sessions, 2)
	assert.Equal(t, int64(1), sessions[0].TenantID)
	assert.Equal(t, int64(1), sessions[0].TotalViews)
	assert.Equal(t, int64(2), sessions[1].TenantID)
	assert.Equal(t, int64(3), sessions[1].TotalViews)
}

// TestEventRecorder_Sessions_CustomWindow проверяет настраиваемое окно сессии
func TestEventRecorder_Sessions_CustomWindow(t *testing.T) {
	env := setupTestEnv(service.WithSessionWindow(5 * time.Minute))
	ctx := context.Background()

	_, err := env.recorder.RecordRentcardView(ctx, viewEvent(1, "fp"))
	require.NoError(t, err)
	env.clock.Advance(6 * time.Minute)
	_, err = env.recorder.RecordRentcardView(ctx, viewEvent(1, "fp"))
	require.NoError(t, err)

	assert.Len(t, env.sessionRepo.Sessions(), 2)
}

// TestEventRecorder_RecordShortlinkClick проверяет запись клика
func TestEventRecorder_RecordShortlinkClick(t *testing.T) {
	env := setupTestEnv()
	ctx := context.Background()

	occurred := testNow.Add(-time.Minute)
	click, err := env.recorder.RecordShortlinkClick(ctx, &models.ClickEvent{
		ShortlinkID: 1,
		Channel:     models.ChannelSMS,
		Fingerprint: "fp",
		OccurredAt:  occurred,
	})
	require.NoError(t, err)
	assert.True(t, click.IsUnique)
	assert.Equal(t, occurred, click.ClickedAt)

	_, err = env.recorder.RecordShortlinkClick(ctx, &models.ClickEvent{ShortlinkID: 1})
	assert.ErrorIs(t, err, service.ErrValidation)
}
