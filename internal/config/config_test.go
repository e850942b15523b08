package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseAPIKeys проверяет разбор списка API ключей
func TestParseAPIKeys(t *testing.T) {
	keys := parseAPIKeys("k1:frontend, k2 : admin ,broken")

	assert.Len(t, keys, 2)
	assert.Equal(t, "frontend", keys["k1"])
	assert.Equal(t, "admin", keys["k2"])
	assert.Empty(t, parseAPIKeys(""))
}

// TestLoad_Defaults проверяет значения по умолчанию без .env
func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("RECORDER_WORKERS", "7")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Recorder.Workers)
	assert.Equal(t, 30*time.Minute, cfg.Recorder.SessionWindow)
	assert.Equal(t, "15 0 * * *", cfg.Jobs.AggregationCron)
	assert.Equal(t, 10.0, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, "http://localhost:8080", cfg.App.BaseURL)
}
