package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Recorder  RecorderConfig
	Jobs      JobsConfig
	Log       LogConfig
}

type AppConfig struct {
	Port    string
	BaseURL string // Базовый адрес для построения коротких ссылок
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
}

type AuthConfig struct {
	APIKeys   map[string]string // API key -> name/description
	JWTSecret string
}

type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// RecorderConfig параметры пайплайна записи событий
type RecorderConfig struct {
	Workers       int
	BufferSize    int
	SessionWindow time.Duration
}

// JobsConfig расписания фоновых задач (cron-выражения)
type JobsConfig struct {
	AggregationCron  string
	OutboxReplayCron string
}

type LogConfig struct {
	Level      string
	Path       string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()
	setDefaults()

	// .env опционален, переменные окружения имеют приоритет
	if _, err := os.Stat(".env"); err == nil {
		if err := viper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	cfg.App.Port = viper.GetString("APP_PORT")
	cfg.App.BaseURL = strings.TrimRight(viper.GetString("APP_BASE_URL"), "/")
	cfg.DB.Host = viper.GetString("DB_HOST")
	cfg.DB.Port = viper.GetString("DB_PORT")
	cfg.DB.User = viper.GetString("DB_USER")
	cfg.DB.Password = viper.GetString("DB_PASSWORD")
	cfg.DB.Name = viper.GetString("DB_NAME")
	cfg.Redis.Host = viper.GetString("REDIS_HOST")
	cfg.Redis.Port = viper.GetString("REDIS_PORT")
	cfg.Redis.Password = viper.GetString("REDIS_PASSWORD")

	// Auth config - parse API keys from comma-separated string
	// Format: key1:name1,key2:name2
	apiKeysRaw := viper.GetString("API_KEYS")
	cfg.Auth.APIKeys = parseAPIKeys(apiKeysRaw)
	cfg.Auth.JWTSecret = viper.GetString("JWT_SECRET")

	// Rate limit config
	cfg.RateLimit.RequestsPerSecond = viper.GetFloat64("RATE_LIMIT_RPS")
	cfg.RateLimit.BurstSize = viper.GetInt("RATE_LIMIT_BURST")

	cfg.Recorder.Workers = viper.GetInt("RECORDER_WORKERS")
	cfg.Recorder.BufferSize = viper.GetInt("RECORDER_BUFFER")
	cfg.Recorder.SessionWindow = viper.GetDuration("SESSION_WINDOW")

	cfg.Jobs.AggregationCron = viper.GetString("AGGREGATION_CRON")
	cfg.Jobs.OutboxReplayCron = viper.GetString("OUTBOX_REPLAY_CRON")

	cfg.Log.Level = viper.GetString("LOG_LEVEL")
	cfg.Log.Path = viper.GetString("LOG_PATH")
	cfg.Log.MaxSize = viper.GetInt("LOG_MAX_SIZE")
	cfg.Log.MaxBackups = viper.GetInt("LOG_MAX_BACKUPS")
	cfg.Log.MaxAge = viper.GetInt("LOG_MAX_AGE")
	cfg.Log.Compress = viper.GetBool("LOG_COMPRESS")

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("APP_PORT", "8080")
	viper.SetDefault("APP_BASE_URL", "http://localhost:8080")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("RATE_LIMIT_RPS", 10)
	viper.SetDefault("RATE_LIMIT_BURST", 20)
	viper.SetDefault("RECORDER_WORKERS", 3)
	viper.SetDefault("RECORDER_BUFFER", 1000)
	viper.SetDefault("SESSION_WINDOW", "30m")
	viper.SetDefault("AGGREGATION_CRON", "15 0 * * *")
	viper.SetDefault("OUTBOX_REPLAY_CRON", "*/5 * * * *")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_PATH", "logs/rentcard-share.log")
	viper.SetDefault("LOG_MAX_SIZE", 10)
	viper.SetDefault("LOG_MAX_BACKUPS", 5)
	viper.SetDefault("LOG_MAX_AGE", 7)
}

// parseAPIKeys parses comma-separated API keys in format "key1:name1,key2:name2"
func parseAPIKeys(raw string) map[string]string {
	keys := make(map[string]string)
	if raw == "" {
		return keys
	}

	pairs := strings.Split(raw, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) == 2 {
			keys[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}

	return keys
}
