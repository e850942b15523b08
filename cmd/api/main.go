package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SergeiKhy/rentcard-share/internal/config"
	"github.com/SergeiKhy/rentcard-share/internal/handler"
	"github.com/SergeiKhy/rentcard-share/internal/logger"
	"github.com/SergeiKhy/rentcard-share/internal/middleware"
	"github.com/SergeiKhy/rentcard-share/internal/repository"
	"github.com/SergeiKhy/rentcard-share/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// Загрузка конфига
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	logger := logger.New(cfg.Log)
	defer logger.Sync()

	if cfg.Auth.JWTSecret == "" {
		logger.Fatal("JWT_SECRET is required to verify owner tokens")
	}

	// Подключение к БД (postgres)
	db, err := repository.NewPostgresDB(cfg.DB)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL")

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Migrate(migrateCtx); err != nil {
		cancelMigrate()
		logger.Fatal("Failed to apply schema", zap.Error(err))
	}
	cancelMigrate()

	// Подключение к Redis
	redis, err := repository.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redis.Close()
	logger.Info("Connected to Redis")

	// Инициализация репозиториев
	tokenRepo := repository.NewShareTokenRepository(db)
	linkRepo := repository.NewShortlinkRepository(db)
	clickRepo := repository.NewClickRepository(db)
	viewRepo := repository.NewViewRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	interestRepo := repository.NewInterestRepository(db)
	aggRepo := repository.NewAggregationRepository(db)
	outboxRepo := repository.NewOutboxRepository(redis)

	opts := []service.Option{
		service.WithBaseURL(cfg.App.BaseURL),
		service.WithSessionWindow(cfg.Recorder.SessionWindow),
	}

	// Инициализация процессора событий (Worker Pool)
	recorder := service.NewEventRecorder(clickRepo, viewRepo, sessionRepo, tokenRepo, logger, opts...)
	processor := service.NewEventProcessor(recorder, outboxRepo, logger, service.ProcessorConfig{
		Workers:    cfg.Recorder.Workers,
		BufferSize: cfg.Recorder.BufferSize,
	})
	processor.Start()
	defer processor.Stop()

	// Инициализация сервисов
	services := handler.Services{
		ShareTokens: service.NewShareTokenService(tokenRepo, logger, opts...),
		Shortlinks:  service.NewShortlinkService(linkRepo, tokenRepo, clickRepo, processor, logger, opts...),
		Analytics:   service.NewAnalyticsService(aggRepo, logger, opts...),
		Conversion:  service.NewConversionService(sessionRepo, interestRepo, logger, opts...),
		Events:      processor,
		Workers:     processor,
	}

	// Фоновые задачи: агрегация за прошедший день и повтор outbox
	scheduler := service.NewScheduler(services.Analytics, processor, logger, opts...)
	if err := scheduler.Register(cfg.Jobs.AggregationCron, cfg.Jobs.OutboxReplayCron); err != nil {
		logger.Fatal("Failed to register jobs", zap.Error(err))
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Инициализация middleware
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.BurstSize,
		CleanupInterval:   time.Minute,
	})
	defer rateLimiter.Stop()

	var apiKeyMiddleware gin.HandlerFunc
	if len(cfg.Auth.APIKeys) > 0 {
		apiKeyMiddleware = middleware.RequireAPIKey(cfg.Auth.APIKeys)
		logger.Info("API key authentication enabled", zap.Int("keys_count", len(cfg.Auth.APIKeys)))
	} else {
		logger.Warn("API_KEYS is empty, internal API is open")
	}

	// Настройка роутера
	router := handler.NewRouter(
		services,
		handler.Middlewares{
			RateLimiter: rateLimiter,
			APIKey:      apiKeyMiddleware,
			OwnerAuth:   middleware.NewOwnerAuth(cfg.Auth.JWTSecret),
		},
		map[string]handler.Pinger{
			"postgres": db,
			"redis":    redis,
		},
		logger,
	)

	// Запуск сервера
	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск в горутине
	go func() {
		logger.Info("Server starting", zap.String("port", cfg.App.Port), zap.String("base_url", cfg.App.BaseURL))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
