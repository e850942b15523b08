package handler

import (
	"github.com/SergeiKhy/rentcard-share/internal/middleware"
	"github.com/SergeiKhy/rentcard-share/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Services сервисы, которые обслуживает HTTP слой
type Services struct {
	ShareTokens service.ShareTokenService
	Shortlinks  service.ShortlinkService
	Analytics   service.AnalyticsService
	Conversion  service.ConversionService
	Events      service.EventSink
	Workers     WorkerStats // может быть nil
}

// Middlewares apiKey может быть nil, тогда API открыт (локальная разработка)
type Middlewares struct {
	RateLimiter *middleware.RateLimiter
	APIKey      gin.HandlerFunc
	OwnerAuth   *middleware.OwnerAuth
}

func NewRouter(
	svc Services,
	mw Middlewares,
	health map[string]Pinger,
	logger *zap.Logger,
) *gin.Engine {
	registerValidators()

	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.ZapGinLogger(logger),
		gin.Recovery(),
	)

	// Rate limiting для всех запросов
	if mw.RateLimiter != nil {
		router.Use(mw.RateLimiter.Middleware())
	}

	shareTokenHandler := NewShareTokenHandler(svc.ShareTokens, svc.Events, logger)
	shortlinkHandler := NewShortlinkHandler(svc.Shortlinks, logger)
	trackingHandler := NewTrackingHandler(svc.Events, svc.Conversion, logger)
	analyticsHandler := NewAnalyticsHandler(svc.Analytics, logger)
	healthHandler := NewHealthHandler(health, svc.Workers, logger)

	// API v.1
	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", healthHandler.Health)
		v1.GET("/ready", healthHandler.Ready)

		// Применяем API Key middleware только к защищенным эндпоинтам
		if mw.APIKey != nil {
			v1.Use(mw.APIKey)
		}

		v1.GET("/share-tokens/validate/:token", shareTokenHandler.Validate)
		v1.POST("/views", trackingHandler.RecordView)
		v1.POST("/interests/:id/conversion", trackingHandler.LinkInterest)
		v1.PATCH("/interests/:id/outcome", trackingHandler.UpdateOutcome)
		v1.GET("/analytics/:entityType/:entityId", analyticsHandler.List)
		v1.POST("/analytics/:entityType/:entityId/aggregate", analyticsHandler.Aggregate)

		// Мутации от имени владельца
		owner := v1.Group("", mw.OwnerAuth.Middleware())
		{
			owner.POST("/share-tokens", shareTokenHandler.Create)
			owner.GET("/share-tokens", shareTokenHandler.List)
			owner.PATCH("/share-tokens/:id/revoke", shareTokenHandler.Revoke)
			owner.POST("/shortlinks", shortlinkHandler.Create)
			owner.PATCH("/shortlinks/:slug/deactivate", shortlinkHandler.Deactivate)
			owner.GET("/shortlinks/:slug/stats", shortlinkHandler.GetStats)
		}
	}

	// Публичные маршруты без API key
	router.GET("/r/:slug", shortlinkHandler.Redirect)
	router.GET("/s/:token", shareTokenHandler.View)

	return router
}
