package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/SergeiKhy/rentcard-share/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const readinessTimeout = 2 * time.Second

// Pinger зависимость, доступность которой проверяет readiness
type Pinger interface {
	Ping(ctx context.Context) error
}

// WorkerStats заполненность очереди событий
type WorkerStats interface {
	GetChannelStats() service.ChannelStats
}

type HealthHandler struct {
	deps    map[string]Pinger
	workers WorkerStats
	logger  *zap.Logger
}

// NewHealthHandler workers может быть nil
func NewHealthHandler(deps map[string]Pinger, workers WorkerStats, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{deps: deps, workers: workers, logger: logger}
}

// Health godoc
// @Summary Liveness probe
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/v1/health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready godoc
// @Summary Readiness probe
// @Description Ping PostgreSQL and Redis, report event queue usage
// @Tags health
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 503 {object} map[string]any
// @Router /api/v1/ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.deps))
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			h.logger.Warn("Dependency not ready", zap.String("dependency", name), zap.Error(err))
			checks[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	result := "ready"
	if status != http.StatusOK {
		result = "not_ready"
	}
	body := gin.H{"status": result, "checks": checks}
	if h.workers != nil {
		body["events"] = h.workers.GetChannelStats()
	}
	c.JSON(status, body)
}
