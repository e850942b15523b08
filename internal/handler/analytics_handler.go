package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/SergeiKhy/rentcard-share/internal/models"
	"github.com/SergeiKhy/rentcard-share/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	dateLayout       = "2006-01-02"
	defaultRangeDays = 30
	maxRangeDays     = 366
)

type AnalyticsHandler struct {
	service service.AnalyticsService
	logger  *zap.Logger
	now     func() time.Time
}

func NewAnalyticsHandler(service service.AnalyticsService, logger *zap.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		service: service,
		logger:  logger,
		now:     time.Now,
	}
}

type AggregateRequest struct {
	Granularity string `json:"granularity" binding:"required,oneof=daily weekly monthly"`
	Date        string `json:"date" binding:"required,datetime=2006-01-02"`
}

// List godoc
// @Summary List analytics aggregations
// @Description Stored aggregation rows for the entity, bucket starts in [from, to)
// @Tags analytics
// @Produce json
// @Param entityType path string true "tenant, landlord or property"
// @Param entityId path int true "Entity ID"
// @Param granularity query string false "daily, weekly or monthly" default(daily)
// @Param from query string false "YYYY-MM-DD, default 30 days ago"
// @Param to query string false "YYYY-MM-DD exclusive, default tomorrow"
// @Success 200 {array} models.AnalyticsAggregation
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/analytics/{entityType}/{entityId} [get]
func (h *AnalyticsHandler) List(c *gin.Context) {
	entity, ok := entityParam(c)
	if !ok {
		return
	}

	granularity := models.Granularity(c.DefaultQuery("granularity", string(models.Daily)))

	today := models.Daily.BucketStart(h.now())
	to := today.AddDate(0, 0, 1)
	from := to.AddDate(0, 0, -defaultRangeDays)

	var err error
	if v := c.Query("from"); v != "" {
		if from, err = time.Parse(dateLayout, v); err != nil {
			invalidRequest(c, fmt.Errorf("from must be YYYY-MM-DD"))
			return
		}
	}
	if v := c.Query("to"); v != "" {
		if to, err = time.Parse(dateLayout, v); err != nil {
			invalidRequest(c, fmt.Errorf("to must be YYYY-MM-DD"))
			return
		}
	}
	if to.Sub(from) > maxRangeDays*24*time.Hour {
		invalidRequest(c, fmt.Errorf("range must not exceed %d days", maxRangeDays))
		return
	}

	rows, err := h.service.List(c.Request.Context(), entity, granularity, from, to)
	if err != nil {
		respondError(c, h.logger, err, "list aggregations")
		return
	}
	if rows == nil {
		rows = []models.AnalyticsAggregation{}
	}

	c.JSON(http.StatusOK, rows)
}

// Aggregate godoc
// @Summary Recompute an aggregation bucket
// @Description Rebuild the bucket containing date from raw events and overwrite the stored row
// @Tags analytics
// @Accept json
// @Produce json
// @Param entityType path string true "tenant, landlord or property"
// @Param entityId path int true "Entity ID"
// @Param request body AggregateRequest true "Bucket"
// @Success 200 {object} models.AnalyticsAggregation
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/analytics/{entityType}/{entityId}/aggregate [post]
func (h *AnalyticsHandler) Aggregate(c *gin.Context) {
	entity, ok := entityParam(c)
	if !ok {
		return
	}

	var req AggregateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", zap.Error(err))
		invalidRequest(c, err)
		return
	}

	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		invalidRequest(c, err)
		return
	}

	agg, err := h.service.Aggregate(c.Request.Context(), entity, models.Granularity(req.Granularity), date)
	if err != nil {
		respondError(c, h.logger, err, "aggregate")
		return
	}

	c.JSON(http.StatusOK, agg)
}

func entityParam(c *gin.Context) (models.EntityRef, bool) {
	entityType := models.EntityType(c.Param("entityType"))
	if !entityType.Valid() {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_entity",
			Message: "Entity type must be tenant, landlord or property",
		})
		return models.EntityRef{}, false
	}

	id, err := strconv.ParseInt(c.Param("entityId"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_id",
			Message: "Entity id must be a positive integer",
		})
		return models.EntityRef{}, false
	}

	return models.EntityRef{Type: entityType, ID: id}, true
}
