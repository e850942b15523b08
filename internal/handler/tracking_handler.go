package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/SergeiKhy/rentcard-share/internal/models"
	"github.com/SergeiKhy/rentcard-share/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TrackingHandler запись просмотров и конверсий, присылаемых UI
type TrackingHandler struct {
	sink       service.EventSink
	conversion service.ConversionService
	logger     *zap.Logger
}

func NewTrackingHandler(sink service.EventSink, conversion service.ConversionService, logger *zap.Logger) *TrackingHandler {
	return &TrackingHandler{
		sink:       sink,
		conversion: conversion,
		logger:     logger,
	}
}

// RecordViewRequest если отпечаток не передан, он вычисляется по IP и User-Agent запроса
type RecordViewRequest struct {
	ShareTokenID      *int64     `json:"share_token_id,omitempty" binding:"omitempty,gt=0"`
	TenantID          int64      `json:"tenant_id,omitempty" binding:"omitempty,gt=0"`
	ViewerFingerprint string     `json:"viewer_fingerprint,omitempty" binding:"omitempty,max=128"`
	Source            string     `json:"source" binding:"required,viewsource"`
	SourceID          string     `json:"source_id,omitempty" binding:"omitempty,max=255"`
	DurationSeconds   int64      `json:"duration_seconds" binding:"gte=0"`
	Actions           []string   `json:"actions,omitempty" binding:"omitempty,dive,viewaction"`
	ViewedAt          *time.Time `json:"viewed_at,omitempty"`
}

type LinkInterestRequest struct {
	TenantID           int64  `json:"tenant_id" binding:"required,gt=0"`
	LandlordID         *int64 `json:"landlord_id,omitempty" binding:"omitempty,gt=0"`
	PropertyID         *int64 `json:"property_id,omitempty" binding:"omitempty,gt=0"`
	SessionFingerprint string `json:"session_fingerprint,omitempty" binding:"omitempty,max=128"`
}

type UpdateOutcomeRequest struct {
	Status string `json:"status" binding:"required,intereststatus"`
}

// RecordView godoc
// @Summary Record a RentCard view
// @Description Accept a view event for asynchronous recording
// @Tags tracking
// @Accept json
// @Produce json
// @Param request body RecordViewRequest true "View event"
// @Success 202 {object} map[string]string
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/views [post]
func (h *TrackingHandler) RecordView(c *gin.Context) {
	var req RecordViewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", zap.Error(err))
		invalidRequest(c, err)
		return
	}
	// Запись асинхронная, поэтому обязательные поля проверяются до постановки в очередь
	if req.ShareTokenID == nil && req.TenantID == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "share_token_id or tenant_id is required",
		})
		return
	}

	fingerprint := req.ViewerFingerprint
	if fingerprint == "" {
		fingerprint = visitorFingerprint(c)
	}

	actions := make([]models.ViewAction, 0, len(req.Actions))
	for _, a := range req.Actions {
		actions = append(actions, models.ViewAction(a))
	}

	event := &models.ViewEvent{
		ShareTokenID:      req.ShareTokenID,
		TenantID:          req.TenantID,
		ViewerFingerprint: fingerprint,
		Source:            models.ViewSource(req.Source),
		SourceID:          req.SourceID,
		Metadata: models.ViewMetadata{
			Device:          ParseDevice(c.Request.UserAgent()),
			Location:        requestLocation(c),
			DurationSeconds: req.DurationSeconds,
			Actions:         actions,
		},
	}
	if req.ViewedAt != nil {
		event.OccurredAt = *req.ViewedAt
	}

	h.sink.SubmitView(c.Request.Context(), event)

	c.JSON(http.StatusAccepted, gin.H{"message": "View accepted"})
}

// LinkInterest godoc
// @Summary Link an interest to the viewing session
// @Description Create interest analytics and mark the visitor's latest session converted
// @Tags tracking
// @Accept json
// @Produce json
// @Param id path int true "Interest ID"
// @Param request body LinkInterestRequest true "Interest context"
// @Success 201 {object} models.InterestAnalytics
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/interests/{id}/conversion [post]
func (h *TrackingHandler) LinkInterest(c *gin.Context) {
	interestID, ok := interestIDParam(c)
	if !ok {
		return
	}

	var req LinkInterestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", zap.Error(err))
		invalidRequest(c, err)
		return
	}

	fingerprint := req.SessionFingerprint
	if fingerprint == "" {
		fingerprint = visitorFingerprint(c)
	}

	ia, err := h.conversion.LinkInterestToSession(c.Request.Context(), &models.LinkInterestInput{
		InterestID:         interestID,
		SessionFingerprint: fingerprint,
		TenantID:           req.TenantID,
		LandlordID:         req.LandlordID,
		PropertyID:         req.PropertyID,
	})
	if err != nil {
		respondError(c, h.logger, err, "link interest")
		return
	}

	c.JSON(http.StatusCreated, ia)
}

// UpdateOutcome godoc
// @Summary Update interest outcome
// @Description Set the final status and landlord response time
// @Tags tracking
// @Accept json
// @Produce json
// @Param id path int true "Interest ID"
// @Param request body UpdateOutcomeRequest true "Outcome"
// @Success 200 {object} models.InterestAnalytics
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/interests/{id}/outcome [patch]
func (h *TrackingHandler) UpdateOutcome(c *gin.Context) {
	interestID, ok := interestIDParam(c)
	if !ok {
		return
	}

	var req UpdateOutcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", zap.Error(err))
		invalidRequest(c, err)
		return
	}

	ia, err := h.conversion.UpdateInterestOutcome(c.Request.Context(), interestID, models.InterestStatus(req.Status))
	if err != nil {
		respondError(c, h.logger, err, "update interest outcome")
		return
	}

	c.JSON(http.StatusOK, ia)
}

func interestIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_id",
			Message: "Interest id must be a positive integer",
		})
		return 0, false
	}
	return id, true
}
