package handler

import (
	"net/http"
	"time"

	"github.com/SergeiKhy/rentcard-share/internal/models"
	"github.com/SergeiKhy/rentcard-share/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ShortlinkHandler struct {
	service service.ShortlinkService
	logger  *zap.Logger
}

func NewShortlinkHandler(service service.ShortlinkService, logger *zap.Logger) *ShortlinkHandler {
	return &ShortlinkHandler{
		service: service,
		logger:  logger,
	}
}

type CreateShortlinkRequest struct {
	TargetURL    string     `json:"target_url" binding:"required,url"`
	Channel      string     `json:"channel" binding:"required,channel"`
	ResourceType string     `json:"resource_type" binding:"required,resourcetype"`
	ResourceID   int64      `json:"resource_id" binding:"required,gt=0"`
	ShareTokenID *int64     `json:"share_token_id,omitempty" binding:"omitempty,gt=0"`
	PropertyID   *int64     `json:"property_id,omitempty" binding:"omitempty,gt=0"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

type CreateShortlinkResponse struct {
	Slug         string              `json:"slug"`
	ShortURL     string              `json:"short_url"`
	TargetURL    string              `json:"target_url"`
	Channel      models.Channel      `json:"channel"`
	ResourceType models.ResourceType `json:"resource_type"`
	ResourceID   int64               `json:"resource_id"`
	ShareTokenID *int64              `json:"share_token_id,omitempty"`
	ExpiresAt    *time.Time          `json:"expires_at,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
}

// Create godoc
// @Summary Create a shortlink
// @Description Create a channel-attributed shortlink for a RentCard or property
// @Tags shortlinks
// @Accept json
// @Produce json
// @Security OwnerToken
// @Param request body CreateShortlinkRequest true "Shortlink creation request"
// @Success 201 {object} CreateShortlinkResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 410 {object} ErrorResponse
// @Router /api/v1/shortlinks [post]
func (h *ShortlinkHandler) Create(c *gin.Context) {
	owner, ok := currentOwner(c)
	if !ok {
		return
	}

	var req CreateShortlinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", zap.Error(err))
		invalidRequest(c, err)
		return
	}

	link, err := h.service.CreateShortlink(c.Request.Context(), &models.CreateShortlinkInput{
		TargetURL:    req.TargetURL,
		Channel:      models.Channel(req.Channel),
		ResourceType: models.ResourceType(req.ResourceType),
		ResourceID:   req.ResourceID,
		ShareTokenID: req.ShareTokenID,
		PropertyID:   req.PropertyID,
		ExpiresAt:    req.ExpiresAt,
		Owner:        owner,
	})
	if err != nil {
		respondError(c, h.logger, err, "create shortlink")
		return
	}

	c.JSON(http.StatusCreated, CreateShortlinkResponse{
		Slug:         link.Slug,
		ShortURL:     h.service.ShortURL(link.Slug),
		TargetURL:    link.TargetURL,
		Channel:      link.Channel,
		ResourceType: link.ResourceType,
		ResourceID:   link.ResourceID,
		ShareTokenID: link.ShareTokenID,
		ExpiresAt:    link.ExpiresAt,
		CreatedAt:    link.CreatedAt,
	})
}

// Redirect godoc
// @Summary Follow a shortlink
// @Description Redirect to the target URL and record the click for analytics
// @Tags public
// @Param slug path string true "Shortlink slug"
// @Param ch query string false "Channel the click came through"
// @Success 302
// @Failure 404 {object} ErrorResponse
// @Failure 410 {object} ErrorResponse
// @Router /r/{slug} [get]
func (h *ShortlinkHandler) Redirect(c *gin.Context) {
	req := &models.ResolveRequest{
		Slug:        c.Param("slug"),
		Channel:     models.Channel(c.Query("ch")),
		Fingerprint: visitorFingerprint(c),
		Device:      ParseDevice(c.Request.UserAgent()),
		Location:    requestLocation(c),
		Referrer:    c.Request.Referer(),
		SessionID:   browserSession(c),
	}

	link, err := h.service.Resolve(c.Request.Context(), req)
	if err != nil {
		h.logger.Debug("Shortlink not resolved", zap.String("slug", req.Slug), zap.Error(err))
		respondError(c, h.logger, err, "resolve shortlink")
		return
	}

	c.Redirect(http.StatusFound, link.TargetURL)
}

// Deactivate godoc
// @Summary Deactivate a shortlink
// @Description Stop resolving the shortlink; counters are kept
// @Tags shortlinks
// @Produce json
// @Security OwnerToken
// @Param slug path string true "Shortlink slug"
// @Success 200 {object} map[string]string
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/shortlinks/{slug}/deactivate [patch]
func (h *ShortlinkHandler) Deactivate(c *gin.Context) {
	owner, ok := currentOwner(c)
	if !ok {
		return
	}

	slug := c.Param("slug")
	if err := h.service.Deactivate(c.Request.Context(), slug, owner); err != nil {
		respondError(c, h.logger, err, "deactivate shortlink")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Shortlink deactivated"})
}

// GetStats godoc
// @Summary Get shortlink statistics
// @Description Click counter, recorded and unique clicks, channel breakdown
// @Tags shortlinks
// @Produce json
// @Security OwnerToken
// @Param slug path string true "Shortlink slug"
// @Success 200 {object} models.ShortlinkStats
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/shortlinks/{slug}/stats [get]
func (h *ShortlinkHandler) GetStats(c *gin.Context) {
	owner, ok := currentOwner(c)
	if !ok {
		return
	}

	stats, err := h.service.GetStats(c.Request.Context(), c.Param("slug"), owner)
	if err != nil {
		respondError(c, h.logger, err, "shortlink stats")
		return
	}

	c.JSON(http.StatusOK, stats)
}
