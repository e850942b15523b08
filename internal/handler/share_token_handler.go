package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/SergeiKhy/rentcard-share/internal/models"
	"github.com/SergeiKhy/rentcard-share/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ShareTokenHandler struct {
	service service.ShareTokenService
	sink    service.EventSink
	logger  *zap.Logger
}

func NewShareTokenHandler(service service.ShareTokenService, sink service.EventSink, logger *zap.Logger) *ShareTokenHandler {
	return &ShareTokenHandler{
		service: service,
		sink:    sink,
		logger:  logger,
	}
}

type CreateShareTokenRequest struct {
	Scope     string     `json:"scope,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type ShareTokenResponse struct {
	ID           int64              `json:"id"`
	Token        string             `json:"token"`
	TenantID     int64              `json:"tenant_id"`
	Scope        models.ShareScope  `json:"scope"`
	Status       models.TokenStatus `json:"status"`
	ExpiresAt    *time.Time         `json:"expires_at,omitempty"`
	ViewCount    int64              `json:"view_count"`
	LastViewedAt *time.Time         `json:"last_viewed_at,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
}

type ValidateTokenResponse struct {
	Status models.TokenStatus  `json:"status"`
	Token  *ShareTokenResponse `json:"token,omitempty"`
}

// SharedRentcardResponse ответ публичного просмотра по токену
type SharedRentcardResponse struct {
	TenantID  int64             `json:"tenant_id"`
	Scope     models.ShareScope `json:"scope"`
	ViewCount int64             `json:"view_count"`
}

func newShareTokenResponse(t *models.ShareToken) ShareTokenResponse {
	return ShareTokenResponse{
		ID:           t.ID,
		Token:        t.Token,
		TenantID:     t.TenantID,
		Scope:        t.Scope,
		Status:       t.Status(time.Now()),
		ExpiresAt:    t.ExpiresAt,
		ViewCount:    t.ViewCount,
		LastViewedAt: t.LastViewedAt,
		CreatedAt:    t.CreatedAt,
	}
}

// Create godoc
// @Summary Create a share token
// @Description Issue a revocable access token for the tenant's RentCard
// @Tags share-tokens
// @Accept json
// @Produce json
// @Security OwnerToken
// @Param request body CreateShareTokenRequest false "Token options"
// @Success 201 {object} ShareTokenResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /api/v1/share-tokens [post]
func (h *ShareTokenHandler) Create(c *gin.Context) {
	owner, ok := currentOwner(c)
	if !ok {
		return
	}

	var req CreateShareTokenRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.logger.Warn("Invalid request body", zap.Error(err))
			invalidRequest(c, err)
			return
		}
	}
	if req.Scope == "" {
		req.Scope = string(models.ScopeRentcard)
	}

	token, err := h.service.Create(c.Request.Context(), &models.CreateShareTokenInput{
		Scope:     models.ShareScope(req.Scope),
		ExpiresAt: req.ExpiresAt,
		Owner:     owner,
	})
	if err != nil {
		respondError(c, h.logger, err, "create share token")
		return
	}

	c.JSON(http.StatusCreated, newShareTokenResponse(token))
}

// List godoc
// @Summary List share tokens
// @Description List the tenant's share tokens, newest first
// @Tags share-tokens
// @Produce json
// @Security OwnerToken
// @Success 200 {array} ShareTokenResponse
// @Failure 403 {object} ErrorResponse
// @Router /api/v1/share-tokens [get]
func (h *ShareTokenHandler) List(c *gin.Context) {
	owner, ok := currentOwner(c)
	if !ok {
		return
	}

	tokens, err := h.service.ListTokens(c.Request.Context(), owner)
	if err != nil {
		respondError(c, h.logger, err, "list share tokens")
		return
	}

	response := make([]ShareTokenResponse, 0, len(tokens))
	for i := range tokens {
		response = append(response, newShareTokenResponse(&tokens[i]))
	}
	c.JSON(http.StatusOK, response)
}

// Validate godoc
// @Summary Validate a share token
// @Description Report the token status without recording a view
// @Tags share-tokens
// @Produce json
// @Param token path string true "Share token"
// @Success 200 {object} ValidateTokenResponse
// @Router /api/v1/share-tokens/validate/{token} [get]
func (h *ShareTokenHandler) Validate(c *gin.Context) {
	token, err := h.service.Validate(c.Request.Context(), c.Param("token"))
	switch {
	case err == nil:
		resp := newShareTokenResponse(token)
		c.JSON(http.StatusOK, ValidateTokenResponse{Status: models.TokenValid, Token: &resp})
	case errors.Is(err, service.ErrRevoked):
		c.JSON(http.StatusOK, ValidateTokenResponse{Status: models.TokenRevoked})
	case errors.Is(err, service.ErrExpired):
		c.JSON(http.StatusOK, ValidateTokenResponse{Status: models.TokenExpired})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusOK, ValidateTokenResponse{Status: models.TokenNotFound})
	default:
		respondError(c, h.logger, err, "validate share token")
	}
}

// Revoke godoc
// @Summary Revoke a share token
// @Description Revoke the token; repeated calls are no-ops
// @Tags share-tokens
// @Produce json
// @Security OwnerToken
// @Param id path int true "Token ID"
// @Success 200 {object} map[string]string
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/share-tokens/{id}/revoke [patch]
func (h *ShareTokenHandler) Revoke(c *gin.Context) {
	owner, ok := currentOwner(c)
	if !ok {
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_id",
			Message: "Token id must be a positive integer",
		})
		return
	}

	if err := h.service.Revoke(c.Request.Context(), id, owner); err != nil {
		respondError(c, h.logger, err, "revoke share token")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Share token revoked"})
}

// View godoc
// @Summary Open a shared RentCard
// @Description Validate the token, count the view and record it for analytics
// @Tags public
// @Produce json
// @Param token path string true "Share token"
// @Success 200 {object} SharedRentcardResponse
// @Failure 404 {object} ErrorResponse
// @Failure 410 {object} ErrorResponse
// @Router /s/{token} [get]
func (h *ShareTokenHandler) View(c *gin.Context) {
	token, err := h.service.RecordView(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondError(c, h.logger, err, "view shared rentcard")
		return
	}

	// Запись просмотра асинхронная и не влияет на ответ
	tokenID := token.ID
	h.sink.SubmitView(c.Request.Context(), &models.ViewEvent{
		ShareTokenID:      &tokenID,
		TenantID:          token.TenantID,
		ViewerFingerprint: visitorFingerprint(c),
		Source:            models.SourceShareLink,
		SourceID:          strconv.FormatInt(token.ID, 10),
		Metadata: models.ViewMetadata{
			Device:   ParseDevice(c.Request.UserAgent()),
			Location: requestLocation(c),
		},
	})

	c.JSON(http.StatusOK, SharedRentcardResponse{
		TenantID:  token.TenantID,
		Scope:     token.Scope,
		ViewCount: token.ViewCount,
	})
}
