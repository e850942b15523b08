package handler

import (
	"errors"
	"net/http"

	"github.com/SergeiKhy/rentcard-share/internal/middleware"
	"github.com/SergeiKhy/rentcard-share/internal/models"
	"github.com/SergeiKhy/rentcard-share/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Общее сообщение для отозванных, истёкших и деактивированных ресурсов.
// Причина недоступности наружу не раскрывается.
const msgUnavailable = "link no longer available"

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// respondError переводит ошибку сервиса в HTTP ответ; неожиданные ошибки логируются
func respondError(c *gin.Context, logger *zap.Logger, err error, op string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "forbidden",
			Message: "Not allowed for this owner",
		})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Resource not found",
		})
	case errors.Is(err, service.ErrRevoked),
		errors.Is(err, service.ErrExpired),
		errors.Is(err, service.ErrInactive):
		c.JSON(http.StatusGone, ErrorResponse{
			Error:   "link_unavailable",
			Message: msgUnavailable,
		})
	default:
		logger.Error("Request failed",
			zap.String("op", op),
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Internal server error",
		})
	}
}

func invalidRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "invalid_request",
		Message: err.Error(),
	})
}

// currentOwner достаёт владельца, положенного OwnerAuth. Отсутствие владельца значит,
// что маршрут подключён без OwnerAuth.
func currentOwner(c *gin.Context) (models.Owner, bool) {
	owner, ok := middleware.OwnerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_owner_token",
			Message: "Owner token is required",
		})
	}
	return owner, ok
}
