package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"career-compass/internal/domain"
)

// statusFor traduce errores de dominio a codigos HTTP.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnknownModule), errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrModuleKindMismatch):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrAnalysisFailed):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrIdentityConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRemoteUnavailable), errors.Is(err, domain.ErrMigrationIncomplete):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, logger *zap.Logger, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(msg, zap.Error(err), zap.String("path", c.FullPath()))
		c.JSON(status, gin.H{"error": msg})
		return
	}
	logger.Warn(msg, zap.Error(err), zap.String("path", c.FullPath()))
	c.JSON(status, gin.H{"error": err.Error()})
}
