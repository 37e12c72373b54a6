package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"career-compass/internal/domain"
	"career-compass/internal/service"
)

// IdentityHandler maneja la identidad de la instancia y la migracion anonima -> cuenta.
type IdentityHandler struct {
	logger    *zap.Logger
	tracker   *service.IdentityTracker
	verifier  *service.TokenVerifier
	migration *service.MigrationService
}

func NewIdentityHandler(logger *zap.Logger, tracker *service.IdentityTracker, verifier *service.TokenVerifier, migration *service.MigrationService) *IdentityHandler {
	return &IdentityHandler{
		logger:    logger,
		tracker:   tracker,
		verifier:  verifier,
		migration: migration,
	}
}

// GetIdentity maneja GET /identity.
func (h *IdentityHandler) GetIdentity(c *gin.Context) {
	id := h.tracker.Current()
	c.JSON(http.StatusOK, gin.H{
		"kind":      id.Kind.String(),
		"subject":   id.Subject,
		"migration": h.migration.Status(),
	})
}

// Authenticate maneja POST /identity: el bearer trae la cuenta emitida por el proveedor externo.
// La primera vez dispara la migracion; un fallo de migracion no deshace la autenticacion.
func (h *IdentityHandler) Authenticate(c *gin.Context) {
	token, ok := bearerToken(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	accountID, err := h.verifier.Verify(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	changed, err := h.tracker.Authenticate(accountID)
	if err != nil {
		writeError(c, h.logger, "could not authenticate", err)
		return
	}

	resp := gin.H{"kind": domain.IdentityAuthenticated.String(), "subject": accountID}
	if changed {
		h.logger.Info("identity authenticated, migrating local data")
		result, err := h.migration.Run(c.Request.Context(), accountID)
		resp["migration_result"] = result
		if err != nil {
			h.logger.Warn("migration failed", zap.Error(err))
		}
	}
	resp["migration"] = h.migration.Status()
	c.JSON(http.StatusOK, resp)
}

// GetMigration maneja GET /migration.
func (h *IdentityHandler) GetMigration(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"migration": h.migration.Status()})
}

// RetryMigration maneja POST /migration/retry.
func (h *IdentityHandler) RetryMigration(c *gin.Context) {
	id := GetIdentity(c)
	if !id.IsAuthenticated() {
		writeError(c, h.logger, "migration requires an account", domain.ErrNotAuthenticated)
		return
	}
	result, err := h.migration.Run(c.Request.Context(), id.Subject)
	if err != nil {
		writeError(c, h.logger, "migration incomplete", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"migration_result": result, "migration": h.migration.Status()})
}
