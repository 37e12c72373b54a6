package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"career-compass/internal/domain"
	"career-compass/internal/service"
)

// AccountHandler borra datos del owner: el propio (DELETE /data) o una cuenta (admin).
type AccountHandler struct {
	logger   *zap.Logger
	accounts *service.AccountService
}

func NewAccountHandler(logger *zap.Logger, accounts *service.AccountService) *AccountHandler {
	return &AccountHandler{logger: logger, accounts: accounts}
}

// EraseOwn maneja DELETE /data para la identidad activa.
func (h *AccountHandler) EraseOwn(c *gin.Context) {
	h.erase(c, GetIdentity(c))
}

// EraseAccount maneja DELETE /admin/accounts/:accountID.
func (h *AccountHandler) EraseAccount(c *gin.Context) {
	accountID := strings.TrimSpace(c.Param("accountID"))
	if accountID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account id is required"})
		return
	}
	h.erase(c, domain.AuthenticatedIdentity(accountID))
}

func (h *AccountHandler) erase(c *gin.Context, id domain.Identity) {
	counts, err := h.accounts.Erase(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, "could not erase data", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"erased": counts, "total": counts.Total()})
}
