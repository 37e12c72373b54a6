package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"career-compass/internal/domain"
	"career-compass/internal/modules"
	"career-compass/internal/service"
)

// SessionHandler expone el catalogo de modulos y las sesiones de cada uno.
type SessionHandler struct {
	logger    *zap.Logger
	catalog   *modules.Catalog
	sessions  *service.SessionManager
	snapshots *service.ValueSnapshotService
	limiter   service.AnalysisRateLimiter
}

func NewSessionHandler(logger *zap.Logger, catalog *modules.Catalog, sessions *service.SessionManager, snapshots *service.ValueSnapshotService, limiter service.AnalysisRateLimiter) *SessionHandler {
	return &SessionHandler{
		logger:    logger,
		catalog:   catalog,
		sessions:  sessions,
		snapshots: snapshots,
		limiter:   limiter,
	}
}

// ListModules maneja GET /modules.
func (h *SessionHandler) ListModules(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"modules": h.catalog.All()})
}

// Enter maneja POST /modules/:moduleID/enter.
func (h *SessionHandler) Enter(c *gin.Context) {
	entry, err := h.sessions.Enter(c.Request.Context(), GetIdentity(c), c.Param("moduleID"))
	if err != nil {
		writeError(c, h.logger, "could not enter module", err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// ListSessions maneja GET /modules/:moduleID/sessions.
func (h *SessionHandler) ListSessions(c *gin.Context) {
	list, err := h.sessions.ListSessions(c.Request.Context(), GetIdentity(c), c.Param("moduleID"))
	if err != nil {
		writeError(c, h.logger, "could not list sessions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": list})
}

// StartSession maneja POST /modules/:moduleID/sessions.
func (h *SessionHandler) StartSession(c *gin.Context) {
	sid, err := h.sessions.StartNew(c.Request.Context(), GetIdentity(c), c.Param("moduleID"))
	if err != nil {
		writeError(c, h.logger, "could not start session", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session_id": sid})
}

// Resume maneja GET /modules/:moduleID/sessions/:sessionID.
func (h *SessionHandler) Resume(c *gin.Context) {
	rec, err := h.sessions.Resume(c.Request.Context(), GetIdentity(c), c.Param("moduleID"), c.Param("sessionID"))
	if err != nil {
		writeError(c, h.logger, "could not resume session", err)
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"progress": rec})
}

// PostMessage maneja POST /modules/:moduleID/sessions/:sessionID/messages.
func (h *SessionHandler) PostMessage(c *gin.Context) {
	var req struct {
		Role    domain.Role `json:"role" binding:"required"`
		Content string      `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid message request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	progress, err := h.sessions.AppendMessage(c.Request.Context(), GetIdentity(c), c.Param("moduleID"), c.Param("sessionID"),
		domain.Message{Role: req.Role, Content: req.Content})
	if err != nil {
		writeError(c, h.logger, "could not save message", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"progress": progress})
}

// SaveState maneja PUT /modules/:moduleID/sessions/:sessionID/state; data se guarda sin interpretarlo.
func (h *SessionHandler) SaveState(c *gin.Context) {
	var req struct {
		Data      json.RawMessage `json:"data"`
		Completed bool            `json:"completed"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid state request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	progress, err := h.sessions.SaveInteraction(c.Request.Context(), GetIdentity(c), c.Param("moduleID"), c.Param("sessionID"),
		domain.Payload(req.Data), req.Completed)
	if err != nil {
		writeError(c, h.logger, "could not save state", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"progress": progress})
}

// Complete maneja POST /modules/:moduleID/sessions/:sessionID/complete.
// En modulos de chat genera un snapshot solo cuando esta llamada completa la sesion.
// Si no se puede, la sesion igual queda completa.
func (h *SessionHandler) Complete(c *gin.Context) {
	ctx := c.Request.Context()
	id := GetIdentity(c)
	moduleID := c.Param("moduleID")

	rec, changed, err := h.sessions.Complete(ctx, id, moduleID, c.Param("sessionID"))
	if err != nil {
		writeError(c, h.logger, "could not complete session", err)
		return
	}
	resp := gin.H{"progress": rec}
	if rec.Kind != domain.KindModuleProgress || h.snapshots == nil {
		c.JSON(http.StatusOK, resp)
		return
	}

	switch {
	case !changed:
		resp["snapshot_skipped"] = "already completed"
	case h.limiter != nil && !h.limiter.Allow(ctx, id):
		resp["snapshot_skipped"] = "rate limited"
	default:
		progress, err := domain.ModuleProgressFromRecord(rec)
		if err != nil {
			writeError(c, h.logger, "could not read transcript", err)
			return
		}
		snapshot, err := h.snapshots.Analyze(ctx, id, moduleID, progress.Messages)
		switch {
		case err == nil:
			resp["snapshot"] = snapshot
		case errors.Is(err, domain.ErrInsufficientData):
			resp["snapshot_skipped"] = "insufficient data"
		default:
			h.logger.Warn("snapshot after completion failed", zap.Error(err), zap.String("module_id", moduleID))
			resp["snapshot_error"] = "analysis failed, retry later"
		}
	}
	c.JSON(http.StatusOK, resp)
}
