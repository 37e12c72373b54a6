package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"career-compass/internal/domain"
	"career-compass/internal/service"
)

// InsightsHandler expone snapshots de valores e insights del usuario.
type InsightsHandler struct {
	logger    *zap.Logger
	snapshots *service.ValueSnapshotService
	insights  *service.InsightsService
	limiter   service.AnalysisRateLimiter
}

// NewInsightsHandler acepta limiter nil: sin limite de analisis.
func NewInsightsHandler(logger *zap.Logger, snapshots *service.ValueSnapshotService, insights *service.InsightsService, limiter service.AnalysisRateLimiter) *InsightsHandler {
	return &InsightsHandler{logger: logger, snapshots: snapshots, insights: insights, limiter: limiter}
}

func (h *InsightsHandler) allow(c *gin.Context) bool {
	if h.limiter == nil || h.limiter.Allow(c.Request.Context(), GetIdentity(c)) {
		return true
	}
	c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many analysis requests"})
	return false
}

// GetSnapshots maneja GET /snapshots?history=true.
func (h *InsightsHandler) GetSnapshots(c *gin.Context) {
	includeHistory, _ := strconv.ParseBool(c.DefaultQuery("history", "false"))
	hist, err := h.snapshots.History(c.Request.Context(), GetIdentity(c), includeHistory)
	if err != nil {
		writeError(c, h.logger, "could not load snapshots", err)
		return
	}
	c.JSON(http.StatusOK, hist)
}

// AnalyzeTranscript maneja POST /snapshots/analyze con un transcript explicito.
func (h *InsightsHandler) AnalyzeTranscript(c *gin.Context) {
	var req struct {
		ModuleID string           `json:"module_id"`
		Messages []domain.Message `json:"messages" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid analyze request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if !h.allow(c) {
		return
	}
	snapshot, err := h.snapshots.Analyze(c.Request.Context(), GetIdentity(c), req.ModuleID, req.Messages)
	if err != nil {
		writeError(c, h.logger, "could not analyze transcript", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"snapshot": snapshot})
}

// PatchAxes maneja PATCH /snapshots/current/axes.
func (h *InsightsHandler) PatchAxes(c *gin.Context) {
	var req struct {
		Axes map[domain.Axis]int `json:"axes" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid axes request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	snapshot, err := h.snapshots.PatchAxes(c.Request.Context(), GetIdentity(c), req.Axes)
	if err != nil {
		writeError(c, h.logger, "could not update axes", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshot": snapshot})
}

// GetInsights maneja GET /insights. Sin insights guardados responde null, no 404.
func (h *InsightsHandler) GetInsights(c *gin.Context) {
	got, err := h.insights.Get(c.Request.Context(), GetIdentity(c))
	if err != nil {
		writeError(c, h.logger, "could not load insights", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"insights": got})
}

// RegenerateInsights maneja POST /insights/regenerate a partir del progreso guardado.
func (h *InsightsHandler) RegenerateInsights(c *gin.Context) {
	if !h.allow(c) {
		return
	}
	got, err := h.insights.RegenerateFromStore(c.Request.Context(), GetIdentity(c))
	if err != nil {
		writeError(c, h.logger, "could not regenerate insights", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"insights": got})
}
