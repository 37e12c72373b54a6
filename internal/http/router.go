package http

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"career-compass/internal/service"
)

// RouterDeps agrupa handlers y piezas de auth que necesita NewRouter.
type RouterDeps struct {
	Tracker    *service.IdentityTracker
	Verifier   *service.TokenVerifier
	AdminToken string

	Identity *IdentityHandler
	Sessions *SessionHandler
	Insights *InsightsHandler
	Accounts *AccountHandler
}

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(logger *zap.Logger, deps RouterDeps) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: logging, recovery y JSON content-type.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), jsonContentTypeMiddleware())

	r.GET("/identity", deps.Identity.GetIdentity)
	r.POST("/identity", deps.Identity.Authenticate)
	r.GET("/migration", deps.Identity.GetMigration)

	api := r.Group("")
	api.Use(IdentityMiddleware(deps.Tracker, deps.Verifier))
	api.POST("/migration/retry", deps.Identity.RetryMigration)

	api.GET("/modules", deps.Sessions.ListModules)
	mod := api.Group("/modules/:moduleID")
	mod.POST("/enter", deps.Sessions.Enter)
	mod.GET("/sessions", deps.Sessions.ListSessions)
	mod.POST("/sessions", deps.Sessions.StartSession)
	mod.GET("/sessions/:sessionID", deps.Sessions.Resume)
	mod.POST("/sessions/:sessionID/messages", deps.Sessions.PostMessage)
	mod.PUT("/sessions/:sessionID/state", deps.Sessions.SaveState)
	mod.POST("/sessions/:sessionID/complete", deps.Sessions.Complete)

	api.GET("/snapshots", deps.Insights.GetSnapshots)
	api.POST("/snapshots/analyze", deps.Insights.AnalyzeTranscript)
	api.PATCH("/snapshots/current/axes", deps.Insights.PatchAxes)
	api.GET("/insights", deps.Insights.GetInsights)
	api.POST("/insights/regenerate", deps.Insights.RegenerateInsights)
	api.DELETE("/data", deps.Accounts.EraseOwn)

	admin := r.Group("/admin")
	admin.Use(AdminTokenMiddleware(deps.AdminToken))
	admin.DELETE("/accounts/:accountID", deps.Accounts.EraseAccount)

	return r
}
