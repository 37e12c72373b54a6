package http

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"career-compass/internal/domain"
	"career-compass/internal/service"
)

const identityKey = "identity"

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return "", false
	}
	return strings.TrimSpace(header[len("Bearer "):]), true
}

// IdentityMiddleware pone en el contexto la identidad activa de la instancia.
// Mientras sea anonima no pide token; una vez autenticada exige un bearer de esa misma cuenta.
func IdentityMiddleware(tracker *service.IdentityTracker, verifier *service.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := tracker.Current()
		if id.IsAuthenticated() {
			token, ok := bearerToken(c)
			if !ok {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
				c.Abort()
				return
			}
			accountID, err := verifier.Verify(token)
			if err != nil || accountID != id.Subject {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
				c.Abort()
				return
			}
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// GetIdentity obtiene la identidad resuelta por IdentityMiddleware.
func GetIdentity(c *gin.Context) domain.Identity {
	val, ok := c.Get(identityKey)
	if !ok {
		return domain.Identity{}
	}
	id, _ := val.(domain.Identity)
	return id
}

// AdminTokenMiddleware protege las rutas de operador con X-Admin-Token.
func AdminTokenMiddleware(adminToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminToken == "" {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "admin api disabled"})
			c.Abort()
			return
		}
		got := c.GetHeader("X-Admin-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(adminToken)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid admin token"})
			c.Abort()
			return
		}
		c.Next()
	}
}
