package ginserver

import (
	"log/slog"
	"strings"

	gin "github.com/gin-gonic/gin"

	"rentcar/internal/app/services/auth"
)

// AuthMiddleware resolves the bearer token into an auth.Principal on the request context.
// Requests without a token pass through; the buses reject them where a role is required.
type AuthMiddleware struct {
	Service *auth.Service
	Logger  *slog.Logger
}

func (m AuthMiddleware) Handle(c *gin.Context) {
	token := extractBearerToken(c.GetHeader("Authorization"))
	if token == "" || m.Service == nil {
		c.Next()
		return
	}
	p, err := m.Service.ResolveToken(c.Request.Context(), token)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Debug("token validation failed", "error", err)
		}
		writeError(c, err)
		return
	}
	c.Set(principalContextKey, p)
	c.Request = c.Request.WithContext(auth.ContextWithPrincipal(c.Request.Context(), p))
	c.Next()
}

const principalContextKey = "rentcar.principal"

func currentPrincipal(c *gin.Context) (auth.Principal, bool) {
	val, exists := c.Get(principalContextKey)
	if !exists {
		return auth.Principal{}, false
	}
	p, ok := val.(auth.Principal)
	return p, ok
}

func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
