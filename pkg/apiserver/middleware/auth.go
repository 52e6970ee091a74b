package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lwgs/searchindex-client/pkg/auth"
	"github.com/lwgs/searchindex-client/pkg/config"
)

// Auth guards the operator API. With a configured signing secret the
// bearer token must be a valid admin token; without one only the presence
// of a bearer token is enforced.
func Auth(cfg config.AuthConfig) gin.HandlerFunc {
	var manager *auth.AdminTokenManager
	if cfg.JWTSecret != "" {
		manager = auth.NewAdminTokenManager([]byte(cfg.JWTSecret), cfg.TokenTTL)
	}

	return func(c *gin.Context) {
		authorization := c.GetHeader("Authorization")
		if authorization == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}
		parts := strings.SplitN(authorization, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization"})
			return
		}
		token := strings.TrimSpace(parts[1])
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}
		if manager != nil {
			claims, err := manager.ValidateAdminToken(token)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
				return
			}
			if !claims.HasScope("sync") {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "missing scope"})
				return
			}
		}
		c.Next()
	}
}
