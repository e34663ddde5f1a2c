package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Middleware enforces a faculty bearer token when a passcode is configured.
func (f Faculty) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !f.Enabled() {
			c.Next()
			return
		}
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "faculty login required"})
			return
		}
		claims, err := f.Parse(strings.TrimSpace(authz[len("bearer "):]))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "invalid token"})
			return
		}
		c.Set("claims", claims)
		c.Next()
	}
}
