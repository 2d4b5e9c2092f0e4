package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireDebugRoutes hides maintenance routes unless they are enabled in
// the configuration.
func RequireDebugRoutes(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.Next()
	}
}
