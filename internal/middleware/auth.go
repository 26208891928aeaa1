package middleware

import (
	"net/http"

	"biztomate-api/internal/config"
	"biztomate-api/internal/response"

	"github.com/gin-gonic/gin"
)

// APIKeyMiddleware guards non-public routes with the configured API key.
// When no key is configured the middleware lets everything through, which is
// the development default.
func APIKeyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := config.AppConfig.APIKey
		if expected == "" {
			c.Next()
			return
		}

		apiKey := c.GetHeader("X-API-Key")
		if apiKey == "" {
			apiKey = c.Query("api_key")
		}

		if apiKey != expected {
			c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid or missing api_key"))
			c.Abort()
			return
		}

		c.Next()
	}
}
