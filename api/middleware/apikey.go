package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	apierrors "github.com/customeros/mailarchive/api/errors"
	"github.com/customeros/mailarchive/internal/enum"
)

const APIKeyHeader = "X-MAILARCHIVE-API-KEY"

// APIKeyConfig holds the configuration for API key authentication
type APIKeyConfig struct {
	HeaderName  string
	ValidAPIKey string
}

// APIKeyMiddleware creates a middleware function to validate API keys
func APIKeyMiddleware(config APIKeyConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := strings.TrimSpace(c.GetHeader(config.HeaderName))

		if apiKey == "" {
			apierrors.RespondWithStatus(c, http.StatusUnauthorized, enum.ErrorKindInvalid, "Missing API key")
			return
		}

		if config.ValidAPIKey == "" || subtle.ConstantTimeCompare([]byte(apiKey), []byte(config.ValidAPIKey)) != 1 {
			apierrors.RespondWithStatus(c, http.StatusUnauthorized, enum.ErrorKindInvalid, "Invalid API key")
			return
		}

		c.Next()
	}
}
