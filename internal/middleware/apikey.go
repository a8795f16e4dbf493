package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/elixpo/elixpoaccounts/internal/models"
	"github.com/elixpo/elixpoaccounts/internal/services"

	"github.com/gin-gonic/gin"
)

// Context key set by the API key middleware.
const ContextAPIKey = "api_key"

// APIKeyHeader is the fallback request header carrying the plaintext key.
// The primary form is Authorization: Bearer.
const APIKeyHeader = "X-API-Key"

// extractAPIKey pulls the plaintext key from the Authorization header,
// falling back to X-API-Key.
func extractAPIKey(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.GetHeader(APIKeyHeader)
}

// RequireAPIKey authenticates machine callers. Every response carries the
// key's rate budget headers; a denied budget answers 429 with Retry-After.
// The key must hold all the listed scopes.
func RequireAPIKey(apiKeys *services.APIKeyService, scopes ...models.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, decision, err := apiKeys.Validate(c, extractAPIKey(c))
		if err != nil {
			status := http.StatusUnauthorized
			c.JSON(status, gin.H{
				"error":             "invalid_api_key",
				"error_description": "API key is missing, invalid, revoked, or expired",
			})
			apiKeyUsage(apiKeys, c, key, status)
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", decision.Limit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", decision.Remaining))
		c.Header("X-RateLimit-Window", fmt.Sprintf("%d", int(decision.Window.Seconds())))

		if !decision.Allowed {
			c.Header("Retry-After", fmt.Sprintf("%d", int(decision.RetryAfter.Seconds())))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":             "rate_limit_exceeded",
				"error_description": "API key request budget exhausted",
			})
			apiKeyUsage(apiKeys, c, key, http.StatusTooManyRequests)
			c.Abort()
			return
		}

		if !key.HasAllScopes(scopes...) {
			c.JSON(http.StatusForbidden, gin.H{
				"error":             "insufficient_scope",
				"error_description": "API key does not carry the required scope",
			})
			apiKeyUsage(apiKeys, c, key, http.StatusForbidden)
			c.Abort()
			return
		}

		c.Set(ContextAPIKey, key)
		c.Next()

		apiKeyUsage(apiKeys, c, key, c.Writer.Status())
	}
}

func apiKeyUsage(apiKeys *services.APIKeyService, c *gin.Context, key *models.APIKey, status int) {
	if key == nil {
		return
	}
	apiKeys.RecordUsage(key, c.FullPath(), c.Request.Method, c.ClientIP(), status)
}

// APIKeyFromContext returns the key authenticated by RequireAPIKey.
func APIKeyFromContext(c *gin.Context) (*models.APIKey, bool) {
	val, exists := c.Get(ContextAPIKey)
	if !exists {
		return nil, false
	}
	key, ok := val.(*models.APIKey)
	return key, ok
}
