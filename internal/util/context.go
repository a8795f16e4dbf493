package util

import (
	"context"

	"github.com/elixpo/elixpoaccounts/internal/models"

	"github.com/gin-gonic/gin"
)

// IPMiddleware extracts the client IP and stores it in the request context.
func IPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Gin's ClientIP() handles X-Forwarded-For and friends
		c.Set("client_ip", c.ClientIP())
		c.Next()
	}
}

// GetIPFromContext extracts the client IP address from the context.
func GetIPFromContext(ctx context.Context) string {
	if ginCtx, ok := ctx.(*gin.Context); ok {
		return ginCtx.ClientIP()
	}

	if ip, ok := ctx.Value("client_ip").(string); ok {
		return ip
	}

	return ""
}

// GetEmailFromContext extracts the authenticated user's email, if any.
func GetEmailFromContext(ctx context.Context) string {
	if ginCtx, ok := ctx.(*gin.Context); ok {
		if userVal, exists := ginCtx.Get("user"); exists {
			if user, ok := userVal.(*models.User); ok {
				return user.Email
			}
		}
	}

	return ""
}
