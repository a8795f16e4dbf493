package middleware

import (
	"net/http"
	"strings"

	"github.com/elixpo/elixpoaccounts/internal/models"
	"github.com/elixpo/elixpoaccounts/internal/services"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// Context keys set by the authentication middleware.
const (
	ContextUserID = "user_id"
	ContextUser   = "user"

	SessionUserID     = "user_id"
	AccessTokenCookie = "access_token"
)

// extractAccessToken pulls the bearer token from the Authorization header,
// falling back to the httpOnly cookie set by the browser login surface.
func extractAccessToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	if cookie, err := c.Cookie(AccessTokenCookie); err == nil {
		return cookie
	}
	return ""
}

// RequireAuth verifies the access token and loads the account.
func RequireAuth(tokens *services.TokenService, users *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractAccessToken(c)
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":             "invalid_token",
				"error_description": "Missing access token",
			})
			c.Abort()
			return
		}

		claims, err := tokens.VerifyAccessToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":             "invalid_token",
				"error_description": "Access token is invalid or expired",
			})
			c.Abort()
			return
		}

		user, err := users.GetUserByID(claims.Subject)
		if err != nil || !user.IsActive {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":             "invalid_token",
				"error_description": "Account is unavailable",
			})
			c.Abort()
			return
		}

		c.Set(ContextUserID, user.ID)
		c.Set(ContextUser, user)
		c.Next()
	}
}

// RequirePermission gates a route on one RBAC permission. Must run after
// RequireAuth. Super-admins pass every check.
func RequirePermission(rbac *services.RBACService, perm models.PermissionName) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(ContextUserID)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
			c.Abort()
			return
		}

		ok, err := rbac.HasPermission(c, userID, perm)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
			c.Abort()
			return
		}
		if !ok {
			c.JSON(http.StatusForbidden, gin.H{
				"error":             "insufficient_permissions",
				"error_description": "Missing permission: " + string(perm),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequireSession guards the browser consent surface. Unauthenticated
// browsers are redirected to the login page with a return URL.
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		userID := session.Get(SessionUserID)

		if userID == nil {
			redirectURL := c.Request.URL.String()
			c.Redirect(http.StatusFound, "/login?redirect="+redirectURL)
			c.Abort()
			return
		}

		c.Set(ContextUserID, userID)
		c.Next()
	}
}

// CurrentUser returns the account loaded by RequireAuth.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	val, exists := c.Get(ContextUser)
	if !exists {
		return nil, false
	}
	user, ok := val.(*models.User)
	return user, ok
}
