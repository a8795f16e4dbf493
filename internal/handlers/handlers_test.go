package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/elixpo/elixpoaccounts/internal/cache"
	"github.com/elixpo/elixpoaccounts/internal/config"
	"github.com/elixpo/elixpoaccounts/internal/metrics"
	"github.com/elixpo/elixpoaccounts/internal/middleware"
	"github.com/elixpo/elixpoaccounts/internal/models"
	"github.com/elixpo/elixpoaccounts/internal/services"
	"github.com/elixpo/elixpoaccounts/internal/store"
	"github.com/elixpo/elixpoaccounts/internal/token"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

const testPassword = "correct horse battery"

type handlerEnv struct {
	router *gin.Engine
	store  *store.Store

	users         *services.UserService
	tokens        *services.TokenService
	clients       *services.ClientService
	rbac          *services.RBACService
	apiKeys       *services.APIKeyService
	authorization *services.AuthorizationService
}

// newHandlerEnv wires the full HTTP surface over an in-memory store, the way
// the server entrypoint does.
func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		BaseURL:         "http://localhost:8080",
		SigningMode:     config.SigningModeHMAC,
		JWTSecret:       "handler-test-secret",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 24 * time.Hour,
		AuthRequestTTL:  10 * time.Minute,
		AuthCodeTTL:     10 * time.Minute,
		SessionSecret:   "handler-test-session",
		SessionMaxAge:   3600,
	}

	s, err := store.New("sqlite", ":memory:")
	require.NoError(t, err)

	audit := services.NewAuditService(s, false, 10)
	noop := metrics.NewNoopMetrics()

	provider := token.NewProvider(cfg)
	users := services.NewUserService(s, audit, noop)
	tokens := services.NewTokenService(s, provider, cfg, audit, noop)
	clients := services.NewClientService(s, audit)
	limits := services.NewRateLimitService(s, audit, noop)
	rbac := services.NewRBACService(s, cache.NewMemoryCache[[]string](), audit, noop)
	apiKeys := services.NewAPIKeyService(s, limits, audit, noop)
	authorization := services.NewAuthorizationService(s, clients, tokens, cfg, audit, noop)

	authHandler := NewAuthHandler(users, tokens)
	tokenHandler := NewTokenHandler(tokens, authorization, clients, cfg)
	authorizeHandler := NewAuthorizeHandler(authorization)
	ssoHandler := NewSSOHandler(tokens)
	apiKeyHandler := NewAPIKeyHandler(apiKeys, rbac)
	clientHandler := NewClientHandler(clients)
	roleHandler := NewRoleHandler(rbac)
	auditHandler := NewAuditHandler(audit)

	r := gin.New()
	sessionStore := cookie.NewStore([]byte(cfg.SessionSecret))
	r.Use(sessions.Sessions("accounts_session", sessionStore))

	auth := r.Group("/auth")
	{
		auth.POST("/register",
			middleware.EndpointRateLimit(limits, "register"),
			authHandler.Register,
		)
		auth.POST("/login",
			middleware.EndpointRateLimit(limits, "login"),
			authHandler.Login,
		)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", authHandler.Logout)
		auth.GET("/me", middleware.RequireAuth(tokens, users), authHandler.Me)
	}

	oauth := r.Group("/oauth")
	{
		oauth.GET("/authorize", middleware.RequireSession(), authorizeHandler.Authorize)
		oauth.POST("/authorize", middleware.RequireSession(), authorizeHandler.Consent)
		oauth.POST("/token", tokenHandler.Token)
		oauth.GET("/tokeninfo", tokenHandler.TokenInfo)
		oauth.POST("/revoke", tokenHandler.Revoke)
	}

	sso := r.Group("/sso", middleware.RequireAPIKey(apiKeys, models.ScopeSSOVerify))
	{
		sso.GET("/verify", ssoHandler.Verify)
		sso.POST("/verify", ssoHandler.Verify)
	}

	apiKeysGroup := r.Group("/apikeys")
	apiKeysGroup.Use(middleware.RequireAuth(tokens, users))
	{
		apiKeysGroup.POST("", apiKeyHandler.Create)
		apiKeysGroup.GET("", apiKeyHandler.List)
		apiKeysGroup.DELETE("/:id", apiKeyHandler.Revoke)
		apiKeysGroup.GET("/:id/usage", apiKeyHandler.Usage)
	}

	admin := r.Group("/admin")
	admin.Use(middleware.RequireAuth(tokens, users))
	{
		admin.POST("/clients",
			middleware.RequirePermission(rbac, models.PermClientsWrite),
			clientHandler.Register,
		)
		admin.GET("/clients",
			middleware.RequirePermission(rbac, models.PermClientsRead),
			clientHandler.List,
		)
		admin.POST("/clients/:id/deactivate",
			middleware.RequirePermission(rbac, models.PermClientsWrite),
			clientHandler.Deactivate,
		)
		admin.GET("/roles",
			middleware.RequirePermission(rbac, models.PermRolesRead),
			roleHandler.List,
		)
		admin.POST("/roles",
			middleware.RequirePermission(rbac, models.PermRolesWrite),
			roleHandler.Create,
		)
		admin.PUT("/roles/:id/permissions",
			middleware.RequirePermission(rbac, models.PermRolesWrite),
			roleHandler.UpdatePermissions,
		)
		admin.DELETE("/roles/:id",
			middleware.RequirePermission(rbac, models.PermRolesWrite),
			roleHandler.Delete,
		)
		admin.POST("/users/:id/roles",
			middleware.RequirePermission(rbac, models.PermRolesWrite),
			roleHandler.Assign,
		)
		admin.GET("/users/:id/permissions",
			middleware.RequirePermission(rbac, models.PermRolesRead),
			roleHandler.UserPermissions,
		)
		admin.GET("/audit",
			middleware.RequirePermission(rbac, models.PermAuditRead),
			auditHandler.List,
		)
	}

	return &handlerEnv{
		router:        r,
		store:         s,
		users:         users,
		tokens:        tokens,
		clients:       clients,
		rbac:          rbac,
		apiKeys:       apiKeys,
		authorization: authorization,
	}
}

// postJSON sends a JSON body, optionally with a Bearer token.
func (e *handlerEnv) postJSON(t *testing.T, path string, body any, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *handlerEnv) get(t *testing.T, path, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, path, nil)
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

// registerAndLogin creates an account and returns the user plus a live pair.
func (e *handlerEnv) registerAndLogin(t *testing.T, email string) (*models.User, *services.TokenPair) {
	t.Helper()
	ctx := context.Background()
	user, err := e.users.Register(ctx, email, testPassword, "Test User")
	require.NoError(t, err)
	pair, err := e.tokens.IssuePair(ctx, user, services.ProviderLocal, "", "password")
	require.NoError(t, err)
	return user, pair
}

// grantRole assigns a named system role directly through the store.
func (e *handlerEnv) grantRole(t *testing.T, userID, roleName string) {
	t.Helper()
	role, err := e.store.GetRoleByName(roleName)
	require.NoError(t, err)
	require.NoError(t, e.store.CreateRoleAssignment(&models.RoleAssignment{
		UserID: userID,
		RoleID: role.ID,
	}))
}
