//	@title			ElixpoAccounts API
//	@version		1.0
//	@description	Identity provider: local and upstream OAuth login, JWT lifecycle, RBAC, and API keys
//	@termsOfService	http://swagger.io/terms/

//	@host		localhost:8080
//	@BasePath	/

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Type "Bearer" followed by a space and JWT token.

//	@securityDefinitions.apikey	APIKeyAuth
//	@in							header
//	@name						X-API-Key
//	@description				Machine credential for service-to-service endpoints

//	@securityDefinitions.apikey	SessionAuth
//	@in							cookie
//	@name						accounts_session
//	@description				Session cookie for the browser consent surface

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/elixpo/elixpoaccounts/internal/auth"
	"github.com/elixpo/elixpoaccounts/internal/cache"
	"github.com/elixpo/elixpoaccounts/internal/config"
	"github.com/elixpo/elixpoaccounts/internal/handlers"
	"github.com/elixpo/elixpoaccounts/internal/metrics"
	"github.com/elixpo/elixpoaccounts/internal/middleware"
	"github.com/elixpo/elixpoaccounts/internal/models"
	"github.com/elixpo/elixpoaccounts/internal/services"
	"github.com/elixpo/elixpoaccounts/internal/store"
	"github.com/elixpo/elixpoaccounts/internal/token"
	"github.com/elixpo/elixpoaccounts/internal/util"
	"github.com/elixpo/elixpoaccounts/internal/version"
	"github.com/elixpo/elixpoaccounts/internal/webhook"

	"github.com/appleboy/graceful"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Define flags
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	flag.Usage = printUsage
	flag.Parse()

	if *showVersion {
		version.PrintVersion()
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "server":
		runServer()
	default:
		fmt.Printf("Unknown command: %s\n\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf("Usage: %s [OPTIONS] COMMAND\n\n", os.Args[0])
	fmt.Println("Identity provider server")
	fmt.Println("\nCommands:")
	fmt.Println("  server    Start the identity provider")
	fmt.Println("\nOptions:")
	fmt.Println("  -v, --version    Show version information")
	fmt.Println("  -h, --help       Show this help message")
}

func runServer() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	db, err := store.New(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	prometheusMetrics := metrics.Init(cfg.MetricsEnabled)
	if cfg.MetricsEnabled {
		log.Println("Prometheus metrics initialized")
	} else {
		log.Println("Metrics disabled (using noop implementation)")
	}

	// Permission-set cache
	permCache, permCacheCloser, err := newPermissionCache(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize permission cache: %v", err)
	}

	// Audit service, with optional webhook delivery of critical events
	auditService := services.NewAuditService(db, cfg.EnableAuditLogging, cfg.AuditLogBufferSize)
	notifier, err := webhook.NewNotifier(cfg.WebhookURL, cfg.WebhookSecret, cfg.WebhookTimeout)
	if err != nil {
		log.Fatalf("Failed to initialize webhook notifier: %v", err)
	}
	if notifier != nil {
		auditService.SetNotifier(notifier, prometheusMetrics, cfg.WebhookTimeout)
		log.Printf("Webhook delivery enabled: %s", cfg.WebhookURL)
	}

	// Services
	tokenProvider := token.NewProvider(cfg)
	userService := services.NewUserService(db, auditService, prometheusMetrics)
	tokenService := services.NewTokenService(db, tokenProvider, cfg, auditService, prometheusMetrics)
	clientService := services.NewClientService(db, auditService)
	rateLimitService := services.NewRateLimitService(db, auditService, prometheusMetrics)
	rbacService := services.NewRBACService(db, permCache, auditService, prometheusMetrics)
	apiKeyService := services.NewAPIKeyService(db, rateLimitService, auditService, prometheusMetrics)
	authorizationService := services.NewAuthorizationService(
		db,
		clientService,
		tokenService,
		cfg,
		auditService,
		prometheusMetrics,
	)

	oauthProviders := initializeOAuthProviders(cfg)
	flowService := services.NewFlowService(
		db,
		oauthProviders,
		tokenService,
		cfg,
		auditService,
		prometheusMetrics,
	)

	// Handlers
	authHandler := handlers.NewAuthHandler(userService, tokenService)
	tokenHandler := handlers.NewTokenHandler(tokenService, authorizationService, clientService, cfg)
	authorizeHandler := handlers.NewAuthorizeHandler(authorizationService)
	oauthHandler := handlers.NewOAuthHandler(flowService)
	ssoHandler := handlers.NewSSOHandler(tokenService)
	apiKeyHandler := handlers.NewAPIKeyHandler(apiKeyService, rbacService)
	clientHandler := handlers.NewClientHandler(clientService)
	roleHandler := handlers.NewRoleHandler(rbacService)
	auditHandler := handlers.NewAuditHandler(auditService)

	// Gin setup
	if cfg.IsProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(metrics.HTTPMetricsMiddleware(prometheusMetrics))
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(util.IPMiddleware())

	// Session middleware (browser consent surface)
	sessionStore := cookie.NewStore([]byte(cfg.SessionSecret))
	sessionStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   cfg.SessionMaxAge,
		HttpOnly: true,
		Secure:   cfg.IsProduction,
		SameSite: http.SameSiteLaxMode, // Lax required for OAuth callbacks
	})
	r.Use(sessions.Sessions("accounts_session", sessionStore))

	// Coarse per-IP limiter fronting the whole API
	globalLimiter, err := middleware.NewGlobalRateLimiter(middleware.GlobalRateLimitConfig{
		RequestsPerMinute: cfg.GlobalRateLimitPerMinute,
		StoreType:         cfg.RateLimitStore,
		RedisAddr:         cfg.RedisAddr,
		RedisPassword:     cfg.RedisPassword,
		RedisDB:           cfg.RedisDB,
	})
	if err != nil {
		log.Fatalf("Failed to initialize global rate limiter: %v", err)
	}
	r.Use(globalLimiter)

	// Health check endpoint
	r.GET("/healthz", func(c *gin.Context) {
		if err := db.Health(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if cfg.MetricsEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Println("Prometheus metrics enabled at /metrics")
	}

	// Local auth routes
	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register",
			middleware.EndpointRateLimit(rateLimitService, "register"),
			authHandler.Register,
		)
		authGroup.POST("/login",
			middleware.EndpointRateLimit(rateLimitService, "login"),
			authHandler.Login,
		)
		authGroup.POST("/refresh", authHandler.Refresh)
		authGroup.POST("/logout", authHandler.Logout)
		authGroup.GET("/me",
			middleware.RequireAuth(tokenService, userService),
			authHandler.Me,
		)

		// Upstream provider login
		authGroup.GET("/providers", oauthHandler.Providers)
		authGroup.GET("/:provider", oauthHandler.Begin)
		authGroup.GET("/:provider/callback", oauthHandler.Callback)
	}

	// OAuth routes (our own authorization server surface)
	oauth := r.Group("/oauth")
	{
		oauth.GET("/authorize", middleware.RequireSession(), authorizeHandler.Authorize)
		oauth.POST("/authorize", middleware.RequireSession(), authorizeHandler.Consent)
		oauth.POST("/token", tokenHandler.Token)
		oauth.GET("/tokeninfo", tokenHandler.TokenInfo)
		oauth.POST("/revoke", tokenHandler.Revoke)
	}

	// Service-to-service verification, behind API key auth
	sso := r.Group("/sso", middleware.RequireAPIKey(apiKeyService, models.ScopeSSOVerify))
	{
		sso.GET("/verify", ssoHandler.Verify)
		sso.POST("/verify", ssoHandler.Verify)
	}

	// API key self-management
	apiKeys := r.Group("/apikeys")
	apiKeys.Use(middleware.RequireAuth(tokenService, userService))
	{
		apiKeys.POST("", apiKeyHandler.Create)
		apiKeys.GET("", apiKeyHandler.List)
		apiKeys.DELETE("/:id", apiKeyHandler.Revoke)
		apiKeys.GET("/:id/usage", apiKeyHandler.Usage)
	}

	// Admin routes, permission-gated per resource
	admin := r.Group("/admin")
	admin.Use(middleware.RequireAuth(tokenService, userService))
	{
		admin.GET("/clients",
			middleware.RequirePermission(rbacService, models.PermClientsRead),
			clientHandler.List,
		)
		admin.POST("/clients",
			middleware.RequirePermission(rbacService, models.PermClientsWrite),
			clientHandler.Register,
		)
		admin.POST("/clients/:id/deactivate",
			middleware.RequirePermission(rbacService, models.PermClientsWrite),
			clientHandler.Deactivate,
		)

		admin.GET("/roles",
			middleware.RequirePermission(rbacService, models.PermRolesRead),
			roleHandler.List,
		)
		admin.POST("/roles",
			middleware.RequirePermission(rbacService, models.PermRolesWrite),
			roleHandler.Create,
		)
		admin.PUT("/roles/:id/permissions",
			middleware.RequirePermission(rbacService, models.PermRolesWrite),
			roleHandler.UpdatePermissions,
		)
		admin.DELETE("/roles/:id",
			middleware.RequirePermission(rbacService, models.PermRolesWrite),
			roleHandler.Delete,
		)

		admin.POST("/users/:id/roles",
			middleware.RequirePermission(rbacService, models.PermRolesWrite),
			roleHandler.Assign,
		)
		admin.DELETE("/users/:id/roles/:roleID",
			middleware.RequirePermission(rbacService, models.PermRolesWrite),
			roleHandler.Unassign,
		)
		admin.GET("/users/:id/permissions",
			middleware.RequirePermission(rbacService, models.PermRolesRead),
			roleHandler.UserPermissions,
		)

		admin.GET("/audit",
			middleware.RequirePermission(rbacService, models.PermAuditRead),
			auditHandler.List,
		)
	}

	log.Printf("Identity provider starting on %s", cfg.ServerAddr)
	log.Printf("Base URL: %s", cfg.BaseURL)
	logOAuthProvidersStatus(oauthProviders)

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	m := graceful.NewManager()

	m.AddRunningJob(func(ctx context.Context) error {
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Failed to start server: %v", err)
			}
		}()
		<-ctx.Done()
		return nil
	})

	m.AddShutdownJob(func() error {
		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server forced to shutdown: %v", err)
			return err
		}

		log.Println("Server exited")
		return nil
	})

	// Periodic cleanup of expired handshake and credential state
	m.AddRunningJob(func(ctx context.Context) error {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				runCleanup(tokenService, flowService, authorizationService, rateLimitService)
			case <-ctx.Done():
				return nil
			}
		}
	})

	// Daily audit log retention
	if cfg.EnableAuditLogging && cfg.AuditLogRetention > 0 {
		m.AddRunningJob(func(ctx context.Context) error {
			ticker := time.NewTicker(24 * time.Hour)
			defer ticker.Stop()

			if deleted, err := auditService.CleanupOldLogs(cfg.AuditLogRetention); err != nil {
				log.Printf("Failed to cleanup old audit logs: %v", err)
			} else if deleted > 0 {
				log.Printf("Cleaned up %d old audit logs", deleted)
			}

			for {
				select {
				case <-ticker.C:
					if deleted, err := auditService.CleanupOldLogs(cfg.AuditLogRetention); err != nil {
						log.Printf("Failed to cleanup old audit logs: %v", err)
					} else if deleted > 0 {
						log.Printf("Cleaned up %d old audit logs", deleted)
					}
				case <-ctx.Done():
					return nil
				}
			}
		})
	}

	m.AddShutdownJob(func() error {
		log.Println("Shutting down audit service...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := auditService.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down audit service: %v", err)
			return err
		}
		return nil
	})

	if permCacheCloser != nil {
		m.AddShutdownJob(func() error {
			if err := permCacheCloser(); err != nil {
				log.Printf("Error closing permission cache: %v", err)
				return err
			}
			return nil
		})
	}

	<-m.Done()
}

// newPermissionCache selects the permission-set cache backend.
func newPermissionCache(cfg *config.Config) (cache.Cache[[]string], func() error, error) {
	switch cfg.CacheType {
	case config.CacheTypeRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		c, err := cache.NewRueidisCache[[]string](
			ctx,
			cfg.RedisAddr,
			cfg.RedisPassword,
			cfg.RedisDB,
			"perms:",
		)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("Permission cache: redis (addr=%s, db=%d)", cfg.RedisAddr, cfg.RedisDB)
		return c, c.Close, nil

	case config.CacheTypeRedisAside:
		c, err := cache.NewRueidisAsideCache[[]string](
			cfg.RedisAddr,
			cfg.RedisPassword,
			cfg.RedisDB,
			"perms:",
			30*time.Second,
		)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("Permission cache: redis-aside (addr=%s, db=%d)", cfg.RedisAddr, cfg.RedisDB)
		return c, c.Close, nil
	}

	log.Println("Permission cache: memory (single instance only)")
	c := cache.NewMemoryCache[[]string]()
	return c, c.Close, nil
}

// initializeOAuthProviders builds the configured upstream providers.
func initializeOAuthProviders(cfg *config.Config) map[string]*auth.Provider {
	providers := make(map[string]*auth.Provider)

	if cfg.GoogleOAuthEnabled {
		providers["google"] = auth.NewGoogleProvider(auth.ProviderConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			Scopes:       cfg.GoogleScopes,
		})
	}

	if cfg.GitHubOAuthEnabled {
		providers["github"] = auth.NewGitHubProvider(auth.ProviderConfig{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  cfg.GitHubRedirectURL,
			Scopes:       cfg.GitHubScopes,
		})
	}

	return providers
}

func logOAuthProvidersStatus(providers map[string]*auth.Provider) {
	if len(providers) == 0 {
		log.Println("No upstream OAuth providers configured")
		return
	}
	for name := range providers {
		log.Printf("OAuth provider enabled: %s", name)
	}
}

func runCleanup(
	tokens *services.TokenService,
	flow *services.FlowService,
	authorization *services.AuthorizationService,
	limits *services.RateLimitService,
) {
	if n, err := tokens.CleanupExpired(); err != nil {
		log.Printf("Failed to cleanup expired refresh credentials: %v", err)
	} else if n > 0 {
		log.Printf("Cleaned up %d expired refresh credentials", n)
	}
	if n, err := flow.CleanupExpired(); err != nil {
		log.Printf("Failed to cleanup expired authorization requests: %v", err)
	} else if n > 0 {
		log.Printf("Cleaned up %d expired authorization requests", n)
	}
	if n, err := authorization.CleanupExpired(); err != nil {
		log.Printf("Failed to cleanup expired authorization codes: %v", err)
	} else if n > 0 {
		log.Printf("Cleaned up %d expired authorization codes", n)
	}
	if n, err := limits.CleanupStale(); err != nil {
		log.Printf("Failed to cleanup stale rate limit entries: %v", err)
	} else if n > 0 {
		log.Printf("Cleaned up %d stale rate limit entries", n)
	}
}
