package config

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Token signing mode constants
const (
	SigningModeEd25519 = "ed25519"
	SigningModeHMAC    = "hs256"
)

// Rate limit store constants for the coarse per-IP limiter
const (
	RateLimitStoreMemory = "memory"
	RateLimitStoreRedis  = "redis"
)

// Cache backend constants
const (
	CacheTypeMemory     = "memory"
	CacheTypeRedis      = "redis"
	CacheTypeRedisAside = "redis-aside"
)

type Config struct {
	// Server settings
	ServerAddr   string
	BaseURL      string
	IsProduction bool

	// Token settings
	SigningMode       string // "ed25519" or "hs256"
	JWTSecret         string // HMAC secret (hs256 mode only)
	Ed25519PrivateKey ed25519.PrivateKey
	Ed25519PublicKey  ed25519.PublicKey
	AccessTokenTTL    time.Duration
	RefreshTokenTTL   time.Duration

	// Authorization flow settings
	AuthRequestTTL time.Duration // in-flight upstream handshakes
	AuthCodeTTL    time.Duration // our-side authorization codes
	PKCERequired   bool

	// Session settings (browser consent surface)
	SessionSecret string
	SessionMaxAge int

	// Database
	DatabaseDriver string // "sqlite" or "postgres"
	DatabaseDSN    string

	// Redis (cache + distributed IP limiter)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheType     string // "memory" or "redis"

	// Global per-IP rate limiting (coarse, fronts the whole API)
	GlobalRateLimitPerMinute int
	RateLimitStore           string // "memory" or "redis"

	// Upstream OAuth providers
	GoogleOAuthEnabled bool
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	GoogleScopes       []string

	GitHubOAuthEnabled bool
	GitHubClientID     string
	GitHubClientSecret string
	GitHubRedirectURL  string
	GitHubScopes       []string

	// Outbound call budget for provider exchanges and user-info fetches
	ProviderTimeout time.Duration

	// OAuth auto registration
	OAuthAutoRegister bool

	// Audit
	EnableAuditLogging bool
	AuditLogBufferSize int
	AuditLogRetention  time.Duration // zero disables retention cleanup

	// Metrics
	MetricsEnabled bool

	// Webhook delivery (external collaborator)
	WebhookURL     string
	WebhookSecret  string
	WebhookTimeout time.Duration
}

func Load() *Config {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	driver := getEnv("DATABASE_DRIVER", "sqlite")
	var dsn string
	if driver == "sqlite" {
		dsn = getEnv("DATABASE_DSN", "accounts.db")
	} else {
		dsn = getEnv("DATABASE_DSN", "")
	}

	cfg := &Config{
		ServerAddr:   getEnv("SERVER_ADDR", ":8080"),
		BaseURL:      getEnv("BASE_URL", "http://localhost:8080"),
		IsProduction: getEnvBool("PRODUCTION", false),

		SigningMode:     getEnv("TOKEN_SIGNING_MODE", SigningModeHMAC),
		JWTSecret:       getEnv("JWT_SECRET", "dev-secret-change-in-production"),
		AccessTokenTTL:  getEnvDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL: getEnvDuration("REFRESH_TOKEN_TTL", 720*time.Hour), // 30 days

		AuthRequestTTL: getEnvDuration("AUTH_REQUEST_TTL", 10*time.Minute),
		AuthCodeTTL:    getEnvDuration("AUTH_CODE_TTL", 10*time.Minute),
		PKCERequired:   getEnvBool("PKCE_REQUIRED", false),

		SessionSecret: getEnv("SESSION_SECRET", "session-secret-change-in-production"),
		SessionMaxAge: getEnvInt("SESSION_MAX_AGE", 3600),

		DatabaseDriver: driver,
		DatabaseDSN:    dsn,

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		CacheType:     getEnv("CACHE_TYPE", CacheTypeMemory),

		GlobalRateLimitPerMinute: getEnvInt("GLOBAL_RATE_LIMIT_PER_MINUTE", 300),
		RateLimitStore:           getEnv("RATE_LIMIT_STORE", RateLimitStoreMemory),

		GoogleOAuthEnabled: getEnvBool("GOOGLE_OAUTH_ENABLED", false),
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", ""),
		GoogleScopes:       getEnvSlice("GOOGLE_SCOPES", []string{"openid", "email", "profile"}),

		GitHubOAuthEnabled: getEnvBool("GITHUB_OAUTH_ENABLED", false),
		GitHubClientID:     getEnv("GITHUB_CLIENT_ID", ""),
		GitHubClientSecret: getEnv("GITHUB_CLIENT_SECRET", ""),
		GitHubRedirectURL:  getEnv("GITHUB_REDIRECT_URL", ""),
		GitHubScopes:       getEnvSlice("GITHUB_SCOPES", []string{"user:email"}),

		ProviderTimeout: getEnvDuration("PROVIDER_TIMEOUT", 10*time.Second),

		OAuthAutoRegister: getEnvBool("OAUTH_AUTO_REGISTER", true),

		EnableAuditLogging: getEnvBool("ENABLE_AUDIT_LOGGING", true),
		AuditLogBufferSize: getEnvInt("AUDIT_LOG_BUFFER_SIZE", 1000),
		AuditLogRetention:  getEnvDuration("AUDIT_LOG_RETENTION", 90*24*time.Hour),

		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),

		WebhookURL:     getEnv("WEBHOOK_URL", ""),
		WebhookSecret:  getEnv("WEBHOOK_SECRET", ""),
		WebhookTimeout: getEnvDuration("WEBHOOK_TIMEOUT", 10*time.Second),
	}

	if raw := os.Getenv("ED25519_PRIVATE_KEY"); raw != "" {
		if key, err := parseEd25519Key(raw); err == nil {
			cfg.Ed25519PrivateKey = key
			cfg.Ed25519PublicKey = key.Public().(ed25519.PublicKey)
		}
	}

	return cfg
}

// Validate rejects configurations that are unsafe to run.
func (c *Config) Validate() error {
	switch c.SigningMode {
	case SigningModeEd25519:
		if len(c.Ed25519PrivateKey) != ed25519.PrivateKeySize {
			return errors.New("TOKEN_SIGNING_MODE=ed25519 requires a valid ED25519_PRIVATE_KEY")
		}
	case SigningModeHMAC:
		if c.IsProduction {
			return errors.New("hs256 signing is not allowed in production; set TOKEN_SIGNING_MODE=ed25519")
		}
		if c.JWTSecret == "" {
			return errors.New("JWT_SECRET is required in hs256 mode")
		}
	default:
		return fmt.Errorf("unsupported TOKEN_SIGNING_MODE: %s", c.SigningMode)
	}

	if c.IsProduction && c.SessionSecret == "session-secret-change-in-production" {
		return errors.New("SESSION_SECRET must be changed for production")
	}

	if c.DatabaseDriver != "sqlite" && c.DatabaseDriver != "postgres" {
		return fmt.Errorf("unsupported DATABASE_DRIVER: %s", c.DatabaseDriver)
	}
	if c.DatabaseDriver == "postgres" && c.DatabaseDSN == "" {
		return errors.New("DATABASE_DSN is required for postgres")
	}

	return nil
}

// parseEd25519Key decodes a base64-encoded 64-byte Ed25519 private key,
// or expands a 32-byte seed.
func parseEd25519Key(raw string) (ed25519.PrivateKey, error) {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("ED25519_PRIVATE_KEY is not valid base64: %w", err)
	}

	switch len(decoded) {
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(decoded), nil
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(decoded), nil
	default:
		return nil, fmt.Errorf("ED25519_PRIVATE_KEY must be %d or %d bytes, got %d",
			ed25519.SeedSize, ed25519.PrivateKeySize, len(decoded))
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := []string{}
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		if len(parts) > 0 {
			return parts
		}
	}
	return defaultValue
}
