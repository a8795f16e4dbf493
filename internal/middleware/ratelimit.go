package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/elixpo/elixpoaccounts/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	limiterRedis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// EndpointRateLimit applies a named persistent budget to one endpoint,
// keyed by client IP. Decisions come from the database-backed sliding
// window, so blocks survive restarts.
func EndpointRateLimit(limits *services.RateLimitService, endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision := limits.Check(c, c.ClientIP(), endpoint)

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", decision.Limit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", decision.Remaining))
		c.Header("X-RateLimit-Window", fmt.Sprintf("%d", int(decision.Window.Seconds())))

		if !decision.Allowed {
			retryAfter := int(decision.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":             "rate_limit_exceeded",
				"error_description": "Too many attempts. Try again later.",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// GlobalRateLimitConfig configures the coarse per-IP limiter that fronts
// the whole API.
type GlobalRateLimitConfig struct {
	RequestsPerMinute int
	StoreType         string // "memory" or "redis"

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// NewGlobalRateLimiter builds the per-IP limiter. The memory store is for
// single-instance deployments; redis keeps the counters shared across pods.
func NewGlobalRateLimiter(cfg GlobalRateLimitConfig) (gin.HandlerFunc, error) {
	rate := limiter.Rate{
		Period: 1 * time.Minute,
		Limit:  int64(cfg.RequestsPerMinute),
	}

	var store limiter.Store
	var err error

	switch cfg.StoreType {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.RedisAddr, err)
		}

		store, err = limiterRedis.NewStoreWithOptions(client, limiter.StoreOptions{
			Prefix:          "ratelimit",
			CleanUpInterval: 5 * time.Minute,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis store: %w", err)
		}

	default:
		store = memory.NewStore()
	}

	instance := limiter.New(store, rate)

	return mgin.NewMiddleware(instance, mgin.WithLimitReachedHandler(func(c *gin.Context) {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":             "rate_limit_exceeded",
			"error_description": "Too many requests. Please try again later.",
		})
		c.Abort()
	})), nil
}
