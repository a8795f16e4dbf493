package cache

import (
	"context"
	"time"
)

// Cache defines the primitive operations for a key-value cache.
// T is the stored value type (e.g. a permission set or a profile snapshot).
type Cache[T any] interface {
	// Get retrieves a single value from cache.
	// Returns ErrCacheMiss if the key does not exist or has expired.
	Get(ctx context.Context, key string) (T, error)

	// Set stores a single value in cache with TTL
	Set(ctx context.Context, key string, value T, ttl time.Duration) error

	// Delete removes a key from cache
	Delete(ctx context.Context, key string) error

	// Close closes the cache connection
	Close() error

	// Health checks if the cache is healthy
	Health(ctx context.Context) error
}

// GetWithFetch is a cache-aside helper for any Cache implementation.
// On cache miss it calls fetchFunc, stores the result, and returns it.
// Note: does not provide stampede protection under concurrent load;
// use RueidisAsideCache when that matters.
func GetWithFetch[T any](
	ctx context.Context,
	c Cache[T],
	key string,
	ttl time.Duration,
	fetchFunc func(ctx context.Context, key string) (T, error),
) (T, error) {
	if value, err := c.Get(ctx, key); err == nil {
		return value, nil
	}

	value, err := fetchFunc(ctx, key)
	if err != nil {
		var zero T
		return zero, err
	}

	_ = c.Set(ctx, key, value, ttl)
	return value, nil
}
