package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/rueidisaside"
)

// RueidisAsideCache implements the cache-aside pattern with rueidisaside.
// Client-side caching over RESP3 keeps hot permission sets in process memory
// and Redis invalidates local copies when keys change. On cache miss the
// fetch function runs exactly once across concurrent callers.
type RueidisAsideCache[T any] struct {
	client    rueidisaside.CacheAsideClient
	keyPrefix string
	clientTTL time.Duration
}

// NewRueidisAsideCache creates a Redis cache with client-side caching.
// clientTTL bounds how long a value may live in the local cache.
func NewRueidisAsideCache[T any](
	addr, password string,
	db int,
	keyPrefix string,
	clientTTL time.Duration,
) (*RueidisAsideCache[T], error) {
	client, err := rueidisaside.NewClient(rueidisaside.ClientOption{
		ClientOption: rueidis.ClientOption{
			InitAddress:       []string{addr},
			Password:          password,
			SelectDB:          db,
			DisableCache:      false,
			CacheSizeEachConn: 128 * 1024 * 1024,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create rueidisaside client: %w", err)
	}

	return &RueidisAsideCache[T]{
		client:    client,
		keyPrefix: keyPrefix,
		clientTTL: clientTTL,
	}, nil
}

func (r *RueidisAsideCache[T]) Get(ctx context.Context, key string) (T, error) {
	fullKey := r.keyPrefix + key
	var zero T

	val, err := r.client.Get(
		ctx,
		r.clientTTL,
		fullKey,
		func(ctx context.Context, key string) (string, error) {
			// no fetch function wired here, signal a plain miss
			return "", ErrCacheMiss
		},
	)
	if err != nil {
		if err == ErrCacheMiss {
			return zero, ErrCacheMiss
		}
		return zero, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	if val == "" {
		return zero, ErrCacheMiss
	}

	var value T
	if err := json.Unmarshal([]byte(val), &value); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return value, nil
}

// GetWithFetch retrieves a value through rueidisaside's managed cache-aside
// path. fetchFunc populates the cache on miss with stampede protection.
func (r *RueidisAsideCache[T]) GetWithFetch(
	ctx context.Context,
	key string,
	ttl time.Duration,
	fetchFunc func(ctx context.Context, key string) (T, error),
) (T, error) {
	fullKey := r.keyPrefix + key
	var zero T

	val, err := r.client.Get(
		ctx,
		ttl,
		fullKey,
		func(ctx context.Context, key string) (string, error) {
			value, err := fetchFunc(ctx, key)
			if err != nil {
				return "", err
			}
			encoded, err := json.Marshal(value)
			if err != nil {
				return "", err
			}
			return string(encoded), nil
		},
	)
	if err != nil {
		return zero, fmt.Errorf("failed to get with fetch: %w", err)
	}

	var value T
	if err := json.Unmarshal([]byte(val), &value); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return value, nil
}

func (r *RueidisAsideCache[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	fullKey := r.keyPrefix + key

	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}

	cmd := r.client.Client().B().Set().
		Key(fullKey).
		Value(string(encoded)).
		Ex(ttl).
		Build()

	if err := r.client.Client().Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

func (r *RueidisAsideCache[T]) Delete(ctx context.Context, key string) error {
	fullKey := r.keyPrefix + key

	cmd := r.client.Client().B().Del().Key(fullKey).Build()
	if err := r.client.Client().Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

func (r *RueidisAsideCache[T]) Close() error {
	r.client.Close()
	return nil
}

func (r *RueidisAsideCache[T]) Health(ctx context.Context) error {
	cmd := r.client.Client().B().Ping().Build()
	if err := r.client.Client().Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}
