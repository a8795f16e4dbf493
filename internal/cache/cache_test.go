package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_GetSet(t *testing.T) {
	c := NewMemoryCache[[]string]()
	ctx := context.Background()

	_, err := c.Get(ctx, "perms:u1")
	assert.ErrorIs(t, err, ErrCacheMiss)

	perms := []string{"users:read", "users:write"}
	require.NoError(t, c.Set(ctx, "perms:u1", perms, time.Minute))

	got, err := c.Get(ctx, "perms:u1")
	require.NoError(t, err)
	assert.Equal(t, perms, got)
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache[string]()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", 10*time.Millisecond))

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	time.Sleep(20 * time.Millisecond)

	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCache_Delete(t *testing.T) {
	c := NewMemoryCache[int]()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "count", 42, time.Minute))
	require.NoError(t, c.Delete(ctx, "count"))

	_, err := c.Get(ctx, "count")
	assert.ErrorIs(t, err, ErrCacheMiss)

	// Deleting a missing key is not an error
	assert.NoError(t, c.Delete(ctx, "missing"))
}

func TestMemoryCache_Health(t *testing.T) {
	c := NewMemoryCache[string]()
	assert.NoError(t, c.Health(context.Background()))
}

func TestGetWithFetch_MissThenHit(t *testing.T) {
	c := NewMemoryCache[[]string]()
	ctx := context.Background()

	fetchCalls := 0
	fetch := func(ctx context.Context, key string) ([]string, error) {
		fetchCalls++
		return []string{"roles:read"}, nil
	}

	got, err := GetWithFetch(ctx, c, "perms:u2", time.Minute, fetch)
	require.NoError(t, err)
	assert.Equal(t, []string{"roles:read"}, got)
	assert.Equal(t, 1, fetchCalls)

	// Second call is served from cache
	got, err = GetWithFetch(ctx, c, "perms:u2", time.Minute, fetch)
	require.NoError(t, err)
	assert.Equal(t, []string{"roles:read"}, got)
	assert.Equal(t, 1, fetchCalls)
}

func TestGetWithFetch_FetchError(t *testing.T) {
	c := NewMemoryCache[string]()
	ctx := context.Background()

	fetchErr := errors.New("db down")
	_, err := GetWithFetch(ctx, c, "k", time.Minute, func(ctx context.Context, key string) (string, error) {
		return "", fetchErr
	})
	assert.ErrorIs(t, err, fetchErr)

	// Errors are not cached
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCache_Close(t *testing.T) {
	c := NewMemoryCache[string]()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	require.NoError(t, c.Close())

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
