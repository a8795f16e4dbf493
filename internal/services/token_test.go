package services

import (
	"context"
	"testing"
	"time"

	"github.com/elixpo/elixpoaccounts/internal/store"
	"github.com/elixpo/elixpoaccounts/internal/token"
	"github.com/elixpo/elixpoaccounts/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokenService(t *testing.T) (*TokenService, *store.Store) {
	s := setupTestStore(t)
	cfg := testConfig()
	svc := NewTokenService(s, token.NewProvider(cfg), cfg, quietAudit(s), noop())
	return svc, s
}

func TestIssuePairPersistsRefreshCredential(t *testing.T) {
	svc, h := newTokenService(t)
	user := createTestUser(t, h, "alice@example.com")
	ctx := context.Background()

	pair, err := svc.IssuePair(ctx, user, ProviderLocal, "", "password")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.Equal(t, int64(3600), pair.ExpiresIn)

	cred, err := h.GetRefreshCredentialByHash(util.SHA256Hex(pair.RefreshToken))
	require.NoError(t, err)
	assert.Equal(t, user.ID, cred.UserID)
	assert.False(t, cred.Revoked)
}

func TestIssuePairFailsOpenOnCredentialStorage(t *testing.T) {
	svc, h := newTokenService(t)
	user := createTestUser(t, h, "alice@example.com")
	ctx := context.Background()

	// Break refresh credential storage
	require.NoError(t, h.DB().Migrator().DropTable("refresh_credentials"))

	pair, err := svc.IssuePair(ctx, user, ProviderLocal, "", "password")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	// The access token works; the unpersisted refresh token cannot rotate
	claims, err := svc.VerifyAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.Subject)

	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.Error(t, err)
}

func TestRefreshRotatesCredential(t *testing.T) {
	svc, h := newTokenService(t)
	user := createTestUser(t, h, "alice@example.com")
	ctx := context.Background()

	pair, err := svc.IssuePair(ctx, user, ProviderLocal, "", "password")
	require.NoError(t, err)

	rotated, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	// The old credential is revoked, the new one is live
	oldCred, err := h.GetRefreshCredentialByHash(util.SHA256Hex(pair.RefreshToken))
	require.NoError(t, err)
	assert.True(t, oldCred.Revoked)

	newCred, err := h.GetRefreshCredentialByHash(util.SHA256Hex(rotated.RefreshToken))
	require.NoError(t, err)
	assert.False(t, newCred.Revoked)
}

func TestRefreshReuseRevokesFamily(t *testing.T) {
	svc, h := newTokenService(t)
	user := createTestUser(t, h, "alice@example.com")
	ctx := context.Background()

	pair, err := svc.IssuePair(ctx, user, ProviderLocal, "", "password")
	require.NoError(t, err)

	rotated, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)

	// Replaying the rotated-away token is treated as a leak
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrRefreshTokenRevoked)

	// The whole family is gone, including the freshly rotated credential
	newCred, err := h.GetRefreshCredentialByHash(util.SHA256Hex(rotated.RefreshToken))
	require.NoError(t, err)
	assert.True(t, newCred.Revoked)

	_, err = svc.Refresh(ctx, rotated.RefreshToken)
	assert.ErrorIs(t, err, ErrRefreshTokenRevoked)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	svc, h := newTokenService(t)
	user := createTestUser(t, h, "alice@example.com")
	ctx := context.Background()

	pair, err := svc.IssuePair(ctx, user, ProviderLocal, "", "password")
	require.NoError(t, err)

	// An access token carries the wrong kind discriminator
	_, err = svc.Refresh(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrRefreshTokenInvalid)
}

func TestRefreshInactiveUser(t *testing.T) {
	svc, h := newTokenService(t)
	user := createTestUser(t, h, "alice@example.com")
	ctx := context.Background()

	pair, err := svc.IssuePair(ctx, user, ProviderLocal, "", "password")
	require.NoError(t, err)

	user.IsActive = false
	require.NoError(t, h.UpdateUser(user))

	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrUserInactive)
}

func TestLogoutIsIdempotent(t *testing.T) {
	svc, h := newTokenService(t)
	user := createTestUser(t, h, "alice@example.com")
	ctx := context.Background()

	pair, err := svc.IssuePair(ctx, user, ProviderLocal, "", "password")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, pair.RefreshToken))
	require.NoError(t, svc.Logout(ctx, pair.RefreshToken))
	require.NoError(t, svc.Logout(ctx, "not-a-token-we-ever-issued"))
	require.NoError(t, svc.Logout(ctx, ""))

	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrRefreshTokenRevoked)
}

func TestVerifyAccessTokenRejectsRefreshKind(t *testing.T) {
	svc, h := newTokenService(t)
	user := createTestUser(t, h, "alice@example.com")

	pair, err := svc.IssuePair(context.Background(), user, ProviderLocal, "", "password")
	require.NoError(t, err)

	claims, err := svc.VerifyAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.Subject)
	assert.Equal(t, user.Email, claims.Email)

	_, err = svc.VerifyAccessToken(pair.RefreshToken)
	assert.Error(t, err)
}

func TestSSOVerify(t *testing.T) {
	svc, h := newTokenService(t)
	user := createTestUser(t, h, "alice@example.com")

	pair, err := svc.IssuePair(context.Background(), user, ProviderLocal, "", "password")
	require.NoError(t, err)

	result := svc.SSOVerify(pair.AccessToken)
	assert.True(t, result.Valid)
	assert.Equal(t, user.ID, result.Subject)
	assert.Equal(t, user.Email, result.Email)
	assert.Greater(t, result.ExpiresAt, time.Now().Unix())

	// Garbage produces a negative result, not an error
	bad := svc.SSOVerify("garbage")
	assert.False(t, bad.Valid)
	assert.Equal(t, "invalid_token", bad.Error)
	assert.Empty(t, bad.Subject)
}

func TestRevokeAllForUser(t *testing.T) {
	svc, h := newTokenService(t)
	user := createTestUser(t, h, "alice@example.com")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.IssuePair(ctx, user, ProviderLocal, "", "password")
		require.NoError(t, err)
	}

	count, err := svc.RevokeAllForUser(ctx, user.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	// Second sweep finds nothing live
	count, err = svc.RevokeAllForUser(ctx, user.ID, "admin")
	require.NoError(t, err)
	assert.Zero(t, count)
}
