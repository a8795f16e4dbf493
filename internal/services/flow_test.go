package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/elixpo/elixpoaccounts/internal/auth"
	"github.com/elixpo/elixpoaccounts/internal/models"
	"github.com/elixpo/elixpoaccounts/internal/store"
	"github.com/elixpo/elixpoaccounts/internal/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlowService(t *testing.T, autoRegister bool) (*FlowService, *store.Store) {
	s := setupTestStore(t)
	cfg := testConfig()
	cfg.OAuthAutoRegister = autoRegister
	audit := quietAudit(s)

	providers := map[string]*auth.Provider{
		"google": auth.NewGoogleProvider(auth.ProviderConfig{
			ClientID:     "test-client",
			ClientSecret: "test-secret",
			RedirectURL:  "http://localhost:8080/callback/google",
			Scopes:       []string{"openid", "email", "profile"},
		}),
	}

	tokens := NewTokenService(s, token.NewProvider(cfg), cfg, audit, noop())
	return NewFlowService(s, providers, tokens, cfg, audit, noop()), s
}

func TestBeginPersistsHandshake(t *testing.T) {
	svc, s := newFlowService(t, true)

	authURL, err := svc.Begin(context.Background(), "google")
	require.NoError(t, err)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	q := parsed.Query()

	state := q.Get("state")
	require.NotEmpty(t, state)
	assert.NotEmpty(t, q.Get("nonce"))
	assert.NotEmpty(t, q.Get("code_challenge"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))

	// The stored verifier is never embedded in the URL
	req, err := s.GetAuthorizationRequestByState(state)
	require.NoError(t, err)
	assert.NotEmpty(t, req.CodeVerifier)
	assert.NotContains(t, authURL, req.CodeVerifier)
	assert.Equal(t, "google", req.Provider)
}

func TestBeginUnknownProvider(t *testing.T) {
	svc, _ := newFlowService(t, true)

	_, err := svc.Begin(context.Background(), "myspace")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestCompleteRejectsUnknownState(t *testing.T) {
	svc, _ := newFlowService(t, true)

	_, _, err := svc.Complete(context.Background(), "never-issued-state", "some-code")
	assert.ErrorIs(t, err, ErrStateInvalid)
}

func TestCompleteRejectsExpiredState(t *testing.T) {
	svc, s := newFlowService(t, true)
	ctx := context.Background()

	authURL, err := svc.Begin(ctx, "google")
	require.NoError(t, err)
	parsed, _ := url.Parse(authURL)
	state := parsed.Query().Get("state")

	err = s.DB().Model(&models.AuthorizationRequest{}).
		Where("state = ?", state).
		Update("expires_at", time.Now().Add(-time.Minute)).Error
	require.NoError(t, err)

	_, _, err = svc.Complete(ctx, state, "some-code")
	assert.ErrorIs(t, err, ErrStateExpired)

	// The state was consumed even though the exchange never ran
	_, _, err = svc.Complete(ctx, state, "some-code")
	assert.ErrorIs(t, err, ErrStateInvalid)
}

func TestCompleteBoundsProviderCalls(t *testing.T) {
	s := setupTestStore(t)
	cfg := testConfig()
	cfg.ProviderTimeout = 50 * time.Millisecond
	audit := quietAudit(s)

	// A token endpoint that never answers within the budget
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer slow.Close()

	providers := map[string]*auth.Provider{
		"google": auth.NewGoogleProvider(auth.ProviderConfig{
			ClientID:     "test-client",
			ClientSecret: "test-secret",
			RedirectURL:  "http://localhost:8080/callback/google",
			AuthURL:      slow.URL + "/authorize",
			TokenURL:     slow.URL + "/token",
		}),
	}
	tokens := NewTokenService(s, token.NewProvider(cfg), cfg, audit, noop())
	svc := NewFlowService(s, providers, tokens, cfg, audit, noop())

	ctx := context.Background()
	authURL, err := svc.Begin(ctx, "google")
	require.NoError(t, err)
	parsed, _ := url.Parse(authURL)
	state := parsed.Query().Get("state")

	start := time.Now()
	_, _, err = svc.Complete(ctx, state, "some-code")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context deadline exceeded")
	assert.Less(t, time.Since(start), time.Second)
}

func TestResolveIdentityExistingLink(t *testing.T) {
	svc, s := newFlowService(t, false)
	user := createTestUser(t, s, "alice@example.com")
	ctx := context.Background()

	require.NoError(t, s.CreateIdentity(&models.Identity{
		ID:                "id-1",
		UserID:            user.ID,
		Provider:          "google",
		ProviderSubjectID: "g-123",
	}))

	got, err := svc.resolveIdentity(ctx, "google", &auth.Profile{
		SubjectID:   "g-123",
		Email:       "alice@newmail.example.com", // provider email changed
		DisplayName: "Alice",
	})
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
}

func TestResolveIdentityProviderLockIn(t *testing.T) {
	svc, s := newFlowService(t, true)
	user := createTestUser(t, s, "alice@example.com")
	ctx := context.Background()

	require.NoError(t, s.CreateIdentity(&models.Identity{
		ID:                "id-1",
		UserID:            user.ID,
		Provider:          "google",
		ProviderSubjectID: "g-123",
	}))

	// The same email arriving from a different provider is rejected, and
	// the error names the methods the account actually has
	_, err := svc.resolveIdentity(ctx, "github", &auth.Profile{
		SubjectID: "gh-999",
		Email:     "alice@example.com",
	})
	require.ErrorIs(t, err, ErrProviderMismatch)
	assert.Contains(t, err.Error(), "google")
	assert.Contains(t, err.Error(), "password")
}

func TestResolveIdentityAutoRegister(t *testing.T) {
	svc, s := newFlowService(t, true)
	ctx := context.Background()

	user, err := svc.resolveIdentity(ctx, "google", &auth.Profile{
		SubjectID:   "g-777",
		Email:       "new@example.com",
		DisplayName: "New User",
	})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", user.Email)
	assert.False(t, user.HasPassword())

	// The identity link and default role come with the account
	identity, err := s.GetIdentity("google", "g-777")
	require.NoError(t, err)
	assert.Equal(t, user.ID, identity.UserID)

	roles, err := s.GetRolesByUserID(user.ID)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, models.RoleUser, roles[0].Name)
}

func TestResolveIdentityAutoRegisterDisabled(t *testing.T) {
	svc, _ := newFlowService(t, false)

	_, err := svc.resolveIdentity(context.Background(), "google", &auth.Profile{
		SubjectID: "g-777",
		Email:     "new@example.com",
	})
	assert.ErrorIs(t, err, ErrAutoRegisterOff)
}

func TestResolveIdentityInactiveUser(t *testing.T) {
	svc, s := newFlowService(t, true)
	user := createTestUser(t, s, "alice@example.com")
	user.IsActive = false
	require.NoError(t, s.UpdateUser(user))

	require.NoError(t, s.CreateIdentity(&models.Identity{
		ID:                "id-1",
		UserID:            user.ID,
		Provider:          "google",
		ProviderSubjectID: "g-123",
	}))

	_, err := svc.resolveIdentity(context.Background(), "google", &auth.Profile{
		SubjectID: "g-123",
		Email:     "alice@example.com",
	})
	assert.ErrorIs(t, err, ErrUserInactive)
}

func TestFlowCleanupExpired(t *testing.T) {
	svc, s := newFlowService(t, true)
	ctx := context.Background()

	_, err := svc.Begin(ctx, "google")
	require.NoError(t, err)

	require.NoError(t, s.DB().Model(&models.AuthorizationRequest{}).
		Where("1 = 1").
		Update("expires_at", time.Now().Add(-time.Minute)).Error)

	deleted, err := svc.CleanupExpired()
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}
