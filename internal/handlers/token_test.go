package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/elixpo/elixpoaccounts/internal/models"
	"github.com/elixpo/elixpoaccounts/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// postForm sends a form-encoded POST, optionally with HTTP Basic Auth and
// session cookies carried over from a previous response.
func (e *handlerEnv) postForm(
	t *testing.T,
	path string,
	form url.Values,
	basicAuth *[2]string,
	cookies []*http.Cookie,
) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if basicAuth != nil {
		req.SetBasicAuth(basicAuth[0], basicAuth[1])
	}
	for _, ck := range cookies {
		req.AddCookie(ck)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func pkcePair() (verifier, challenge string) {
	verifier = "handler-test-verifier-0123456789abcdefghij"
	sum := sha256.Sum256([]byte(verifier))
	return verifier, base64.RawURLEncoding.EncodeToString(sum[:])
}

// registerConfidentialClient registers a confidential client through the
// service layer and returns it with its plaintext secret.
func (e *handlerEnv) registerConfidentialClient(t *testing.T) (*models.OAuthClient, string) {
	t.Helper()
	registered, err := e.clients.Register(
		context.Background(),
		"admin-id",
		"Handler Test App",
		"",
		models.ClientTypeConfidential,
		[]string{"https://app.example.com/callback"},
		[]models.Scope{models.ScopeOpenID, models.ScopeEmail},
	)
	require.NoError(t, err)
	return registered.Client, registered.ClientSecret
}

// loginCookies logs a user in over HTTP and returns the session cookies.
func (e *handlerEnv) loginCookies(t *testing.T, email string) []*http.Cookie {
	t.Helper()
	w := e.postJSON(t, "/auth/login", map[string]string{
		"email":    email,
		"password": testPassword,
	}, "")
	require.Equal(t, http.StatusOK, w.Code)
	return w.Result().Cookies()
}

func TestTokenUnsupportedGrantType(t *testing.T) {
	env := newHandlerEnv(t)

	w := env.postForm(t, "/oauth/token", url.Values{
		"grant_type": {"password"},
	}, nil, nil)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "unsupported_grant_type", decodeJSON(t, w)["error"])
}

func TestAuthorizationCodeFlowEndToEnd(t *testing.T) {
	env := newHandlerEnv(t)
	user, _ := env.registerAndLogin(t, "flow@example.com")
	client, secret := env.registerConfidentialClient(t)
	cookies := env.loginCookies(t, "flow@example.com")
	verifier, challenge := pkcePair()

	// Consent approval redirects back to the client with a code
	w := env.postForm(t, "/oauth/authorize", url.Values{
		"client_id":             {client.ClientID},
		"redirect_uri":          {"https://app.example.com/callback"},
		"response_type":         {"code"},
		"scope":                 {"openid email"},
		"state":                 {"client-state-1"},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
		"approve":               {"true"},
	}, nil, cookies)
	require.Equal(t, http.StatusFound, w.Code)

	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "app.example.com", loc.Host)
	assert.Equal(t, "client-state-1", loc.Query().Get("state"))
	code := loc.Query().Get("code")
	require.NotEmpty(t, code)

	// Exchange the code at the token endpoint
	w = env.postForm(t, "/oauth/token", url.Values{
		"grant_type":    {GrantTypeAuthorizationCode},
		"code":          {code},
		"redirect_uri":  {"https://app.example.com/callback"},
		"code_verifier": {verifier},
	}, &[2]string{client.ClientID, secret}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeJSON(t, w)
	assert.NotEmpty(t, resp["access_token"])
	assert.NotEmpty(t, resp["refresh_token"])

	claims, err := env.tokens.VerifyAccessToken(resp["access_token"].(string))
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.Subject)

	// Replay of the same code fails
	w = env.postForm(t, "/oauth/token", url.Values{
		"grant_type":    {GrantTypeAuthorizationCode},
		"code":          {code},
		"redirect_uri":  {"https://app.example.com/callback"},
		"code_verifier": {verifier},
	}, &[2]string{client.ClientID, secret}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_grant", decodeJSON(t, w)["error"])
}

func TestConsentDenialRedirectsWithAccessDenied(t *testing.T) {
	env := newHandlerEnv(t)
	env.registerAndLogin(t, "deny@example.com")
	client, _ := env.registerConfidentialClient(t)
	cookies := env.loginCookies(t, "deny@example.com")
	_, challenge := pkcePair()

	w := env.postForm(t, "/oauth/authorize", url.Values{
		"client_id":             {client.ClientID},
		"redirect_uri":          {"https://app.example.com/callback"},
		"response_type":         {"code"},
		"scope":                 {"openid"},
		"state":                 {"deny-state"},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
		"approve":               {"false"},
	}, nil, cookies)
	require.Equal(t, http.StatusFound, w.Code)

	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "access_denied", loc.Query().Get("error"))
	assert.Equal(t, "deny-state", loc.Query().Get("state"))
	assert.Empty(t, loc.Query().Get("code"))
}

func TestAuthorizeRejectsUnregisteredRedirectWithoutRedirecting(t *testing.T) {
	env := newHandlerEnv(t)
	env.registerAndLogin(t, "noredirect@example.com")
	client, _ := env.registerConfidentialClient(t)
	cookies := env.loginCookies(t, "noredirect@example.com")

	req, err := http.NewRequest(http.MethodGet,
		"/oauth/authorize?client_id="+client.ClientID+
			"&redirect_uri="+url.QueryEscape("https://evil.example.com/cb")+
			"&response_type=code&scope=openid", nil)
	require.NoError(t, err)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", decodeJSON(t, w)["error"])
}

func TestAuthorizeRequiresSession(t *testing.T) {
	env := newHandlerEnv(t)
	client, _ := env.registerConfidentialClient(t)

	w := env.get(t, "/oauth/authorize?client_id="+client.ClientID+
		"&redirect_uri="+url.QueryEscape("https://app.example.com/callback")+
		"&response_type=code", "")

	require.Equal(t, http.StatusFound, w.Code)
	assert.Contains(t, w.Header().Get("Location"), "/login")
}

func TestRefreshTokenGrant(t *testing.T) {
	env := newHandlerEnv(t)
	_, pair := env.registerAndLogin(t, "rotate@example.com")

	w := env.postForm(t, "/oauth/token", url.Values{
		"grant_type":    {GrantTypeRefreshToken},
		"refresh_token": {pair.RefreshToken},
	}, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeJSON(t, w)
	assert.NotEmpty(t, resp["access_token"])
	assert.NotEqual(t, pair.RefreshToken, resp["refresh_token"])

	// Old token is spent
	w = env.postForm(t, "/oauth/token", url.Values{
		"grant_type":    {GrantTypeRefreshToken},
		"refresh_token": {pair.RefreshToken},
	}, nil, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_grant", decodeJSON(t, w)["error"])
}

func TestClientCredentialsGrant(t *testing.T) {
	env := newHandlerEnv(t)
	client, secret := env.registerConfidentialClient(t)

	w := env.postForm(t, "/oauth/token", url.Values{
		"grant_type": {GrantTypeClientCredentials},
	}, &[2]string{client.ClientID, secret}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeJSON(t, w)
	assert.NotEmpty(t, resp["access_token"])
	assert.Equal(t, "Bearer", resp["token_type"])
	// RFC 6749 §4.4.3: no refresh token for machine tokens
	assert.Nil(t, resp["refresh_token"])
}

func TestClientCredentialsGrantRejectsBadSecret(t *testing.T) {
	env := newHandlerEnv(t)
	client, _ := env.registerConfidentialClient(t)

	w := env.postForm(t, "/oauth/token", url.Values{
		"grant_type": {GrantTypeClientCredentials},
	}, &[2]string{client.ClientID, "wrong-secret"}, nil)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid_client", decodeJSON(t, w)["error"])
	assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))
}

func TestTokenInfoEndpoint(t *testing.T) {
	env := newHandlerEnv(t)
	user, pair := env.registerAndLogin(t, "introspect@example.com")

	req, err := http.NewRequest(http.MethodGet, "/oauth/tokeninfo", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, true, resp["active"])
	assert.Equal(t, user.ID, resp["sub"])
}

func TestRevokeEndpointNeverLeaksValidity(t *testing.T) {
	env := newHandlerEnv(t)
	_, pair := env.registerAndLogin(t, "revoke@example.com")

	// Valid token
	w := env.postForm(t, "/oauth/revoke", url.Values{"token": {pair.RefreshToken}}, nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Garbage token gets the same answer
	w = env.postForm(t, "/oauth/revoke", url.Values{"token": {"not-a-token"}}, nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// The revoked token is dead
	_, err := env.tokens.Refresh(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, services.ErrRefreshTokenRevoked)
}
