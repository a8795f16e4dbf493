package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/elixpo/elixpoaccounts/internal/middleware"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createKeyOverHTTP mints a key via the HTTP surface and returns the response.
func (e *handlerEnv) createKeyOverHTTP(t *testing.T, bearer string, scopes []string) map[string]any {
	t.Helper()
	w := e.postJSON(t, "/apikeys", map[string]any{
		"name":   "service key",
		"scopes": scopes,
	}, bearer)
	require.Equal(t, http.StatusCreated, w.Code)
	return decodeJSON(t, w)
}

func (e *handlerEnv) ssoVerify(t *testing.T, apiKey, token string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(map[string]string{"token": token})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, "/sso/verify", bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestAPIKeyLifecycleOverHTTP(t *testing.T) {
	env := newHandlerEnv(t)
	_, pair := env.registerAndLogin(t, "keys@example.com")

	created := env.createKeyOverHTTP(t, pair.AccessToken, []string{"sso:verify", "read"})
	plaintext := created["key"].(string)
	keyID := created["id"].(string)
	assert.Len(t, plaintext, 64)
	assert.Equal(t, plaintext[:8], created["prefix"])

	// Listing shows the key without the plaintext
	w := env.get(t, "/apikeys", pair.AccessToken)
	require.Equal(t, http.StatusOK, w.Code)
	listed := decodeJSON(t, w)["keys"].([]any)
	require.Len(t, listed, 1)
	first := listed[0].(map[string]any)
	assert.Equal(t, keyID, first["id"])
	assert.Nil(t, first["key"])

	// Revoke, then the key stops authenticating
	req, err := http.NewRequest(http.MethodDelete, "/apikeys/"+keyID, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	w = env.ssoVerify(t, plaintext, pair.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSSOVerifyWithAPIKey(t *testing.T) {
	env := newHandlerEnv(t)
	user, pair := env.registerAndLogin(t, "sso@example.com")

	created := env.createKeyOverHTTP(t, pair.AccessToken, []string{"sso:verify"})
	plaintext := created["key"].(string)

	// Valid access token verifies positively
	w := env.ssoVerify(t, plaintext, pair.AccessToken)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeJSON(t, w)
	assert.Equal(t, true, resp["valid"])
	assert.Equal(t, user.ID, resp["sub"])

	// Rate limit headers are present on authenticated responses
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))

	// Garbage tokens verify negatively with HTTP 200
	w = env.ssoVerify(t, plaintext, "not-a-jwt")
	require.Equal(t, http.StatusOK, w.Code)
	resp = decodeJSON(t, w)
	assert.Equal(t, false, resp["valid"])
	assert.NotEmpty(t, resp["error"])
}

func TestSSOVerifyViaGET(t *testing.T) {
	env := newHandlerEnv(t)
	user, pair := env.registerAndLogin(t, "ssoget@example.com")

	created := env.createKeyOverHTTP(t, pair.AccessToken, []string{"sso:verify"})

	// The legacy X-API-Key header still authenticates
	req, err := http.NewRequest(http.MethodGet, "/sso/verify?token="+url.QueryEscape(pair.AccessToken), nil)
	require.NoError(t, err)
	req.Header.Set(middleware.APIKeyHeader, created["key"].(string))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeJSON(t, w)
	assert.Equal(t, true, resp["valid"])
	assert.Equal(t, user.ID, resp["sub"])

	// Missing token parameter is a client error
	req, err = http.NewRequest(http.MethodGet, "/sso/verify", nil)
	require.NoError(t, err)
	req.Header.Set(middleware.APIKeyHeader, created["key"].(string))
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSSOVerifyRejectsMissingScope(t *testing.T) {
	env := newHandlerEnv(t)
	_, pair := env.registerAndLogin(t, "scopeless@example.com")

	created := env.createKeyOverHTTP(t, pair.AccessToken, []string{"read"})
	w := env.ssoVerify(t, created["key"].(string), pair.AccessToken)

	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "insufficient_scope", decodeJSON(t, w)["error"])
}

func TestSSOVerifyRejectsUnknownKey(t *testing.T) {
	env := newHandlerEnv(t)
	_, pair := env.registerAndLogin(t, "nokey@example.com")

	w := env.ssoVerify(t, "0000000000000000000000000000000000000000000000000000000000000000", pair.AccessToken)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid_api_key", decodeJSON(t, w)["error"])
}

func TestAPIKeyCreateRejectsUnknownScope(t *testing.T) {
	env := newHandlerEnv(t)
	_, pair := env.registerAndLogin(t, "badscope@example.com")

	w := env.postJSON(t, "/apikeys", map[string]any{
		"name":   "bad key",
		"scopes": []string{"universe:admin"},
	}, pair.AccessToken)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "unknown_scope", decodeJSON(t, w)["error"])
}

func TestAPIKeyUsageTrailOverHTTP(t *testing.T) {
	env := newHandlerEnv(t)
	_, pair := env.registerAndLogin(t, "trail@example.com")

	created := env.createKeyOverHTTP(t, pair.AccessToken, []string{"sso:verify"})
	plaintext := created["key"].(string)
	keyID := created["id"].(string)

	for i := 0; i < 3; i++ {
		w := env.ssoVerify(t, plaintext, pair.AccessToken)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := env.get(t, "/apikeys/"+keyID+"/usage", pair.AccessToken)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeJSON(t, w)
	assert.EqualValues(t, 3, resp["total"])

	usage := resp["usage"].([]any)
	require.NotEmpty(t, usage)
	entry := usage[0].(map[string]any)
	assert.Equal(t, "/sso/verify", entry["endpoint"])
	assert.EqualValues(t, http.StatusOK, entry["status"])
}

func TestAPIKeyUsageDeniedForOtherUsers(t *testing.T) {
	env := newHandlerEnv(t)
	_, owner := env.registerAndLogin(t, "owner@example.com")
	_, intruder := env.registerAndLogin(t, "intruder@example.com")

	created := env.createKeyOverHTTP(t, owner.AccessToken, []string{"read"})
	keyID := created["id"].(string)

	w := env.get(t, "/apikeys/"+keyID+"/usage", intruder.AccessToken)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
