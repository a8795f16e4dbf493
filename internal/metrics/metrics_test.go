package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInit_Disabled(t *testing.T) {
	r := Init(false)
	_, ok := r.(*NoopMetrics)
	assert.True(t, ok, "disabled metrics should return NoopMetrics")
}

func TestInit_Enabled(t *testing.T) {
	r := Init(true)
	m, ok := r.(*Metrics)
	assert.True(t, ok, "enabled metrics should return Metrics")
	assert.NotNil(t, m.LoginTotal)
	assert.NotNil(t, m.HTTPRequestsTotal)

	// Second call returns the same instance (prometheus registration is global)
	r2 := Init(true)
	assert.Same(t, r, r2)
}

func TestNoopMetrics_AllMethods(t *testing.T) {
	// Every method must be callable without side effects
	n := NewNoopMetrics()

	n.RecordLogin("local", true)
	n.RecordRegistration(false)
	n.RecordLogout()
	n.RecordOAuthCallback("google", true)
	n.RecordTokenIssued("access", "password", time.Millisecond)
	n.RecordTokenRefresh(true)
	n.RecordTokenRevoked("logout")
	n.RecordTokenValidation("valid", time.Millisecond)
	n.RecordAuthorizationStarted("github")
	n.RecordCodeExchange("success")
	n.RecordRateLimitDecision("login", "allowed")
	n.RecordPermissionCheck("granted")
	n.RecordAPIKeyValidation("valid")
	n.RecordWebhookDelivery(true, time.Millisecond)
	n.RecordDatabaseQueryError("get_user")
}

func TestRecorderMethods_Prometheus(t *testing.T) {
	// Exercise the Prometheus-backed recorder; panics on label mismatch
	// would fail the test.
	m := Init(true)

	m.RecordLogin("local", true)
	m.RecordLogin("google", false)
	m.RecordRegistration(true)
	m.RecordLogout()
	m.RecordOAuthCallback("github", false)
	m.RecordTokenIssued("access", "authorization_code", 2*time.Millisecond)
	m.RecordTokenRefresh(false)
	m.RecordTokenRevoked("rotation")
	m.RecordTokenValidation("expired", time.Millisecond)
	m.RecordAuthorizationStarted("google")
	m.RecordCodeExchange("replayed")
	m.RecordRateLimitDecision("register", "blocked")
	m.RecordPermissionCheck("bypass")
	m.RecordAPIKeyValidation("revoked")
	m.RecordWebhookDelivery(false, 10*time.Millisecond)
	m.RecordDatabaseQueryError("rate_limit_lookup")
}
