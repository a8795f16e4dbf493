package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder is the metrics surface the services record against. Production
// wiring uses the Prometheus-backed Metrics; tests and metrics-disabled
// deployments use NoopMetrics.
type Recorder interface {
	// Authentication
	RecordLogin(provider string, success bool)
	RecordRegistration(success bool)
	RecordLogout()
	RecordOAuthCallback(provider string, success bool)

	// Token lifecycle
	RecordTokenIssued(tokenType, grantType string, generationTime time.Duration)
	RecordTokenRefresh(success bool)
	RecordTokenRevoked(reason string)
	RecordTokenValidation(result string, duration time.Duration)

	// Authorization handshake
	RecordAuthorizationStarted(provider string)
	RecordCodeExchange(result string)

	// Rate limiting
	RecordRateLimitDecision(endpoint, outcome string)

	// Access control
	RecordPermissionCheck(result string)
	RecordAPIKeyValidation(result string)

	// Infrastructure
	RecordWebhookDelivery(success bool, duration time.Duration)
	RecordDatabaseQueryError(operation string)
}

// Ensure Metrics implements Recorder interface at compile time
var _ Recorder = (*Metrics)(nil)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// Authentication
	LoginTotal        *prometheus.CounterVec
	RegistrationTotal *prometheus.CounterVec
	LogoutTotal       prometheus.Counter
	OAuthCallbackTotal *prometheus.CounterVec

	// Tokens
	TokensIssuedTotal       *prometheus.CounterVec
	TokensRefreshedTotal    *prometheus.CounterVec
	TokensRevokedTotal      *prometheus.CounterVec
	TokenValidationTotal    *prometheus.CounterVec
	TokenGenerationDuration prometheus.Histogram
	TokenValidationDuration prometheus.Histogram

	// Authorization handshake
	AuthorizationStartedTotal *prometheus.CounterVec
	CodeExchangeTotal         *prometheus.CounterVec

	// Rate limiting
	RateLimitDecisionsTotal *prometheus.CounterVec

	// Access control
	PermissionChecksTotal   *prometheus.CounterVec
	APIKeyValidationsTotal  *prometheus.CounterVec

	// Infrastructure
	WebhookDeliveriesTotal  *prometheus.CounterVec
	WebhookDeliveryDuration prometheus.Histogram
	DatabaseQueryErrorsTotal *prometheus.CounterVec

	// HTTP
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Init initializes metrics based on the enabled flag.
// Uses sync.Once so Prometheus metrics are only registered once.
func Init(enabled bool) Recorder {
	if !enabled {
		return NewNoopMetrics()
	}

	once.Do(func() {
		defaultMetrics = initMetrics()
	})
	return defaultMetrics
}

func initMetrics() *Metrics {
	return &Metrics{
		LoginTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idp_login_total",
				Help: "Total number of login attempts",
			},
			[]string{"provider", "result"}, // provider: local, google, github; result: success, failure
		),
		RegistrationTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idp_registration_total",
				Help: "Total number of registration attempts",
			},
			[]string{"result"},
		),
		LogoutTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "idp_logout_total",
				Help: "Total number of logouts",
			},
		),
		OAuthCallbackTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idp_oauth_callback_total",
				Help: "Total number of upstream OAuth callback completions",
			},
			[]string{"provider", "result"},
		),

		TokensIssuedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idp_tokens_issued_total",
				Help: "Total number of tokens issued",
			},
			[]string{"token_type", "grant_type"},
		),
		TokensRefreshedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idp_tokens_refreshed_total",
				Help: "Total number of token refresh attempts",
			},
			[]string{"result"},
		),
		TokensRevokedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idp_tokens_revoked_total",
				Help: "Total number of tokens revoked",
			},
			[]string{"reason"}, // logout, rotation, reuse, admin
		),
		TokenValidationTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idp_token_validation_total",
				Help: "Total number of token validations",
			},
			[]string{"result"}, // valid, invalid, expired
		),
		TokenGenerationDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "idp_token_generation_duration_seconds",
				Help:    "Time taken to generate tokens",
				Buckets: prometheus.DefBuckets,
			},
		),
		TokenValidationDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "idp_token_validation_duration_seconds",
				Help:    "Time taken to validate tokens",
				Buckets: prometheus.DefBuckets,
			},
		),

		AuthorizationStartedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idp_authorization_started_total",
				Help: "Total number of authorization handshakes started",
			},
			[]string{"provider"},
		),
		CodeExchangeTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idp_code_exchange_total",
				Help: "Total number of authorization code exchanges",
			},
			[]string{"result"}, // success, invalid, expired, replayed
		),

		RateLimitDecisionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idp_rate_limit_decisions_total",
				Help: "Total number of rate limit decisions",
			},
			[]string{"endpoint", "outcome"}, // outcome: allowed, limited, blocked, degraded
		),

		PermissionChecksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idp_permission_checks_total",
				Help: "Total number of permission checks",
			},
			[]string{"result"}, // granted, denied, bypass
		),
		APIKeyValidationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idp_api_key_validations_total",
				Help: "Total number of API key validations",
			},
			[]string{"result"}, // valid, invalid, revoked, expired
		),

		WebhookDeliveriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idp_webhook_deliveries_total",
				Help: "Total number of webhook delivery attempts",
			},
			[]string{"result"},
		),
		WebhookDeliveryDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "idp_webhook_delivery_duration_seconds",
				Help:    "Time taken to deliver webhooks",
				Buckets: prometheus.DefBuckets,
			},
		),
		DatabaseQueryErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idp_database_query_errors_total",
				Help: "Total number of database query errors",
			},
			[]string{"operation"},
		),

		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "http_request_duration_seconds",
				Help: "HTTP request latency in seconds",
				Buckets: []float64{
					0.001, 0.005, 0.010, 0.025, 0.050,
					0.100, 0.250, 0.500, 1.0, 2.5, 5.0, 10.0,
				},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Current number of HTTP requests being served",
			},
		),
	}
}

const (
	resultSuccess = "success"
	resultError   = "error"
	resultFailure = "failure"
)

func (m *Metrics) RecordLogin(provider string, success bool) {
	result := resultSuccess
	if !success {
		result = resultFailure
	}
	m.LoginTotal.WithLabelValues(provider, result).Inc()
}

func (m *Metrics) RecordRegistration(success bool) {
	result := resultSuccess
	if !success {
		result = resultFailure
	}
	m.RegistrationTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordLogout() {
	m.LogoutTotal.Inc()
}

func (m *Metrics) RecordOAuthCallback(provider string, success bool) {
	result := resultSuccess
	if !success {
		result = resultError
	}
	m.OAuthCallbackTotal.WithLabelValues(provider, result).Inc()
}

func (m *Metrics) RecordTokenIssued(tokenType, grantType string, generationTime time.Duration) {
	m.TokensIssuedTotal.WithLabelValues(tokenType, grantType).Inc()
	m.TokenGenerationDuration.Observe(generationTime.Seconds())
}

func (m *Metrics) RecordTokenRefresh(success bool) {
	result := resultSuccess
	if !success {
		result = resultError
	}
	m.TokensRefreshedTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordTokenRevoked(reason string) {
	m.TokensRevokedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordTokenValidation(result string, duration time.Duration) {
	m.TokenValidationTotal.WithLabelValues(result).Inc()
	m.TokenValidationDuration.Observe(duration.Seconds())
}

func (m *Metrics) RecordAuthorizationStarted(provider string) {
	m.AuthorizationStartedTotal.WithLabelValues(provider).Inc()
}

func (m *Metrics) RecordCodeExchange(result string) {
	m.CodeExchangeTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordRateLimitDecision(endpoint, outcome string) {
	m.RateLimitDecisionsTotal.WithLabelValues(endpoint, outcome).Inc()
}

func (m *Metrics) RecordPermissionCheck(result string) {
	m.PermissionChecksTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordAPIKeyValidation(result string) {
	m.APIKeyValidationsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordWebhookDelivery(success bool, duration time.Duration) {
	result := resultSuccess
	if !success {
		result = resultError
	}
	m.WebhookDeliveriesTotal.WithLabelValues(result).Inc()
	m.WebhookDeliveryDuration.Observe(duration.Seconds())
}

func (m *Metrics) RecordDatabaseQueryError(operation string) {
	m.DatabaseQueryErrorsTotal.WithLabelValues(operation).Inc()
}
