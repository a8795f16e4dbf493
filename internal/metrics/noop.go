package metrics

import "time"

// NoopMetrics is a no-operation Recorder. All methods do nothing, providing
// zero overhead when metrics are disabled.
type NoopMetrics struct{}

var _ Recorder = (*NoopMetrics)(nil)

func NewNoopMetrics() Recorder {
	return &NoopMetrics{}
}

func (n *NoopMetrics) RecordLogin(provider string, success bool)     {}
func (n *NoopMetrics) RecordRegistration(success bool)               {}
func (n *NoopMetrics) RecordLogout()                                 {}
func (n *NoopMetrics) RecordOAuthCallback(provider string, success bool) {}

func (n *NoopMetrics) RecordTokenIssued(tokenType, grantType string, generationTime time.Duration) {}
func (n *NoopMetrics) RecordTokenRefresh(success bool)                                            {}
func (n *NoopMetrics) RecordTokenRevoked(reason string)                                           {}
func (n *NoopMetrics) RecordTokenValidation(result string, duration time.Duration)                {}

func (n *NoopMetrics) RecordAuthorizationStarted(provider string) {}
func (n *NoopMetrics) RecordCodeExchange(result string)           {}

func (n *NoopMetrics) RecordRateLimitDecision(endpoint, outcome string) {}

func (n *NoopMetrics) RecordPermissionCheck(result string)   {}
func (n *NoopMetrics) RecordAPIKeyValidation(result string)  {}

func (n *NoopMetrics) RecordWebhookDelivery(success bool, duration time.Duration) {}
func (n *NoopMetrics) RecordDatabaseQueryError(operation string)                  {}
