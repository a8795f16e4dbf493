package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// EventType identifies a security-relevant audit event.
type EventType string

const (
	// Authentication events
	EventLoginSuccess EventType = "LOGIN_SUCCESS"
	EventLoginFailure EventType = "LOGIN_FAILURE"
	EventRegistration EventType = "REGISTRATION"
	EventLogout       EventType = "LOGOUT"
	EventOAuthLogin   EventType = "OAUTH_LOGIN"

	// Token events
	EventAccessTokenIssued  EventType = "ACCESS_TOKEN_ISSUED"
	EventRefreshTokenIssued EventType = "REFRESH_TOKEN_ISSUED"
	EventTokenRefreshed     EventType = "TOKEN_REFRESHED"
	EventTokenRevoked       EventType = "TOKEN_REVOKED"

	// Authorization flow events
	EventAuthorizationStarted       EventType = "AUTHORIZATION_STARTED"
	EventAuthorizationCodeGenerated EventType = "AUTHORIZATION_CODE_GENERATED"
	EventAuthorizationCodeExchanged EventType = "AUTHORIZATION_CODE_EXCHANGED"
	EventAuthorizationDenied        EventType = "AUTHORIZATION_DENIED"
	EventProviderLockIn             EventType = "PROVIDER_LOCK_IN_REJECTED"

	// Access control events
	EventPermissionDenied EventType = "PERMISSION_DENIED"
	EventRoleCreated      EventType = "ROLE_CREATED"
	EventRoleUpdated      EventType = "ROLE_UPDATED"
	EventRoleDeleted      EventType = "ROLE_DELETED"
	EventRoleAssigned     EventType = "ROLE_ASSIGNED"

	// API key events
	EventAPIKeyCreated EventType = "API_KEY_CREATED"
	EventAPIKeyRevoked EventType = "API_KEY_REVOKED"

	// Client admin events
	EventClientCreated EventType = "CLIENT_CREATED"
	EventClientUpdated EventType = "CLIENT_UPDATED"

	// Security events
	EventRateLimitExceeded EventType = "RATE_LIMIT_EXCEEDED"
	EventRateLimitDegraded EventType = "RATE_LIMIT_DEGRADED"
)

// EventSeverity is the severity level of an audit event.
type EventSeverity string

const (
	SeverityInfo     EventSeverity = "INFO"
	SeverityWarning  EventSeverity = "WARNING"
	SeverityError    EventSeverity = "ERROR"
	SeverityCritical EventSeverity = "CRITICAL"
)

// ResourceType is the kind of resource an event operated on.
type ResourceType string

const (
	ResourceUser          ResourceType = "USER"
	ResourceClient        ResourceType = "CLIENT"
	ResourceToken         ResourceType = "TOKEN"
	ResourceRole          ResourceType = "ROLE"
	ResourceAPIKey        ResourceType = "API_KEY"
	ResourceAuthorization ResourceType = "AUTHORIZATION"
	ResourceRateLimit     ResourceType = "RATE_LIMIT"
)

// AuditDetails stores event-specific fields as JSON.
type AuditDetails map[string]any

// Value implements driver.Valuer for database storage.
func (a AuditDetails) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil //nolint:nilnil // nil driver.Value is SQL NULL
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner for database retrieval.
func (a *AuditDetails) Scan(value any) error {
	if value == nil {
		*a = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to unmarshal AuditDetails value: %v", value)
	}

	result := make(AuditDetails)
	if err := json.Unmarshal(bytes, &result); err != nil {
		return err
	}

	*a = result
	return nil
}

// AuditLog is one append-only audit trail entry.
type AuditLog struct {
	ID string `gorm:"primaryKey;type:varchar(36)" json:"id"`

	EventType EventType     `gorm:"type:varchar(50);index;not null" json:"event_type"`
	EventTime time.Time     `gorm:"index;not null"                  json:"event_time"`
	Severity  EventSeverity `gorm:"type:varchar(20);not null"       json:"severity"`

	ActorUserID string `gorm:"type:varchar(36);index" json:"actor_user_id"`
	ActorEmail  string `gorm:"type:varchar(255)"      json:"actor_email"`
	ActorIP     string `gorm:"type:varchar(45)"       json:"actor_ip"`

	ResourceType ResourceType `gorm:"type:varchar(30);index" json:"resource_type"`
	ResourceID   string       `gorm:"type:varchar(64);index" json:"resource_id"`

	Action       string       `gorm:"type:varchar(255);not null" json:"action"`
	Details      AuditDetails `gorm:"type:text"                  json:"details"`
	Success      bool         `gorm:"index"                      json:"success"`
	ErrorMessage string       `gorm:"type:text"                  json:"error_message"`

	UserAgent     string `gorm:"type:text"         json:"user_agent"`
	RequestPath   string `gorm:"type:varchar(255)" json:"request_path"`
	RequestMethod string `gorm:"type:varchar(10)"  json:"request_method"`

	CreatedAt time.Time `json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}
