package models

import (
	"strings"
	"time"
)

// Scope is a closed capability identifier for API keys and OAuth clients.
// API keys carry their own scope set; they never inherit RBAC roles.
type Scope string

const (
	ScopeOpenID        Scope = "openid"
	ScopeProfile       Scope = "profile"
	ScopeEmail         Scope = "email"
	ScopeOfflineAccess Scope = "offline_access"
	ScopeRead          Scope = "read"
	ScopeWrite         Scope = "write"
	ScopeSSOVerify     Scope = "sso:verify"
	ScopeUsersRead     Scope = "users:read"
	ScopeUsersWrite    Scope = "users:write"
)

var knownScopes = map[Scope]bool{
	ScopeOpenID:        true,
	ScopeProfile:       true,
	ScopeEmail:         true,
	ScopeOfflineAccess: true,
	ScopeRead:          true,
	ScopeWrite:         true,
	ScopeSSOVerify:     true,
	ScopeUsersRead:     true,
	ScopeUsersWrite:    true,
}

// KnownScope reports whether s is part of the closed scope vocabulary.
func KnownScope(s string) bool {
	return knownScopes[Scope(s)]
}

// SplitScopes splits a space-separated scope string.
func SplitScopes(scopes string) []string {
	if scopes == "" {
		return []string{}
	}
	return strings.Fields(scopes)
}

// APIKey is an opaque machine credential. Only the SHA-256 hash of the secret
// is stored; the display prefix is the first 8 characters of the plaintext.
type APIKey struct {
	ID     string `gorm:"primaryKey"`
	UserID string `gorm:"not null;index"`
	Name   string `gorm:"not null"`

	KeyHash   string `gorm:"uniqueIndex;not null"`
	KeyPrefix string `gorm:"index;not null;size:8"`

	Scopes string `gorm:"not null"` // space-separated

	// Per-key rate budget, enforced by the sliding-window limiter keyed by key ID.
	RateLimitMax    int `gorm:"not null;default:60"`
	RateLimitWindow int `gorm:"not null;default:60"` // seconds

	ExpiresAt  *time.Time
	Revoked    bool `gorm:"not null;default:false;index"`
	RevokedAt  *time.Time
	LastUsedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (k *APIKey) IsExpired() bool {
	return k.ExpiresAt != nil && time.Now().After(*k.ExpiresAt)
}

// IsUsable reports whether the key may authenticate requests.
func (k *APIKey) IsUsable() bool {
	return !k.Revoked && !k.IsExpired()
}

// HasScope reports whether the key's own scope set contains s.
func (k *APIKey) HasScope(s Scope) bool {
	for _, scope := range SplitScopes(k.Scopes) {
		if scope == string(s) {
			return true
		}
	}
	return false
}

// HasAllScopes is vacuously true for an empty requirement list.
func (k *APIKey) HasAllScopes(scopes ...Scope) bool {
	for _, s := range scopes {
		if !k.HasScope(s) {
			return false
		}
	}
	return true
}

// HasAnyScope is false for an empty requirement list.
func (k *APIKey) HasAnyScope(scopes ...Scope) bool {
	for _, s := range scopes {
		if k.HasScope(s) {
			return true
		}
	}
	return false
}

func (APIKey) TableName() string {
	return "api_keys"
}

// UsageLog records one authenticated API-key request, for the usage trail.
type UsageLog struct {
	ID       uint   `gorm:"primaryKey;autoIncrement"`
	APIKeyID string `gorm:"not null;index"`
	Endpoint string `gorm:"not null"`
	Method   string
	Status   int
	ActorIP  string

	CreatedAt time.Time `gorm:"index"`
}

func (UsageLog) TableName() string {
	return "usage_logs"
}
