package models

import "time"

// AuthorizationRequest is one in-flight OAuth handshake against an upstream
// provider. Created on /authorize, consumed exactly once by the matching
// callback, expired after a short TTL otherwise.
type AuthorizationRequest struct {
	ID    string `gorm:"primaryKey"`
	State string `gorm:"uniqueIndex;not null"` // 32 random bytes, URL-safe base64
	Nonce string `gorm:"not null"`

	// PKCE verifier generated at /authorize; the S256 challenge derived from
	// it is embedded in the provider URL and never stored.
	CodeVerifier string `gorm:"not null"`

	Provider    string `gorm:"not null"`
	ClientID    string // registered third-party client, empty for built-in flows
	RedirectURI string
	Scopes      string // space-separated

	// Set at consent time so the code exchange issues tokens for the user who
	// actually authenticated, never a placeholder subject.
	UserID string `gorm:"index"`

	ExpiresAt time.Time
	CreatedAt time.Time
}

func (r *AuthorizationRequest) IsExpired() bool {
	return time.Now().After(r.ExpiresAt)
}

func (AuthorizationRequest) TableName() string {
	return "authorization_requests"
}

// AuthorizationCode is a single-use code issued by our own /authorize surface
// to registered third-party clients (RFC 6749 §4.1).
type AuthorizationCode struct {
	ID uint `gorm:"primaryKey;autoIncrement"`

	// SHA256(plainCode) for storage, first 8 chars of the plaintext for display.
	CodeHash   string `gorm:"uniqueIndex;not null"`
	CodePrefix string `gorm:"index;not null;size:8"`

	ClientID    string `gorm:"not null;index"`
	UserID      string `gorm:"not null;index"`
	RedirectURI string `gorm:"not null"`
	Scopes      string `gorm:"not null"`
	Nonce       string

	// PKCE (RFC 7636)
	CodeChallenge       string `gorm:"default:''"`
	CodeChallengeMethod string `gorm:"default:'S256'"`

	ExpiresAt time.Time
	UsedAt    *time.Time // set on exchange; prevents replay
	CreatedAt time.Time
}

func (a *AuthorizationCode) IsExpired() bool {
	return time.Now().After(a.ExpiresAt)
}

func (a *AuthorizationCode) IsUsed() bool {
	return a.UsedAt != nil
}

func (AuthorizationCode) TableName() string {
	return "authorization_codes"
}
