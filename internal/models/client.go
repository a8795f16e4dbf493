package models

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Client types per RFC 6749 §2.1.
const (
	ClientTypeConfidential = "confidential"
	ClientTypePublic       = "public"
)

// OAuthClient is a registered third-party application. The client secret is
// bcrypt hashed; the plaintext is shown exactly once at registration.
type OAuthClient struct {
	ClientID     string `gorm:"primaryKey"`
	ClientSecret string `gorm:"not null"` // bcrypt hash; empty for public clients
	ClientName   string `gorm:"not null"`
	Description  string `gorm:"type:text"`
	ClientType   string `gorm:"not null;default:'confidential'"`

	Scopes       string `gorm:"not null"`  // space-separated allowed scopes
	RedirectURIs string `gorm:"type:text"` // comma-separated exact-match whitelist

	IsActive  bool   `gorm:"not null;default:true"`
	CreatedBy string // user ID of the registering admin

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (OAuthClient) TableName() string {
	return "oauth_clients"
}

// ValidateSecret compares a presented plaintext secret against the stored hash.
func (c *OAuthClient) ValidateSecret(plain string) bool {
	if c.ClientSecret == "" || plain == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(c.ClientSecret), []byte(plain)) == nil
}

// RedirectURIList splits the stored whitelist.
func (c *OAuthClient) RedirectURIList() []string {
	if c.RedirectURIs == "" {
		return nil
	}
	parts := strings.Split(c.RedirectURIs, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// AllowsRedirectURI reports whether uri exactly matches a registered URI.
func (c *OAuthClient) AllowsRedirectURI(uri string) bool {
	if uri == "" {
		return false
	}
	for _, registered := range c.RedirectURIList() {
		if registered == uri {
			return true
		}
	}
	return false
}
