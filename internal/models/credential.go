package models

import "time"

// RefreshCredential is the persisted record of an issued refresh token.
// Only the SHA-256 hash of the token is stored; the raw JWT never touches
// the database. Rotation revokes the old record after persisting the new one.
type RefreshCredential struct {
	ID        string `gorm:"primaryKey"`
	TokenHash string `gorm:"uniqueIndex;not null"`

	UserID   string `gorm:"not null;index"`
	ClientID string `gorm:"index"` // empty for first-party logins
	Provider string // issuing provider tag ("local", "google", "github")

	ExpiresAt time.Time
	Revoked   bool `gorm:"not null;default:false;index"`
	RevokedAt *time.Time

	CreatedAt time.Time
}

func (c *RefreshCredential) IsExpired() bool {
	return time.Now().After(c.ExpiresAt)
}

// IsUsable reports whether the credential can still back a refresh grant.
func (c *RefreshCredential) IsUsable() bool {
	return !c.Revoked && !c.IsExpired()
}

func (RefreshCredential) TableName() string {
	return "refresh_credentials"
}
