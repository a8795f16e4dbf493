package models

import (
	"time"
)

// User is a principal: a human account that can hold password credentials
// and any number of linked external identities.
type User struct {
	ID    string `gorm:"primaryKey"`
	Email string `gorm:"uniqueIndex;not null"`

	// Password credentials. Empty for OAuth-only accounts.
	PasswordHash string
	PasswordSalt string

	DisplayName string
	AvatarURL   string

	IsActive bool `gorm:"not null;default:true"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasPassword reports whether the user has local password credentials.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// Identity links a user to one external provider account.
// The (provider, provider_subject_id) pair is globally unique.
type Identity struct {
	ID     string `gorm:"primaryKey"`
	UserID string `gorm:"not null;index;uniqueIndex:idx_identity_user_provider,priority:1"`

	Provider          string `gorm:"not null;uniqueIndex:idx_identity_provider_subject,priority:1;uniqueIndex:idx_identity_user_provider,priority:2"`
	ProviderSubjectID string `gorm:"not null;uniqueIndex:idx_identity_provider_subject,priority:2"`

	// Profile snapshot from the provider, for display only.
	ProviderEmail string
	DisplayName   string
	AvatarURL     string

	LastUsedAt time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (Identity) TableName() string {
	return "identities"
}
