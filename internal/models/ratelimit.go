package models

import "time"

// RateLimitEntry is one sliding-window counter, keyed by (subject, endpoint).
// Upsert semantics: at most one row per key.
type RateLimitEntry struct {
	ID uint `gorm:"primaryKey;autoIncrement"`

	Subject  string `gorm:"not null;uniqueIndex:idx_ratelimit_subject_endpoint,priority:1"` // IP, user ID, or API key ID
	Endpoint string `gorm:"not null;uniqueIndex:idx_ratelimit_subject_endpoint,priority:2"`

	AttemptCount  int `gorm:"not null;default:0"`
	WindowResetAt time.Time

	Blocked      bool `gorm:"not null;default:false"`
	BlockedUntil *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsBlocked reports whether the entry carries an active block.
func (e *RateLimitEntry) IsBlocked(now time.Time) bool {
	return e.Blocked && e.BlockedUntil != nil && now.Before(*e.BlockedUntil)
}

// WindowExpired reports whether the counting window has rolled over.
func (e *RateLimitEntry) WindowExpired(now time.Time) bool {
	return now.After(e.WindowResetAt)
}

func (RateLimitEntry) TableName() string {
	return "rate_limit_entries"
}
