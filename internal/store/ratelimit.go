package store

import (
	"errors"
	"time"

	"github.com/elixpo/elixpoaccounts/internal/models"

	"gorm.io/gorm"
)

// Rate limit entry operations. The limiter service owns the window
// arithmetic; the store only reads and mutates rows.

func (s *Store) GetRateLimitEntry(subject, endpoint string) (*models.RateLimitEntry, error) {
	var entry models.RateLimitEntry
	if err := s.db.Where("subject = ? AND endpoint = ?", subject, endpoint).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &entry, nil
}

func (s *Store) CreateRateLimitEntry(entry *models.RateLimitEntry) error {
	return s.db.Create(entry).Error
}

// IncrementRateLimitAttempts bumps the counter in SQL so concurrent requests
// don't lose increments to read-modify-write races.
func (s *Store) IncrementRateLimitAttempts(subject, endpoint string) error {
	return s.db.Model(&models.RateLimitEntry{}).
		Where("subject = ? AND endpoint = ?", subject, endpoint).
		Update("attempt_count", gorm.Expr("attempt_count + ?", 1)).Error
}

// ResetRateLimitWindow starts a fresh window with the first attempt counted.
func (s *Store) ResetRateLimitWindow(subject, endpoint string, resetAt time.Time) error {
	return s.db.Model(&models.RateLimitEntry{}).
		Where("subject = ? AND endpoint = ?", subject, endpoint).
		Updates(map[string]any{
			"attempt_count":   1,
			"window_reset_at": resetAt,
			"blocked":         false,
			"blocked_until":   nil,
		}).Error
}

func (s *Store) SetRateLimitBlocked(subject, endpoint string, until time.Time) error {
	return s.db.Model(&models.RateLimitEntry{}).
		Where("subject = ? AND endpoint = ?", subject, endpoint).
		Updates(map[string]any{"blocked": true, "blocked_until": &until}).Error
}

func (s *Store) DeleteRateLimitEntry(subject, endpoint string) error {
	return s.db.Where("subject = ? AND endpoint = ?", subject, endpoint).Delete(&models.RateLimitEntry{}).Error
}

// DeleteStaleRateLimitEntries clears rows whose window and block have both
// lapsed. Run from the periodic cleanup job.
func (s *Store) DeleteStaleRateLimitEntries(before time.Time) (int64, error) {
	result := s.db.Where("window_reset_at < ? AND (blocked_until IS NULL OR blocked_until < ?)", before, before).
		Delete(&models.RateLimitEntry{})
	return result.RowsAffected, result.Error
}
