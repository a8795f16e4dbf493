package store

import (
	"errors"
	"time"

	"github.com/elixpo/elixpoaccounts/internal/models"

	"gorm.io/gorm"
)

// Refresh credential operations

func (s *Store) CreateRefreshCredential(cred *models.RefreshCredential) error {
	return s.db.Create(cred).Error
}

func (s *Store) GetRefreshCredentialByHash(hash string) (*models.RefreshCredential, error) {
	var cred models.RefreshCredential
	if err := s.db.Where("token_hash = ?", hash).First(&cred).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &cred, nil
}

// RevokeRefreshCredential marks a credential revoked. Idempotent: revoking an
// already-revoked or absent credential is not an error.
func (s *Store) RevokeRefreshCredential(hash string) error {
	now := time.Now()
	return s.db.Model(&models.RefreshCredential{}).
		Where("token_hash = ? AND revoked = ?", hash, false).
		Updates(map[string]any{"revoked": true, "revoked_at": &now}).Error
}

// RevokeRefreshCredentialsByUserID revokes every live credential for a user.
func (s *Store) RevokeRefreshCredentialsByUserID(userID string) (int64, error) {
	now := time.Now()
	result := s.db.Model(&models.RefreshCredential{}).
		Where("user_id = ? AND revoked = ?", userID, false).
		Updates(map[string]any{"revoked": true, "revoked_at": &now})
	return result.RowsAffected, result.Error
}

// DeleteExpiredRefreshCredentials removes credentials past their expiry.
func (s *Store) DeleteExpiredRefreshCredentials(before time.Time) (int64, error) {
	result := s.db.Where("expires_at < ?", before).Delete(&models.RefreshCredential{})
	return result.RowsAffected, result.Error
}
