package store

import (
	"errors"
	"time"

	"github.com/elixpo/elixpoaccounts/internal/models"

	"gorm.io/gorm"
)

// API key operations

func (s *Store) CreateAPIKey(key *models.APIKey) error {
	return s.db.Create(key).Error
}

func (s *Store) GetAPIKeyByHash(hash string) (*models.APIKey, error) {
	var key models.APIKey
	if err := s.db.Where("key_hash = ?", hash).First(&key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &key, nil
}

func (s *Store) GetAPIKeyByID(id string) (*models.APIKey, error) {
	var key models.APIKey
	if err := s.db.Where("id = ?", id).First(&key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &key, nil
}

func (s *Store) GetAPIKeysByUserID(userID string) ([]models.APIKey, error) {
	var keys []models.APIKey
	if err := s.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&keys).Error; err != nil {
		return nil, err
	}
	return keys, nil
}

// RevokeAPIKey marks a key revoked. Idempotent.
func (s *Store) RevokeAPIKey(id string) error {
	now := time.Now()
	return s.db.Model(&models.APIKey{}).
		Where("id = ? AND revoked = ?", id, false).
		Updates(map[string]any{"revoked": true, "revoked_at": &now}).Error
}

func (s *Store) TouchAPIKey(id string, at time.Time) error {
	return s.db.Model(&models.APIKey{}).
		Where("id = ?", id).
		Update("last_used_at", &at).Error
}

// Usage log operations

func (s *Store) CreateUsageLog(entry *models.UsageLog) error {
	return s.db.Create(entry).Error
}

func (s *Store) GetUsageLogsByKeyID(keyID string, params PaginationParams) ([]models.UsageLog, *PaginationResult, error) {
	var logs []models.UsageLog
	var total int64

	query := s.db.Model(&models.UsageLog{}).Where("api_key_id = ?", keyID)
	if err := query.Count(&total).Error; err != nil {
		return nil, nil, err
	}

	offset := (params.Page - 1) * params.PageSize
	if err := query.Order("created_at DESC").Offset(offset).Limit(params.PageSize).Find(&logs).Error; err != nil {
		return nil, nil, err
	}

	pagination := CalculatePagination(total, params.Page, params.PageSize)
	return logs, &pagination, nil
}
