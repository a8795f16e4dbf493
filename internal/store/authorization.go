package store

import (
	"errors"
	"time"

	"github.com/elixpo/elixpoaccounts/internal/models"

	"gorm.io/gorm"
)

// Authorization request operations

func (s *Store) CreateAuthorizationRequest(req *models.AuthorizationRequest) error {
	return s.db.Create(req).Error
}

func (s *Store) GetAuthorizationRequestByState(state string) (*models.AuthorizationRequest, error) {
	var req models.AuthorizationRequest
	if err := s.db.Where("state = ?", state).First(&req).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &req, nil
}

func (s *Store) UpdateAuthorizationRequest(req *models.AuthorizationRequest) error {
	return s.db.Save(req).Error
}

// ConsumeAuthorizationRequest deletes the request bound to state. The delete
// doubles as the single-use guard: a second consume of the same state hits
// zero rows and returns ErrAuthRequestConsumed.
func (s *Store) ConsumeAuthorizationRequest(state string) (*models.AuthorizationRequest, error) {
	req, err := s.GetAuthorizationRequestByState(state)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, ErrAuthRequestConsumed
		}
		return nil, err
	}

	result := s.db.Where("state = ?", state).Delete(&models.AuthorizationRequest{})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrAuthRequestConsumed
	}
	return req, nil
}

func (s *Store) DeleteExpiredAuthorizationRequests(before time.Time) (int64, error) {
	result := s.db.Where("expires_at < ?", before).Delete(&models.AuthorizationRequest{})
	return result.RowsAffected, result.Error
}

// Authorization code operations

func (s *Store) CreateAuthorizationCode(code *models.AuthorizationCode) error {
	return s.db.Create(code).Error
}

func (s *Store) GetAuthorizationCodeByHash(hash string) (*models.AuthorizationCode, error) {
	var code models.AuthorizationCode
	if err := s.db.Where("code_hash = ?", hash).First(&code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &code, nil
}

// MarkAuthorizationCodeUsed flips used_at exactly once. The WHERE clause
// carries the race guard: two concurrent exchanges of the same code can both
// read it as unused, but only one UPDATE matches.
func (s *Store) MarkAuthorizationCodeUsed(hash string) error {
	now := time.Now()
	result := s.db.Model(&models.AuthorizationCode{}).
		Where("code_hash = ? AND used_at IS NULL", hash).
		Update("used_at", &now)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAuthCodeAlreadyUsed
	}
	return nil
}

func (s *Store) DeleteExpiredAuthorizationCodes(before time.Time) (int64, error) {
	result := s.db.Where("expires_at < ?", before).Delete(&models.AuthorizationCode{})
	return result.RowsAffected, result.Error
}
