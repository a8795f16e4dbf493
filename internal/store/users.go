package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/elixpo/elixpoaccounts/internal/models"

	"gorm.io/gorm"
)

// User operations

func (s *Store) GetUserByID(id string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) GetUserByEmail(email string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("email = ?", strings.ToLower(email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) CreateUser(user *models.User) error {
	user.Email = strings.ToLower(user.Email)

	var existing models.User
	err := s.db.Where("email = ?", user.Email).First(&existing).Error
	if err == nil {
		return ErrEmailConflict
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to check email: %w", err)
	}

	return s.db.Create(user).Error
}

func (s *Store) UpdateUser(user *models.User) error {
	return s.db.Save(user).Error
}

// GetUsersByIDs batch-fetches users, returning a map keyed by ID.
func (s *Store) GetUsersByIDs(ids []string) (map[string]*models.User, error) {
	if len(ids) == 0 {
		return map[string]*models.User{}, nil
	}

	var users []models.User
	if err := s.db.Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}

	result := make(map[string]*models.User, len(users))
	for i := range users {
		result[users[i].ID] = &users[i]
	}
	return result, nil
}

// Identity operations

func (s *Store) GetIdentity(provider, providerSubjectID string) (*models.Identity, error) {
	var identity models.Identity
	err := s.db.Where("provider = ? AND provider_subject_id = ?", provider, providerSubjectID).
		First(&identity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &identity, nil
}

// GetIdentitiesByUserID lists every external identity linked to a user.
func (s *Store) GetIdentitiesByUserID(userID string) ([]models.Identity, error) {
	var identities []models.Identity
	if err := s.db.Where("user_id = ?", userID).Find(&identities).Error; err != nil {
		return nil, err
	}
	return identities, nil
}

func (s *Store) CreateIdentity(identity *models.Identity) error {
	return s.db.Create(identity).Error
}

// TouchIdentity refreshes the profile snapshot and last-used timestamp.
func (s *Store) TouchIdentity(id string, email, displayName, avatarURL string) error {
	return s.db.Model(&models.Identity{}).Where("id = ?", id).Updates(map[string]any{
		"provider_email": email,
		"display_name":   displayName,
		"avatar_url":     avatarURL,
		"last_used_at":   time.Now(),
	}).Error
}
