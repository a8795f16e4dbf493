package store

import (
	"errors"

	"github.com/elixpo/elixpoaccounts/internal/models"

	"gorm.io/gorm"
)

// OAuth client operations

func (s *Store) CreateClient(client *models.OAuthClient) error {
	return s.db.Create(client).Error
}

func (s *Store) GetClientByID(clientID string) (*models.OAuthClient, error) {
	var client models.OAuthClient
	if err := s.db.Where("client_id = ?", clientID).First(&client).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &client, nil
}

func (s *Store) UpdateClient(client *models.OAuthClient) error {
	return s.db.Save(client).Error
}

func (s *Store) DeleteClient(clientID string) error {
	return s.db.Where("client_id = ?", clientID).Delete(&models.OAuthClient{}).Error
}

func (s *Store) GetClientsPaginated(params PaginationParams) ([]models.OAuthClient, *PaginationResult, error) {
	var clients []models.OAuthClient
	var total int64

	if err := s.db.Model(&models.OAuthClient{}).Count(&total).Error; err != nil {
		return nil, nil, err
	}

	offset := (params.Page - 1) * params.PageSize
	if err := s.db.Order("created_at DESC").Offset(offset).Limit(params.PageSize).Find(&clients).Error; err != nil {
		return nil, nil, err
	}

	pagination := CalculatePagination(total, params.Page, params.PageSize)
	return clients, &pagination, nil
}

// GetClientsByIDs returns the clients for the given IDs keyed by client_id.
func (s *Store) GetClientsByIDs(clientIDs []string) (map[string]*models.OAuthClient, error) {
	result := make(map[string]*models.OAuthClient, len(clientIDs))
	if len(clientIDs) == 0 {
		return result, nil
	}

	var clients []models.OAuthClient
	if err := s.db.Where("client_id IN ?", clientIDs).Find(&clients).Error; err != nil {
		return nil, err
	}
	for i := range clients {
		result[clients[i].ClientID] = &clients[i]
	}
	return result, nil
}
