package services

import (
	"context"
	"errors"
	"strings"

	"github.com/elixpo/elixpoaccounts/internal/models"
	"github.com/elixpo/elixpoaccounts/internal/store"
	"github.com/elixpo/elixpoaccounts/internal/util"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrClientNotFound    = errors.New("client not found")
	ErrClientInactive    = errors.New("client is deactivated")
	ErrInvalidClientType = errors.New("client type must be confidential or public")
	ErrNoRedirectURIs    = errors.New("at least one redirect URI is required")
)

const clientSecretBytes = 32

// ClientService manages registered third-party applications.
type ClientService struct {
	store *store.Store
	audit *AuditService
}

func NewClientService(s *store.Store, audit *AuditService) *ClientService {
	return &ClientService{store: s, audit: audit}
}

// RegisteredClient pairs the stored record with the one-time plaintext
// secret. The secret is empty for public clients.
type RegisteredClient struct {
	Client       *models.OAuthClient
	ClientSecret string
}

// Register creates a client. Confidential clients get a generated secret,
// returned once and stored only as a bcrypt hash.
func (s *ClientService) Register(
	ctx context.Context,
	actorID, name, description, clientType string,
	redirectURIs []string,
	scopes []models.Scope,
) (*RegisteredClient, error) {
	if clientType != models.ClientTypeConfidential && clientType != models.ClientTypePublic {
		return nil, ErrInvalidClientType
	}
	if len(redirectURIs) == 0 {
		return nil, ErrNoRedirectURIs
	}

	scopeStr := ""
	for _, sc := range scopes {
		if !models.KnownScope(string(sc)) {
			return nil, ErrUnknownScope
		}
		if scopeStr != "" {
			scopeStr += " "
		}
		scopeStr += string(sc)
	}

	var plainSecret, secretHash string
	if clientType == models.ClientTypeConfidential {
		secret, err := util.CryptoRandomString(clientSecretBytes * 2)
		if err != nil {
			return nil, err
		}
		hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		plainSecret = secret
		secretHash = string(hashed)
	}

	client := &models.OAuthClient{
		ClientID:     uuid.New().String(),
		ClientSecret: secretHash,
		ClientName:   name,
		Description:  description,
		ClientType:   clientType,
		Scopes:       scopeStr,
		RedirectURIs: strings.Join(redirectURIs, ","),
		IsActive:     true,
		CreatedBy:    actorID,
	}
	if err := s.store.CreateClient(client); err != nil {
		return nil, err
	}

	s.audit.Log(ctx, AuditLogEntry{
		EventType:    models.EventClientCreated,
		ActorUserID:  actorID,
		ResourceType: models.ResourceClient,
		ResourceID:   client.ClientID,
		Action:       "oauth client registered",
		Details: models.AuditDetails{
			"name":        name,
			"client_type": clientType,
		},
		Success: true,
	})

	return &RegisteredClient{Client: client, ClientSecret: plainSecret}, nil
}

// Authenticate validates client credentials for the token endpoint.
// Public clients present no secret and must instead carry PKCE.
func (s *ClientService) Authenticate(clientID, clientSecret string) (*models.OAuthClient, error) {
	client, err := s.GetClient(clientID)
	if err != nil {
		return nil, err
	}

	if client.ClientType == models.ClientTypePublic {
		return client, nil
	}

	if !client.ValidateSecret(clientSecret) {
		return nil, ErrClientNotFound
	}

	return client, nil
}

func (s *ClientService) GetClient(clientID string) (*models.OAuthClient, error) {
	client, err := s.store.GetClientByID(clientID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, ErrClientNotFound
		}
		return nil, err
	}
	if !client.IsActive {
		return nil, ErrClientInactive
	}
	return client, nil
}

func (s *ClientService) List(params store.PaginationParams) ([]models.OAuthClient, *store.PaginationResult, error) {
	return s.store.GetClientsPaginated(params)
}

// Deactivate switches a client off without deleting its history.
func (s *ClientService) Deactivate(ctx context.Context, actorID, clientID string) error {
	client, err := s.store.GetClientByID(clientID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return ErrClientNotFound
		}
		return err
	}

	client.IsActive = false
	if err := s.store.UpdateClient(client); err != nil {
		return err
	}

	s.audit.Log(ctx, AuditLogEntry{
		EventType:    models.EventClientUpdated,
		ActorUserID:  actorID,
		ResourceType: models.ResourceClient,
		ResourceID:   clientID,
		Action:       "oauth client deactivated",
		Success:      true,
	})

	return nil
}
