package services

import (
	"context"
	"errors"
	"time"

	"github.com/elixpo/elixpoaccounts/internal/metrics"
	"github.com/elixpo/elixpoaccounts/internal/models"
	"github.com/elixpo/elixpoaccounts/internal/store"
	"github.com/elixpo/elixpoaccounts/internal/util"

	"github.com/google/uuid"
)

var (
	ErrAPIKeyInvalid = errors.New("api key is invalid")
	ErrAPIKeyRevoked = errors.New("api key has been revoked")
	ErrAPIKeyExpired = errors.New("api key has expired")
	ErrUnknownScope  = errors.New("unknown scope name")
	ErrKeyNotOwned   = errors.New("api key belongs to another user")
)

const apiKeySecretBytes = 32

// APIKeyService issues and validates opaque machine credentials. The
// plaintext secret is returned exactly once at creation; only its SHA-256
// hash and an 8-character display prefix are stored.
type APIKeyService struct {
	store   *store.Store
	limiter *RateLimitService
	audit   *AuditService
	metrics metrics.Recorder
}

func NewAPIKeyService(
	s *store.Store,
	limiter *RateLimitService,
	audit *AuditService,
	recorder metrics.Recorder,
) *APIKeyService {
	return &APIKeyService{
		store:   s,
		limiter: limiter,
		audit:   audit,
		metrics: recorder,
	}
}

// CreatedKey pairs the stored record with the one-time plaintext.
type CreatedKey struct {
	Key       *models.APIKey
	Plaintext string
}

// Create mints a new API key. Scopes must come from the closed scope set.
// rateLimitMax/rateLimitWindow of zero take the model defaults.
func (s *APIKeyService) Create(
	ctx context.Context,
	userID, name string,
	scopes []models.Scope,
	rateLimitMax, rateLimitWindowSeconds int,
	expiresAt *time.Time,
) (*CreatedKey, error) {
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

	plaintext, err := util.CryptoRandomString(apiKeySecretBytes * 2) // hex chars
	if err != nil {
		return nil, err
	}

	key := &models.APIKey{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      name,
		KeyHash:   util.SHA256Hex(plaintext),
		KeyPrefix: plaintext[:8],
		Scopes:    scopeStr,
		ExpiresAt: expiresAt,
	}
	if rateLimitMax > 0 {
		key.RateLimitMax = rateLimitMax
	} else {
		key.RateLimitMax = 60
	}
	if rateLimitWindowSeconds > 0 {
		key.RateLimitWindow = rateLimitWindowSeconds
	} else {
		key.RateLimitWindow = 60
	}

	if err := s.store.CreateAPIKey(key); err != nil {
		return nil, err
	}

	s.audit.Log(ctx, AuditLogEntry{
		EventType:    models.EventAPIKeyCreated,
		ActorUserID:  userID,
		ResourceType: models.ResourceAPIKey,
		ResourceID:   key.ID,
		Action:       "api key created",
		Details: models.AuditDetails{
			"name":   name,
			"prefix": key.KeyPrefix,
			"scopes": scopeStr,
		},
		Success: true,
	})

	return &CreatedKey{Key: key, Plaintext: plaintext}, nil
}

// Validate authenticates a presented plaintext key and applies its per-key
// rate budget. The budget is keyed on the key ID, not the caller IP, so a
// key behind a NAT pool still gets exactly its own allowance.
func (s *APIKeyService) Validate(ctx context.Context, plaintext string) (*models.APIKey, *LimitDecision, error) {
	if plaintext == "" {
		s.metrics.RecordAPIKeyValidation("invalid")
		return nil, nil, ErrAPIKeyInvalid
	}

	key, err := s.store.GetAPIKeyByHash(util.SHA256Hex(plaintext))
	if err != nil {
		s.metrics.RecordAPIKeyValidation("invalid")
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, nil, ErrAPIKeyInvalid
		}
		return nil, nil, err
	}

	if key.Revoked {
		s.metrics.RecordAPIKeyValidation("revoked")
		return nil, nil, ErrAPIKeyRevoked
	}
	if key.IsExpired() {
		s.metrics.RecordAPIKeyValidation("expired")
		return nil, nil, ErrAPIKeyExpired
	}

	decision := s.limiter.CheckWithConfig(ctx, key.ID, "api-key", LimitConfig{
		Window:      time.Duration(key.RateLimitWindow) * time.Second,
		MaxAttempts: key.RateLimitMax,
		BlockFor:    time.Duration(key.RateLimitWindow) * time.Second,
	})

	s.metrics.RecordAPIKeyValidation("valid")
	_ = s.store.TouchAPIKey(key.ID, time.Now())

	return key, decision, nil
}

// RecordUsage appends one usage log row for an authenticated request.
func (s *APIKeyService) RecordUsage(key *models.APIKey, path, method, ip string, status int) {
	_ = s.store.CreateUsageLog(&models.UsageLog{
		APIKeyID: key.ID,
		Endpoint: path,
		Method:   method,
		ActorIP:  ip,
		Status:   status,
	})
}

// Get looks up one key by ID.
func (s *APIKeyService) Get(keyID string) (*models.APIKey, error) {
	key, err := s.store.GetAPIKeyByID(keyID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, ErrAPIKeyInvalid
		}
		return nil, err
	}
	return key, nil
}

// ListForUser returns the user's keys, hashes omitted by the handler layer.
func (s *APIKeyService) ListForUser(userID string) ([]models.APIKey, error) {
	return s.store.GetAPIKeysByUserID(userID)
}

// Revoke marks a key revoked. Only the owning user may revoke through this
// path; admin revocation goes through the permission-checked handler.
func (s *APIKeyService) Revoke(ctx context.Context, actorID, keyID string, isAdmin bool) error {
	key, err := s.store.GetAPIKeyByID(keyID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return ErrAPIKeyInvalid
		}
		return err
	}

	if key.UserID != actorID && !isAdmin {
		return ErrKeyNotOwned
	}

	if err := s.store.RevokeAPIKey(keyID); err != nil {
		return err
	}

	s.audit.Log(ctx, AuditLogEntry{
		EventType:    models.EventAPIKeyRevoked,
		ActorUserID:  actorID,
		ResourceType: models.ResourceAPIKey,
		ResourceID:   keyID,
		Action:       "api key revoked",
		Details:      models.AuditDetails{"prefix": key.KeyPrefix},
		Success:      true,
	})

	return nil
}

// Usage returns the usage trail for a key.
func (s *APIKeyService) Usage(keyID string, params store.PaginationParams) ([]models.UsageLog, *store.PaginationResult, error) {
	return s.store.GetUsageLogsByKeyID(keyID, params)
}
