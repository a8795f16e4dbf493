package services

import (
	"testing"
	"time"

	"github.com/elixpo/elixpoaccounts/internal/config"
	"github.com/elixpo/elixpoaccounts/internal/metrics"
	"github.com/elixpo/elixpoaccounts/internal/models"
	"github.com/elixpo/elixpoaccounts/internal/store"
	"github.com/elixpo/elixpoaccounts/internal/util"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *store.Store {
	// Use in-memory SQLite database for testing
	s, err := store.New("sqlite", ":memory:")
	require.NoError(t, err)
	return s
}

func testConfig() *config.Config {
	return &config.Config{
		BaseURL:         "http://localhost:8080",
		SigningMode:     config.SigningModeHMAC,
		JWTSecret:       "test-secret",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 24 * time.Hour,
		AuthRequestTTL:  10 * time.Minute,
		AuthCodeTTL:     10 * time.Minute,
	}
}

// quietAudit returns a disabled audit sink so tests stay silent and
// synchronous.
func quietAudit(s *store.Store) *AuditService {
	return NewAuditService(s, false, 10)
}

func noop() metrics.Recorder {
	return metrics.NewNoopMetrics()
}

func createTestUser(t *testing.T, s *store.Store, email string) *models.User {
	salt, err := util.CryptoRandomString(16)
	require.NoError(t, err)

	user := &models.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: util.HashPassword("correct horse battery", salt),
		PasswordSalt: salt,
		DisplayName:  "Test User",
		IsActive:     true,
	}
	require.NoError(t, s.CreateUser(user))
	return user
}
