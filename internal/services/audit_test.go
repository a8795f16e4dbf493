package services

import (
	"context"
	"testing"
	"time"

	"github.com/elixpo/elixpoaccounts/internal/models"
	"github.com/elixpo/elixpoaccounts/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLogSync(t *testing.T) {
	s := setupTestStore(t)
	svc := NewAuditService(s, true, 10)
	defer shutdownAudit(t, svc)

	err := svc.LogSync(context.Background(), AuditLogEntry{
		EventType:    models.EventLoginSuccess,
		ActorUserID:  "user-1",
		ActorEmail:   "alice@example.com",
		ResourceType: models.ResourceUser,
		ResourceID:   "user-1",
		Action:       "login",
		Success:      true,
	})
	require.NoError(t, err)

	logs, pagination, err := svc.GetAuditLogs(store.AuditLogFilter{}, store.NewPaginationParams(1, 10, ""))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, int64(1), pagination.Total)
	assert.Equal(t, models.EventLoginSuccess, logs[0].EventType)
	assert.Equal(t, models.SeverityInfo, logs[0].Severity) // defaulted
	assert.NotEmpty(t, logs[0].ID)
}

func TestAuditAsyncFlushOnShutdown(t *testing.T) {
	s := setupTestStore(t)
	svc := NewAuditService(s, true, 100)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		svc.Log(ctx, AuditLogEntry{
			EventType: models.EventLoginSuccess,
			Action:    "login",
			Success:   true,
		})
	}

	// Shutdown drains the channel and flushes the remainder
	shutdownAudit(t, svc)

	logs, _, err := svc.GetAuditLogs(store.AuditLogFilter{}, store.NewPaginationParams(1, 50, ""))
	require.NoError(t, err)
	assert.Len(t, logs, 25)
}

func TestAuditDisabledIsNoop(t *testing.T) {
	s := setupTestStore(t)
	svc := NewAuditService(s, false, 10)
	ctx := context.Background()

	svc.Log(ctx, AuditLogEntry{EventType: models.EventLoginSuccess, Action: "login"})
	require.NoError(t, svc.LogSync(ctx, AuditLogEntry{EventType: models.EventLoginSuccess, Action: "login"}))
	require.NoError(t, svc.Shutdown(ctx))

	logs, _, err := svc.GetAuditLogs(store.AuditLogFilter{}, store.NewPaginationParams(1, 10, ""))
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestAuditMasksSensitiveDetails(t *testing.T) {
	masked := maskSensitiveDetails(models.AuditDetails{
		"password":      "hunter2",
		"client_secret": "super-secret-value",
		"refresh_token": "eyJhbGciOi...",
		"code_verifier": "pkce-verifier-value",
		"email":         "alice@example.com",
	})

	assert.Equal(t, "***REDACTED***", masked["password"])
	assert.Equal(t, "***REDACTED***", masked["client_secret"])
	assert.Equal(t, "***REDACTED***", masked["refresh_token"])
	assert.Equal(t, "***REDACTED***", masked["code_verifier"])
	assert.Equal(t, "alice@example.com", masked["email"])
}

func TestAuditPartialMasking(t *testing.T) {
	masked := maskSensitiveDetails(models.AuditDetails{
		"authorization_code": "abcdefgh0123456789wxyz",
		"api_key":            "0123456789abcdef0123456789abcdef",
		"short_api_key":      "tiny",
	})

	assert.Equal(t, "abcdefgh...wxyz", masked["authorization_code"])
	assert.Equal(t, "01234567...cdef", masked["api_key"])
	// Too short to keep a meaningful prefix
	assert.Equal(t, "tiny", masked["short_api_key"])
}

func TestAuditFilters(t *testing.T) {
	s := setupTestStore(t)
	svc := NewAuditService(s, true, 10)
	defer shutdownAudit(t, svc)
	ctx := context.Background()

	require.NoError(t, svc.LogSync(ctx, AuditLogEntry{
		EventType:   models.EventLoginSuccess,
		ActorUserID: "user-1",
		Action:      "login",
		Success:     true,
	}))
	require.NoError(t, svc.LogSync(ctx, AuditLogEntry{
		EventType:   models.EventTokenRevoked,
		Severity:    models.SeverityCritical,
		ActorUserID: "user-2",
		Action:      "revoked",
	}))

	logs, _, err := svc.GetAuditLogs(store.AuditLogFilter{
		EventType: string(models.EventTokenRevoked),
	}, store.NewPaginationParams(1, 10, ""))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "user-2", logs[0].ActorUserID)

	logs, _, err = svc.GetAuditLogs(store.AuditLogFilter{
		Severity: string(models.SeverityCritical),
	}, store.NewPaginationParams(1, 10, ""))
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestAuditRetentionCleanup(t *testing.T) {
	s := setupTestStore(t)
	svc := NewAuditService(s, true, 10)
	defer shutdownAudit(t, svc)
	ctx := context.Background()

	require.NoError(t, svc.LogSync(ctx, AuditLogEntry{
		EventType: models.EventLoginSuccess,
		Action:    "login",
	}))

	// Age the row past the retention horizon
	require.NoError(t, s.DB().Model(&models.AuditLog{}).
		Where("1 = 1").
		Update("created_at", time.Now().Add(-100*24*time.Hour)).Error)

	deleted, err := svc.CleanupOldLogs(90 * 24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func shutdownAudit(t *testing.T, svc *AuditService) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Shutdown(ctx))
}
