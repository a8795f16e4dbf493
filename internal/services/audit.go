package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/elixpo/elixpoaccounts/internal/metrics"
	"github.com/elixpo/elixpoaccounts/internal/models"
	"github.com/elixpo/elixpoaccounts/internal/store"
	"github.com/elixpo/elixpoaccounts/internal/util"
	"github.com/elixpo/elixpoaccounts/internal/webhook"

	"github.com/google/uuid"
)

// AuditLogEntry carries the data needed to create one audit log record.
type AuditLogEntry struct {
	EventType     models.EventType
	Severity      models.EventSeverity
	ActorUserID   string
	ActorEmail    string
	ActorIP       string
	ResourceType  models.ResourceType
	ResourceID    string
	Action        string
	Details       models.AuditDetails
	Success       bool
	ErrorMessage  string
	UserAgent     string
	RequestPath   string
	RequestMethod string
}

// AuditService records security events. Writes are asynchronous: entries are
// buffered on a channel, batched, and flushed either every second or when the
// batch fills. LogSync bypasses the buffer for events that must not be lost.
type AuditService struct {
	store   *store.Store
	enabled bool

	logChan chan models.AuditLog

	batchBuffer []models.AuditLog
	batchMutex  sync.Mutex
	batchTicker *time.Ticker

	// Optional delivery to an external collaborator for critical events.
	notifier        *webhook.Notifier
	notifierMetrics metrics.Recorder
	notifierTimeout time.Duration

	wg         sync.WaitGroup
	shutdownCh chan struct{}
}

const auditBatchSize = 100

func NewAuditService(s *store.Store, enabled bool, bufferSize int) *AuditService {
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	service := &AuditService{
		store:       s,
		enabled:     enabled,
		logChan:     make(chan models.AuditLog, bufferSize),
		batchBuffer: make([]models.AuditLog, 0, auditBatchSize),
		batchTicker: time.NewTicker(1 * time.Second),
		shutdownCh:  make(chan struct{}),
	}

	if enabled {
		service.wg.Add(1)
		go service.worker()
		log.Printf("Audit service started with buffer size %d", bufferSize)
	} else {
		log.Println("Audit service is disabled")
	}

	return service
}

func (s *AuditService) worker() {
	defer s.wg.Done()

	for {
		select {
		case entry := <-s.logChan:
			s.addToBatch(entry)

		case <-s.batchTicker.C:
			s.flushBatch()

		case <-s.shutdownCh:
			// Drain anything still queued, then flush
			for {
				select {
				case entry := <-s.logChan:
					s.addToBatch(entry)
				default:
					s.flushBatch()
					return
				}
			}
		}
	}
}

func (s *AuditService) addToBatch(entry models.AuditLog) {
	s.batchMutex.Lock()
	defer s.batchMutex.Unlock()

	s.batchBuffer = append(s.batchBuffer, entry)

	if len(s.batchBuffer) >= auditBatchSize {
		s.flushBatchUnsafe()
	}
}

func (s *AuditService) flushBatch() {
	s.batchMutex.Lock()
	defer s.batchMutex.Unlock()
	s.flushBatchUnsafe()
}

// flushBatchUnsafe flushes the buffer; caller must hold batchMutex.
func (s *AuditService) flushBatchUnsafe() {
	if len(s.batchBuffer) == 0 {
		return
	}

	toWrite := make([]models.AuditLog, len(s.batchBuffer))
	copy(toWrite, s.batchBuffer)
	s.batchBuffer = s.batchBuffer[:0]

	if err := s.store.CreateAuditLogBatch(toWrite); err != nil {
		log.Printf("Failed to write audit log batch: %v", err)
	}
}

func (s *AuditService) build(ctx context.Context, entry AuditLogEntry) models.AuditLog {
	if entry.ActorIP == "" {
		entry.ActorIP = util.GetIPFromContext(ctx)
	}
	if entry.ActorEmail == "" {
		entry.ActorEmail = util.GetEmailFromContext(ctx)
	}
	if entry.Severity == "" {
		entry.Severity = models.SeverityInfo
	}

	return models.AuditLog{
		ID:            uuid.New().String(),
		EventType:     entry.EventType,
		EventTime:     time.Now(),
		Severity:      entry.Severity,
		ActorUserID:   entry.ActorUserID,
		ActorEmail:    entry.ActorEmail,
		ActorIP:       entry.ActorIP,
		ResourceType:  entry.ResourceType,
		ResourceID:    entry.ResourceID,
		Action:        entry.Action,
		Details:       maskSensitiveDetails(entry.Details),
		Success:       entry.Success,
		ErrorMessage:  entry.ErrorMessage,
		UserAgent:     entry.UserAgent,
		RequestPath:   entry.RequestPath,
		RequestMethod: entry.RequestMethod,
		CreatedAt:     time.Now(),
	}
}

// Log records an audit log entry asynchronously. If the buffer is full the
// event is dropped; the security path never blocks on audit writes.
func (s *AuditService) Log(ctx context.Context, entry AuditLogEntry) {
	if !s.enabled {
		return
	}

	auditLog := s.build(ctx, entry)

	select {
	case s.logChan <- auditLog:
	default:
		log.Printf("WARNING: Audit log buffer full, dropping event: %s", entry.Action)
	}

	s.dispatchWebhook(auditLog)
}

// LogSync records an audit log entry synchronously, for critical events.
func (s *AuditService) LogSync(ctx context.Context, entry AuditLogEntry) error {
	if !s.enabled {
		return nil
	}

	auditLog := s.build(ctx, entry)
	s.dispatchWebhook(auditLog)
	return s.store.CreateAuditLog(&auditLog)
}

// SetNotifier enables webhook delivery of critical events. A nil notifier
// leaves delivery disabled.
func (s *AuditService) SetNotifier(n *webhook.Notifier, recorder metrics.Recorder, timeout time.Duration) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	s.notifier = n
	s.notifierMetrics = recorder
	s.notifierTimeout = timeout
}

// dispatchWebhook delivers critical events to the configured collaborator.
// Delivery is best-effort and never blocks the caller.
func (s *AuditService) dispatchWebhook(entry models.AuditLog) {
	if s.notifier == nil || entry.Severity != models.SeverityCritical {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.notifierTimeout)
		defer cancel()

		start := time.Now()
		err := s.notifier.Notify(ctx, string(entry.EventType), map[string]any{
			"actor_user_id": entry.ActorUserID,
			"resource_type": string(entry.ResourceType),
			"resource_id":   entry.ResourceID,
			"action":        entry.Action,
			"severity":      string(entry.Severity),
			"event_time":    entry.EventTime.Unix(),
		})
		if err != nil {
			log.Printf("Webhook delivery failed for %s: %v", entry.EventType, err)
		}
		if s.notifierMetrics != nil {
			s.notifierMetrics.RecordWebhookDelivery(err == nil, time.Since(start))
		}
	}()
}

// GetAuditLogs retrieves audit logs with pagination and filtering.
func (s *AuditService) GetAuditLogs(
	filter store.AuditLogFilter,
	params store.PaginationParams,
) ([]models.AuditLog, *store.PaginationResult, error) {
	return s.store.GetAuditLogsPaginated(filter, params)
}

// CleanupOldLogs deletes audit logs older than the retention period.
func (s *AuditService) CleanupOldLogs(retention time.Duration) (int64, error) {
	return s.store.DeleteOldAuditLogs(time.Now().Add(-retention))
}

// Shutdown flushes buffered entries and stops the worker.
func (s *AuditService) Shutdown(ctx context.Context) error {
	if !s.enabled {
		return nil
	}

	s.batchTicker.Stop()
	close(s.shutdownCh)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Audit service shut down gracefully")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("audit service shutdown timeout: %w", ctx.Err())
	}
}

// maskSensitiveDetails redacts credential material from audit details.
func maskSensitiveDetails(details models.AuditDetails) models.AuditDetails {
	if details == nil {
		return details
	}

	masked := make(models.AuditDetails)
	for key, value := range details {
		if isSensitiveField(key) {
			masked[key] = "***REDACTED***"
			continue
		}

		if isPartialMaskField(key) {
			if str, ok := value.(string); ok && len(str) > 12 {
				masked[key] = str[:8] + "..." + str[len(str)-4:]
				continue
			}
		}

		masked[key] = value
	}

	return masked
}

func isSensitiveField(key string) bool {
	key = strings.ToLower(key)
	sensitiveFields := []string{
		"password",
		"client_secret",
		"token",
		"access_token",
		"refresh_token",
		"secret",
		"verifier",
	}

	for _, field := range sensitiveFields {
		if strings.Contains(key, field) {
			return true
		}
	}
	return false
}

func isPartialMaskField(key string) bool {
	key = strings.ToLower(key)
	partialMaskFields := []string{
		"authorization_code",
		"api_key",
		"token_id",
	}

	for _, field := range partialMaskFields {
		if strings.Contains(key, field) {
			return true
		}
	}
	return false
}
