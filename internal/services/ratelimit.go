package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/elixpo/elixpoaccounts/internal/metrics"
	"github.com/elixpo/elixpoaccounts/internal/models"
	"github.com/elixpo/elixpoaccounts/internal/store"
)

// LimitConfig is one endpoint's rate budget.
type LimitConfig struct {
	Window      time.Duration // counting window
	MaxAttempts int           // attempts allowed per window
	BlockFor    time.Duration // block applied after the budget is exhausted
}

// Named endpoint budgets. Password reset gets the tightest budget because
// each attempt sends email.
var limitConfigs = map[string]LimitConfig{
	"login":          {Window: time.Minute, MaxAttempts: 10, BlockFor: 15 * time.Minute},
	"register":       {Window: time.Minute, MaxAttempts: 5, BlockFor: 30 * time.Minute},
	"password-reset": {Window: time.Hour, MaxAttempts: 3, BlockFor: time.Hour},
}

// LimitDecision is the outcome of one rate limit check.
type LimitDecision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	Window     time.Duration
	RetryAfter time.Duration // set when denied
}

// RateLimitService enforces per-subject sliding windows backed by the
// database, so limits survive restarts and hold across instances. Storage
// failures degrade to fail-open: an attacker who can break the database
// should not also be able to lock every user out.
type RateLimitService struct {
	store   *store.Store
	audit   *AuditService
	metrics metrics.Recorder
}

func NewRateLimitService(s *store.Store, audit *AuditService, recorder metrics.Recorder) *RateLimitService {
	return &RateLimitService{
		store:   s,
		audit:   audit,
		metrics: recorder,
	}
}

// Config returns the budget for a named endpoint.
func Config(endpoint string) (LimitConfig, bool) {
	cfg, ok := limitConfigs[endpoint]
	return cfg, ok
}

// Check runs one attempt against a named endpoint's budget.
func (s *RateLimitService) Check(ctx context.Context, subject, endpoint string) *LimitDecision {
	cfg, ok := limitConfigs[endpoint]
	if !ok {
		// Unknown endpoint name is a programming error; fail open and log
		log.Printf("rate limit check for unconfigured endpoint %q", endpoint)
		return &LimitDecision{Allowed: true}
	}
	return s.CheckWithConfig(ctx, subject, endpoint, cfg)
}

// CheckWithConfig runs one attempt with an explicit budget, used by the API
// key middleware where each key carries its own limit.
func (s *RateLimitService) CheckWithConfig(
	ctx context.Context,
	subject, endpoint string,
	cfg LimitConfig,
) *LimitDecision {
	now := time.Now()

	entry, err := s.store.GetRateLimitEntry(subject, endpoint)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return s.startWindow(ctx, subject, endpoint, cfg, now)
		}
		return s.failOpen(ctx, subject, endpoint, cfg, err)
	}

	// Step 1: an active block denies outright
	if entry.IsBlocked(now) {
		retryAfter := time.Until(*entry.BlockedUntil)
		s.metrics.RecordRateLimitDecision(endpoint, "blocked")
		return &LimitDecision{
			Allowed:    false,
			Limit:      cfg.MaxAttempts,
			Remaining:  0,
			Window:     cfg.Window,
			RetryAfter: retryAfter,
		}
	}

	// Step 2: a lapsed window starts over with this attempt counted
	if entry.WindowExpired(now) {
		if err := s.store.ResetRateLimitWindow(subject, endpoint, now.Add(cfg.Window)); err != nil {
			return s.failOpen(ctx, subject, endpoint, cfg, err)
		}
		s.metrics.RecordRateLimitDecision(endpoint, "allowed")
		return &LimitDecision{
			Allowed:   true,
			Limit:     cfg.MaxAttempts,
			Remaining: cfg.MaxAttempts - 1,
			Window:    cfg.Window,
		}
	}

	// Step 3: count this attempt
	if err := s.store.IncrementRateLimitAttempts(subject, endpoint); err != nil {
		return s.failOpen(ctx, subject, endpoint, cfg, err)
	}
	attempts := entry.AttemptCount + 1

	// Step 4: exhausting the budget starts a block
	if attempts > cfg.MaxAttempts {
		until := now.Add(cfg.BlockFor)
		if err := s.store.SetRateLimitBlocked(subject, endpoint, until); err != nil {
			return s.failOpen(ctx, subject, endpoint, cfg, err)
		}

		s.metrics.RecordRateLimitDecision(endpoint, "limited")
		s.audit.Log(ctx, AuditLogEntry{
			EventType:    models.EventRateLimitExceeded,
			Severity:     models.SeverityWarning,
			ResourceType: models.ResourceRateLimit,
			ResourceID:   subject,
			Action:       "rate limit exceeded, block applied",
			Details: models.AuditDetails{
				"endpoint":  endpoint,
				"attempts":  attempts,
				"block_for": cfg.BlockFor.String(),
			},
			Success: false,
		})

		return &LimitDecision{
			Allowed:    false,
			Limit:      cfg.MaxAttempts,
			Remaining:  0,
			Window:     cfg.Window,
			RetryAfter: cfg.BlockFor,
		}
	}

	remaining := cfg.MaxAttempts - attempts
	if remaining < 0 {
		remaining = 0
	}

	s.metrics.RecordRateLimitDecision(endpoint, "allowed")
	return &LimitDecision{
		Allowed:   true,
		Limit:     cfg.MaxAttempts,
		Remaining: remaining,
		Window:    cfg.Window,
	}
}

// startWindow creates the first entry for a (subject, endpoint) pair.
func (s *RateLimitService) startWindow(
	ctx context.Context,
	subject, endpoint string,
	cfg LimitConfig,
	now time.Time,
) *LimitDecision {
	entry := &models.RateLimitEntry{
		Subject:       subject,
		Endpoint:      endpoint,
		AttemptCount:  1,
		WindowResetAt: now.Add(cfg.Window),
	}
	if err := s.store.CreateRateLimitEntry(entry); err != nil {
		// A concurrent first request may have won the insert; retry through
		// the increment path once before failing open.
		if incErr := s.store.IncrementRateLimitAttempts(subject, endpoint); incErr != nil {
			return s.failOpen(ctx, subject, endpoint, cfg, err)
		}
	}

	s.metrics.RecordRateLimitDecision(endpoint, "allowed")
	return &LimitDecision{
		Allowed:   true,
		Limit:     cfg.MaxAttempts,
		Remaining: cfg.MaxAttempts - 1,
		Window:    cfg.Window,
	}
}

// failOpen allows the request when the limiter's own storage is failing,
// and leaves a loud trail.
func (s *RateLimitService) failOpen(
	ctx context.Context,
	subject, endpoint string,
	cfg LimitConfig,
	cause error,
) *LimitDecision {
	log.Printf("rate limiter degraded for %s/%s: %v", subject, endpoint, cause)
	s.metrics.RecordRateLimitDecision(endpoint, "degraded")
	s.metrics.RecordDatabaseQueryError("rate_limit")
	s.audit.Log(ctx, AuditLogEntry{
		EventType:    models.EventRateLimitDegraded,
		Severity:     models.SeverityError,
		ResourceType: models.ResourceRateLimit,
		ResourceID:   subject,
		Action:       "rate limiter storage failure, failing open",
		Details:      models.AuditDetails{"endpoint": endpoint},
		Success:      false,
		ErrorMessage: cause.Error(),
	})

	return &LimitDecision{
		Allowed:   true,
		Limit:     cfg.MaxAttempts,
		Remaining: cfg.MaxAttempts,
		Window:    cfg.Window,
	}
}

// Reset clears the counter for a subject, for admin unblocking.
func (s *RateLimitService) Reset(subject, endpoint string) error {
	return s.store.DeleteRateLimitEntry(subject, endpoint)
}

// CleanupStale removes entries whose window and block have both lapsed.
func (s *RateLimitService) CleanupStale() (int64, error) {
	return s.store.DeleteStaleRateLimitEntries(time.Now())
}
