package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/elixpo/elixpoaccounts/internal/auth"
	"github.com/elixpo/elixpoaccounts/internal/config"
	"github.com/elixpo/elixpoaccounts/internal/metrics"
	"github.com/elixpo/elixpoaccounts/internal/models"
	"github.com/elixpo/elixpoaccounts/internal/store"
	"github.com/elixpo/elixpoaccounts/internal/util"

	"github.com/google/uuid"
)

var (
	ErrUnknownProvider  = errors.New("unknown oauth provider")
	ErrStateInvalid     = errors.New("state is invalid or already used")
	ErrStateExpired     = errors.New("authorization request has expired")
	ErrAutoRegisterOff  = errors.New("no account exists for this identity")
	ErrProviderMismatch = errors.New("account is registered with a different provider")
)

const (
	stateBytes    = 32
	nonceBytes    = 32
	verifierBytes = 32
)

// FlowService drives the upstream OAuth handshake: it opens authorization
// requests with state, nonce, and a PKCE verifier, and completes them by
// exchanging the callback code, normalizing the profile, and resolving the
// identity to a local user.
type FlowService struct {
	store     *store.Store
	providers map[string]*auth.Provider
	tokens    *TokenService
	config    *config.Config
	audit     *AuditService
	metrics   metrics.Recorder
}

func NewFlowService(
	s *store.Store,
	providers map[string]*auth.Provider,
	tokens *TokenService,
	cfg *config.Config,
	audit *AuditService,
	recorder metrics.Recorder,
) *FlowService {
	return &FlowService{
		store:     s,
		providers: providers,
		tokens:    tokens,
		config:    cfg,
		audit:     audit,
		metrics:   recorder,
	}
}

// Providers lists the configured provider names.
func (s *FlowService) Providers() []string {
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	return names
}

// Begin opens a handshake against the named provider and returns the URL to
// redirect the browser to. State, nonce, and the PKCE verifier are persisted
// so the callback can be bound to exactly this request.
func (s *FlowService) Begin(ctx context.Context, providerName string) (string, error) {
	provider, ok := s.providers[providerName]
	if !ok {
		return "", ErrUnknownProvider
	}

	state, err := util.RandomURLToken(stateBytes)
	if err != nil {
		return "", err
	}
	nonce, err := util.RandomURLToken(nonceBytes)
	if err != nil {
		return "", err
	}
	verifier, err := util.RandomURLToken(verifierBytes)
	if err != nil {
		return "", err
	}

	req := &models.AuthorizationRequest{
		ID:           uuid.New().String(),
		State:        state,
		Nonce:        nonce,
		CodeVerifier: verifier,
		Provider:     providerName,
		ExpiresAt:    time.Now().Add(s.config.AuthRequestTTL),
	}
	if err := s.store.CreateAuthorizationRequest(req); err != nil {
		return "", err
	}

	s.metrics.RecordAuthorizationStarted(providerName)
	s.audit.Log(ctx, AuditLogEntry{
		EventType:    models.EventAuthorizationStarted,
		ResourceType: models.ResourceAuthorization,
		ResourceID:   req.ID,
		Action:       "upstream authorization started",
		Details:      models.AuditDetails{"oauth_provider": providerName},
		Success:      true,
	})

	return provider.AuthCodeURL(state, nonce, verifier), nil
}

// Complete finishes the handshake: the state consumes its stored request
// exactly once, the code is exchanged with the PKCE verifier, and the
// normalized profile resolves to a local user.
func (s *FlowService) Complete(ctx context.Context, state, code string) (*models.User, *TokenPair, error) {
	req, err := s.store.ConsumeAuthorizationRequest(state)
	if err != nil {
		if errors.Is(err, store.ErrAuthRequestConsumed) {
			return nil, nil, ErrStateInvalid
		}
		return nil, nil, err
	}

	provider, ok := s.providers[req.Provider]
	if !ok {
		return nil, nil, ErrUnknownProvider
	}

	if req.IsExpired() {
		s.metrics.RecordOAuthCallback(req.Provider, false)
		return nil, nil, ErrStateExpired
	}

	// Outbound provider calls never wait longer than the configured budget
	callCtx, cancel := context.WithTimeout(ctx, s.providerTimeout())
	defer cancel()

	tok, err := provider.Exchange(callCtx, code, req.CodeVerifier)
	if err != nil {
		s.metrics.RecordOAuthCallback(req.Provider, false)
		s.audit.Log(ctx, AuditLogEntry{
			EventType:    models.EventLoginFailure,
			Severity:     models.SeverityWarning,
			ResourceType: models.ResourceAuthorization,
			Action:       "upstream code exchange failed",
			Details:      models.AuditDetails{"oauth_provider": req.Provider},
			Success:      false,
			ErrorMessage: err.Error(),
		})
		return nil, nil, fmt.Errorf("code exchange failed: %w", err)
	}

	profile, err := provider.FetchProfile(callCtx, tok)
	if err != nil {
		s.metrics.RecordOAuthCallback(req.Provider, false)
		return nil, nil, fmt.Errorf("profile fetch failed: %w", err)
	}

	user, err := s.resolveIdentity(ctx, req.Provider, profile)
	if err != nil {
		s.metrics.RecordOAuthCallback(req.Provider, false)
		return nil, nil, err
	}

	pair, err := s.tokens.IssuePair(ctx, user, req.Provider, req.ClientID, "authorization_code")
	if err != nil {
		return nil, nil, err
	}

	s.metrics.RecordOAuthCallback(req.Provider, true)
	s.metrics.RecordLogin(req.Provider, true)
	s.audit.Log(ctx, AuditLogEntry{
		EventType:    models.EventOAuthLogin,
		ActorUserID:  user.ID,
		ActorEmail:   user.Email,
		ResourceType: models.ResourceUser,
		ResourceID:   user.ID,
		Action:       "oauth login",
		Details:      models.AuditDetails{"oauth_provider": req.Provider},
		Success:      true,
	})

	return user, pair, nil
}

func (s *FlowService) providerTimeout() time.Duration {
	if s.config.ProviderTimeout > 0 {
		return s.config.ProviderTimeout
	}
	return 10 * time.Second
}

// resolveIdentity maps a provider profile onto a local account.
//
// Resolution order: an existing (provider, subject) identity wins; otherwise
// the email is looked up. An email already owned through a different provider
// is rejected rather than silently linked, and the error names the providers
// the account actually has, so the user knows which button to press next time.
func (s *FlowService) resolveIdentity(
	ctx context.Context,
	providerName string,
	profile *auth.Profile,
) (*models.User, error) {
	identity, err := s.store.GetIdentity(providerName, profile.SubjectID)
	if err == nil {
		// A stale profile snapshot is cosmetic; the login proceeds either way
		_ = s.store.TouchIdentity(identity.ID, profile.Email, profile.DisplayName, profile.AvatarURL)
		user, err := s.store.GetUserByID(identity.UserID)
		if err != nil {
			return nil, err
		}
		if !user.IsActive {
			return nil, ErrUserInactive
		}
		return user, nil
	}
	if !errors.Is(err, store.ErrRecordNotFound) {
		return nil, err
	}

	email := strings.ToLower(profile.Email)
	user, err := s.store.GetUserByEmail(email)
	if err == nil {
		// Account exists without this provider identity. Honor the lock-in.
		registered, lookupErr := s.registeredMethods(user)
		if lookupErr != nil {
			return nil, lookupErr
		}

		s.audit.Log(ctx, AuditLogEntry{
			EventType:    models.EventProviderLockIn,
			Severity:     models.SeverityWarning,
			ActorEmail:   email,
			ResourceType: models.ResourceUser,
			ResourceID:   user.ID,
			Action:       "login rejected, identity belongs to another provider",
			Details: models.AuditDetails{
				"attempted_provider": providerName,
				"registered_methods": strings.Join(registered, ", "),
			},
			Success: false,
		})

		return nil, fmt.Errorf("%w: this account uses %s",
			ErrProviderMismatch, strings.Join(registered, ", "))
	}
	if !errors.Is(err, store.ErrRecordNotFound) {
		return nil, err
	}

	if !s.config.OAuthAutoRegister {
		return nil, ErrAutoRegisterOff
	}

	// First login through this provider creates the account
	user = &models.User{
		ID:          uuid.New().String(),
		Email:       email,
		DisplayName: profile.DisplayName,
		AvatarURL:   profile.AvatarURL,
		IsActive:    true,
	}
	if err := s.store.CreateUser(user); err != nil {
		return nil, err
	}

	if err := s.store.CreateIdentity(&models.Identity{
		ID:                uuid.New().String(),
		UserID:            user.ID,
		Provider:          providerName,
		ProviderSubjectID: profile.SubjectID,
		ProviderEmail:     profile.Email,
		DisplayName:       profile.DisplayName,
		AvatarURL:         profile.AvatarURL,
		LastUsedAt:        time.Now(),
	}); err != nil {
		return nil, err
	}

	if role, roleErr := s.store.GetRoleByName(models.RoleUser); roleErr == nil {
		_ = s.store.CreateRoleAssignment(&models.RoleAssignment{
			UserID: user.ID,
			RoleID: role.ID,
		})
	}

	s.audit.Log(ctx, AuditLogEntry{
		EventType:    models.EventRegistration,
		ActorUserID:  user.ID,
		ActorEmail:   user.Email,
		ResourceType: models.ResourceUser,
		ResourceID:   user.ID,
		Action:       "account auto-registered from oauth login",
		Details:      models.AuditDetails{"oauth_provider": providerName},
		Success:      true,
	})

	return user, nil
}

// registeredMethods names the login methods an account actually has:
// its linked providers, plus "password" when local credentials exist.
func (s *FlowService) registeredMethods(user *models.User) ([]string, error) {
	identities, err := s.store.GetIdentitiesByUserID(user.ID)
	if err != nil {
		return nil, err
	}

	methods := make([]string, 0, len(identities)+1)
	for _, id := range identities {
		methods = append(methods, id.Provider)
	}
	if user.HasPassword() || len(methods) == 0 {
		methods = append(methods, "password")
	}
	return methods, nil
}

// CleanupExpired removes lapsed authorization requests.
func (s *FlowService) CleanupExpired() (int64, error) {
	return s.store.DeleteExpiredAuthorizationRequests(time.Now())
}
