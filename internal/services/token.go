package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/elixpo/elixpoaccounts/internal/config"
	"github.com/elixpo/elixpoaccounts/internal/metrics"
	"github.com/elixpo/elixpoaccounts/internal/models"
	"github.com/elixpo/elixpoaccounts/internal/store"
	"github.com/elixpo/elixpoaccounts/internal/token"
	"github.com/elixpo/elixpoaccounts/internal/util"

	"github.com/google/uuid"
)

var (
	ErrRefreshTokenInvalid = errors.New("refresh token is invalid")
	ErrRefreshTokenRevoked = errors.New("refresh token has been revoked")
	ErrRefreshTokenExpired = errors.New("refresh token has expired")
)

// TokenPair is one issued access/refresh pair.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	TokenType        string
	ExpiresIn        int64 // access token lifetime in seconds
	RefreshExpiresAt time.Time
}

// TokenService issues, refreshes, and revokes JWT pairs. Refresh tokens are
// additionally persisted by hash so rotation and revocation are enforceable
// server-side; access tokens stay stateless.
type TokenService struct {
	store    *store.Store
	provider *token.Provider
	config   *config.Config
	audit    *AuditService
	metrics  metrics.Recorder
}

func NewTokenService(
	s *store.Store,
	provider *token.Provider,
	cfg *config.Config,
	audit *AuditService,
	recorder metrics.Recorder,
) *TokenService {
	return &TokenService{
		store:    s,
		provider: provider,
		config:   cfg,
		audit:    audit,
		metrics:  recorder,
	}
}

// IssuePair signs an access/refresh pair and persists the refresh credential.
// authProvider tags which login path produced the pair ("local", "google",
// "github"); clientID is empty for first-party logins.
func (s *TokenService) IssuePair(
	ctx context.Context,
	user *models.User,
	authProvider, clientID, grantType string,
) (*TokenPair, error) {
	start := time.Now()

	access, err := s.provider.IssueAccessToken(user.ID, user.Email, authProvider)
	if err != nil {
		return nil, err
	}

	refresh, err := s.provider.IssueRefreshToken(user.ID, user.Email, authProvider)
	if err != nil {
		return nil, err
	}

	cred := &models.RefreshCredential{
		ID:        uuid.New().String(),
		TokenHash: util.SHA256Hex(refresh.TokenString),
		UserID:    user.ID,
		ClientID:  clientID,
		Provider:  authProvider,
		ExpiresAt: refresh.ExpiresAt,
	}
	// Persistence failure degrades to fail-open: the signed pair goes out,
	// but the refresh token cannot be redeemed later because no credential
	// row exists for it.
	if err := s.store.CreateRefreshCredential(cred); err != nil {
		log.Printf("refresh credential persistence failed for user %s: %v", user.ID, err)
		s.metrics.RecordDatabaseQueryError("refresh_credential")
		s.audit.Log(ctx, AuditLogEntry{
			EventType:    models.EventAccessTokenIssued,
			Severity:     models.SeverityError,
			ActorUserID:  user.ID,
			ActorEmail:   user.Email,
			ResourceType: models.ResourceToken,
			Action:       "token pair issued without persisted refresh credential",
			Details:      models.AuditDetails{"grant_type": grantType},
			Success:      true,
			ErrorMessage: err.Error(),
		})
	}

	s.metrics.RecordTokenIssued(token.KindAccess, grantType, time.Since(start))
	s.metrics.RecordTokenIssued(token.KindRefresh, grantType, 0)
	s.audit.Log(ctx, AuditLogEntry{
		EventType:    models.EventAccessTokenIssued,
		ActorUserID:  user.ID,
		ActorEmail:   user.Email,
		ResourceType: models.ResourceToken,
		ResourceID:   cred.ID,
		Action:       "token pair issued",
		Details: models.AuditDetails{
			"grant_type": grantType,
			"provider":   authProvider,
		},
		Success: true,
	})

	return &TokenPair{
		AccessToken:      access.TokenString,
		RefreshToken:     refresh.TokenString,
		TokenType:        token.TokenTypeBearer,
		ExpiresIn:        int64(s.config.AccessTokenTTL.Seconds()),
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}

// IssueClientCredentials signs an access token for a machine client. No
// refresh token: the client re-authenticates with its secret instead.
func (s *TokenService) IssueClientCredentials(ctx context.Context, client *models.OAuthClient) (*TokenPair, error) {
	start := time.Now()

	access, err := s.provider.IssueAccessToken(client.ClientID, "", "client")
	if err != nil {
		return nil, err
	}

	s.metrics.RecordTokenIssued(token.KindAccess, "client_credentials", time.Since(start))
	s.audit.Log(ctx, AuditLogEntry{
		EventType:    models.EventAccessTokenIssued,
		ResourceType: models.ResourceClient,
		ResourceID:   client.ClientID,
		Action:       "client credentials token issued",
		Details:      models.AuditDetails{"grant_type": "client_credentials"},
		Success:      true,
	})

	return &TokenPair{
		AccessToken: access.TokenString,
		TokenType:   token.TokenTypeBearer,
		ExpiresIn:   int64(s.config.AccessTokenTTL.Seconds()),
	}, nil
}

// Refresh rotates a refresh token: the presented token is verified
// cryptographically, checked against its persisted credential, and exchanged
// for a fresh pair. The old credential is revoked only after the new one is
// persisted, so a storage crash between the two steps can never leave the
// user with zero working tokens. Crypto failures are terminal; a failure to
// persist the revocation is logged and degrades to fail-open.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.provider.VerifyKind(refreshToken, token.KindRefresh)
	if err != nil {
		s.metrics.RecordTokenRefresh(false)
		if errors.Is(err, token.ErrExpiredToken) {
			return nil, ErrRefreshTokenExpired
		}
		return nil, ErrRefreshTokenInvalid
	}

	hash := util.SHA256Hex(refreshToken)
	cred, err := s.store.GetRefreshCredentialByHash(hash)
	if err != nil {
		s.metrics.RecordTokenRefresh(false)
		if errors.Is(err, store.ErrRecordNotFound) {
			// Signed by us but never persisted, or already rotated away and
			// cleaned up. Either way it cannot be honored.
			return nil, ErrRefreshTokenInvalid
		}
		return nil, err
	}

	if cred.Revoked {
		// Reuse of a rotated token. Revoke the whole family: a replayed
		// refresh token means the credential leaked.
		if _, revokeErr := s.store.RevokeRefreshCredentialsByUserID(cred.UserID); revokeErr != nil {
			log.Printf("Failed to revoke credential family for user=%s: %v", cred.UserID, revokeErr)
		}
		s.metrics.RecordTokenRefresh(false)
		s.metrics.RecordTokenRevoked("reuse")
		s.audit.Log(ctx, AuditLogEntry{
			EventType:    models.EventTokenRevoked,
			Severity:     models.SeverityCritical,
			ActorUserID:  cred.UserID,
			ResourceType: models.ResourceToken,
			ResourceID:   cred.ID,
			Action:       "revoked refresh token reused, credential family revoked",
			Success:      false,
			ErrorMessage: "token reuse detected",
		})
		return nil, ErrRefreshTokenRevoked
	}

	if cred.IsExpired() {
		s.metrics.RecordTokenRefresh(false)
		return nil, ErrRefreshTokenExpired
	}

	user, err := s.store.GetUserByID(cred.UserID)
	if err != nil {
		s.metrics.RecordTokenRefresh(false)
		return nil, ErrRefreshTokenInvalid
	}
	if !user.IsActive {
		s.metrics.RecordTokenRefresh(false)
		return nil, ErrUserInactive
	}

	// Persist the new credential first, then revoke the old one.
	pair, err := s.IssuePair(ctx, user, claims.Provider, cred.ClientID, "refresh_token")
	if err != nil {
		s.metrics.RecordTokenRefresh(false)
		return nil, err
	}

	if err := s.store.RevokeRefreshCredential(hash); err != nil {
		// The new pair is already out. Failing the whole request now would
		// leave the client holding a token we consider unissued, so log and
		// continue; the old credential still expires on its own.
		log.Printf("Failed to revoke rotated credential %s: %v", cred.ID, err)
	}

	s.metrics.RecordTokenRefresh(true)
	s.metrics.RecordTokenRevoked("rotation")
	s.audit.Log(ctx, AuditLogEntry{
		EventType:    models.EventTokenRefreshed,
		ActorUserID:  user.ID,
		ActorEmail:   user.Email,
		ResourceType: models.ResourceToken,
		ResourceID:   cred.ID,
		Action:       "refresh token rotated",
		Success:      true,
	})

	return pair, nil
}

// Logout revokes the presented refresh token. Idempotent: revoking an
// unknown or already-revoked token still succeeds, because the end state
// the caller asked for holds either way.
func (s *TokenService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}

	hash := util.SHA256Hex(refreshToken)
	cred, err := s.store.GetRefreshCredentialByHash(hash)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	if err := s.store.RevokeRefreshCredential(hash); err != nil {
		return err
	}

	s.metrics.RecordLogout()
	s.metrics.RecordTokenRevoked("logout")
	s.audit.Log(ctx, AuditLogEntry{
		EventType:    models.EventLogout,
		ActorUserID:  cred.UserID,
		ResourceType: models.ResourceToken,
		ResourceID:   cred.ID,
		Action:       "logout, refresh token revoked",
		Success:      true,
	})

	return nil
}

// RevokeAllForUser revokes every live refresh credential for a user.
func (s *TokenService) RevokeAllForUser(ctx context.Context, userID, reason string) (int64, error) {
	count, err := s.store.RevokeRefreshCredentialsByUserID(userID)
	if err != nil {
		return 0, err
	}

	if count > 0 {
		s.metrics.RecordTokenRevoked(reason)
		s.audit.Log(ctx, AuditLogEntry{
			EventType:    models.EventTokenRevoked,
			ActorUserID:  userID,
			ResourceType: models.ResourceToken,
			Action:       "all refresh credentials revoked",
			Details:      models.AuditDetails{"count": count, "reason": reason},
			Success:      true,
		})
	}

	return count, nil
}

// VerifyAccessToken validates a presented access token and returns its claims.
func (s *TokenService) VerifyAccessToken(tokenString string) (*token.Claims, error) {
	start := time.Now()
	claims, err := s.provider.VerifyKind(tokenString, token.KindAccess)
	if err != nil {
		result := "invalid"
		if errors.Is(err, token.ErrExpiredToken) {
			result = "expired"
		}
		s.metrics.RecordTokenValidation(result, time.Since(start))
		return nil, err
	}

	s.metrics.RecordTokenValidation("valid", time.Since(start))
	return claims, nil
}

// SSOVerifyResult is the verification outcome returned to service consumers.
type SSOVerifyResult struct {
	Valid     bool           `json:"valid"`
	Subject   string         `json:"sub,omitempty"`
	Email     string         `json:"email,omitempty"`
	Provider  string         `json:"provider,omitempty"`
	ExpiresAt int64          `json:"exp,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// SSOVerify checks an access token on behalf of another service. Invalid
// tokens produce a negative result, not an error: the endpoint answers the
// question "is this valid" rather than failing.
func (s *TokenService) SSOVerify(tokenString string) *SSOVerifyResult {
	claims, err := s.VerifyAccessToken(tokenString)
	if err != nil {
		reason := "invalid_token"
		if errors.Is(err, token.ErrExpiredToken) {
			reason = "expired_token"
		}
		return &SSOVerifyResult{Valid: false, Error: reason}
	}

	return &SSOVerifyResult{
		Valid:     true,
		Subject:   claims.Subject,
		Email:     claims.Email,
		Provider:  claims.Provider,
		ExpiresAt: claims.ExpiresAt.Unix(),
	}
}

// CleanupExpired removes refresh credentials past expiry. Run periodically.
func (s *TokenService) CleanupExpired() (int64, error) {
	return s.store.DeleteExpiredRefreshCredentials(time.Now())
}
