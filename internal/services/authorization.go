package services

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/elixpo/elixpoaccounts/internal/config"
	"github.com/elixpo/elixpoaccounts/internal/metrics"
	"github.com/elixpo/elixpoaccounts/internal/models"
	"github.com/elixpo/elixpoaccounts/internal/store"
	"github.com/elixpo/elixpoaccounts/internal/util"
)

var (
	ErrInvalidRedirectURI   = errors.New("redirect_uri is not registered for this client")
	ErrInvalidScope         = errors.New("requested scope exceeds the client's grant")
	ErrInvalidResponseType  = errors.New("response_type must be code")
	ErrPKCERequired         = errors.New("code_challenge is required")
	ErrInvalidChallengeType = errors.New("code_challenge_method must be S256")
	ErrCodeInvalid          = errors.New("authorization code is invalid")
	ErrCodeExpired          = errors.New("authorization code has expired")
	ErrCodeReplayed         = errors.New("authorization code has already been used")
	ErrPKCEMismatch         = errors.New("code_verifier does not match the challenge")
)

const authCodeBytes = 32

// AuthorizeRequest is a parsed and not-yet-validated /authorize query.
type AuthorizeRequest struct {
	ClientID            string
	RedirectURI         string
	ResponseType        string
	Scopes              []string
	State               string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// AuthorizationService is our own /authorize surface: it validates requests
// from registered clients, issues single-use codes at consent, and exchanges
// them for token pairs with PKCE enforcement.
type AuthorizationService struct {
	store   *store.Store
	clients *ClientService
	tokens  *TokenService
	config  *config.Config
	audit   *AuditService
	metrics metrics.Recorder
}

func NewAuthorizationService(
	s *store.Store,
	clients *ClientService,
	tokens *TokenService,
	cfg *config.Config,
	audit *AuditService,
	recorder metrics.Recorder,
) *AuthorizationService {
	return &AuthorizationService{
		store:   s,
		clients: clients,
		tokens:  tokens,
		config:  cfg,
		audit:   audit,
		metrics: recorder,
	}
}

// Validate checks an incoming authorize request against the client's
// registration. Redirect URIs match exactly; substring or prefix matches
// never pass.
func (s *AuthorizationService) Validate(req *AuthorizeRequest) (*models.OAuthClient, error) {
	client, err := s.clients.GetClient(req.ClientID)
	if err != nil {
		return nil, err
	}

	if !client.AllowsRedirectURI(req.RedirectURI) {
		return nil, ErrInvalidRedirectURI
	}

	if req.ResponseType != "code" {
		return nil, ErrInvalidResponseType
	}

	allowed := make(map[string]bool)
	for _, sc := range models.SplitScopes(client.Scopes) {
		allowed[sc] = true
	}
	for _, sc := range req.Scopes {
		if !allowed[sc] {
			return nil, ErrInvalidScope
		}
	}

	// Public clients must carry PKCE; confidential clients may
	if req.CodeChallenge == "" {
		if client.ClientType == models.ClientTypePublic || s.config.PKCERequired {
			return nil, ErrPKCERequired
		}
	} else if req.CodeChallengeMethod != "" && req.CodeChallengeMethod != "S256" {
		// plain is not accepted
		return nil, ErrInvalidChallengeType
	}

	return client, nil
}

// IssueCode mints a single-use authorization code at consent time, bound to
// the user who actually authenticated.
func (s *AuthorizationService) IssueCode(
	ctx context.Context,
	userID string,
	req *AuthorizeRequest,
) (string, error) {
	plaintext, err := util.RandomURLToken(authCodeBytes)
	if err != nil {
		return "", err
	}

	method := req.CodeChallengeMethod
	if req.CodeChallenge != "" && method == "" {
		method = "S256"
	}

	code := &models.AuthorizationCode{
		CodeHash:            util.SHA256Hex(plaintext),
		CodePrefix:          plaintext[:8],
		ClientID:            req.ClientID,
		UserID:              userID,
		RedirectURI:         req.RedirectURI,
		Scopes:              strings.Join(req.Scopes, " "),
		Nonce:               req.Nonce,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: method,
		ExpiresAt:           time.Now().Add(s.config.AuthCodeTTL),
	}
	if err := s.store.CreateAuthorizationCode(code); err != nil {
		return "", err
	}

	s.audit.Log(ctx, AuditLogEntry{
		EventType:    models.EventAuthorizationCodeGenerated,
		ActorUserID:  userID,
		ResourceType: models.ResourceAuthorization,
		ResourceID:   code.CodePrefix,
		Action:       "authorization code issued",
		Details:      models.AuditDetails{"client_id": req.ClientID},
		Success:      true,
	})

	return plaintext, nil
}

// Exchange trades an authorization code for a token pair. The used_at flip
// is atomic, so a replayed code loses the race and every credential issued
// from the original exchange gets revoked.
func (s *AuthorizationService) Exchange(
	ctx context.Context,
	clientID, clientSecret, plainCode, redirectURI, codeVerifier string,
) (*TokenPair, error) {
	client, err := s.clients.Authenticate(clientID, clientSecret)
	if err != nil {
		s.metrics.RecordCodeExchange("invalid")
		return nil, err
	}

	code, err := s.store.GetAuthorizationCodeByHash(util.SHA256Hex(plainCode))
	if err != nil {
		s.metrics.RecordCodeExchange("invalid")
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, ErrCodeInvalid
		}
		return nil, err
	}

	if code.ClientID != client.ClientID {
		s.metrics.RecordCodeExchange("invalid")
		return nil, ErrCodeInvalid
	}
	if code.RedirectURI != redirectURI {
		s.metrics.RecordCodeExchange("invalid")
		return nil, ErrInvalidRedirectURI
	}
	if code.IsExpired() {
		s.metrics.RecordCodeExchange("expired")
		return nil, ErrCodeExpired
	}

	if code.CodeChallenge != "" {
		if !verifyPKCE(code.CodeChallenge, codeVerifier) {
			s.metrics.RecordCodeExchange("invalid")
			return nil, ErrPKCEMismatch
		}
	}

	if err := s.store.MarkAuthorizationCodeUsed(code.CodeHash); err != nil {
		if errors.Is(err, store.ErrAuthCodeAlreadyUsed) {
			// Replay. Revoke what the first exchange issued.
			if _, revokeErr := s.store.RevokeRefreshCredentialsByUserID(code.UserID); revokeErr == nil {
				s.metrics.RecordTokenRevoked("reuse")
			}
			s.metrics.RecordCodeExchange("replayed")
			s.audit.Log(ctx, AuditLogEntry{
				EventType:    models.EventAuthorizationDenied,
				Severity:     models.SeverityCritical,
				ActorUserID:  code.UserID,
				ResourceType: models.ResourceAuthorization,
				ResourceID:   code.CodePrefix,
				Action:       "authorization code replayed, credentials revoked",
				Details:      models.AuditDetails{"client_id": clientID},
				Success:      false,
			})
			return nil, ErrCodeReplayed
		}
		return nil, err
	}

	user, err := s.store.GetUserByID(code.UserID)
	if err != nil {
		s.metrics.RecordCodeExchange("invalid")
		return nil, ErrCodeInvalid
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}

	pair, err := s.tokens.IssuePair(ctx, user, ProviderLocal, clientID, "authorization_code")
	if err != nil {
		return nil, err
	}

	s.metrics.RecordCodeExchange("success")
	s.audit.Log(ctx, AuditLogEntry{
		EventType:    models.EventAuthorizationCodeExchanged,
		ActorUserID:  user.ID,
		ResourceType: models.ResourceAuthorization,
		ResourceID:   code.CodePrefix,
		Action:       "authorization code exchanged",
		Details:      models.AuditDetails{"client_id": clientID},
		Success:      true,
	})

	return pair, nil
}

// verifyPKCE recomputes the S256 challenge from the presented verifier.
func verifyPKCE(challenge, verifier string) bool {
	if verifier == "" {
		return false
	}
	sum := sha256.Sum256([]byte(verifier))
	computed := base64.RawURLEncoding.EncodeToString(sum[:])
	return util.ConstantTimeEquals(computed, challenge)
}

// CleanupExpired removes lapsed authorization codes.
func (s *AuthorizationService) CleanupExpired() (int64, error) {
	return s.store.DeleteExpiredAuthorizationCodes(time.Now())
}
