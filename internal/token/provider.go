package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/elixpo/elixpoaccounts/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Provider signs and verifies JWTs. Signing uses Ed25519 in production
// deployments and HMAC-SHA256 only in non-production mode; verification is
// pinned to the configured algorithm so a token signed under the other scheme
// never verifies.
type Provider struct {
	config *config.Config
}

// NewProvider creates a token provider for the configured signing mode.
func NewProvider(cfg *config.Config) *Provider {
	return &Provider{config: cfg}
}

// sign creates a signed JWT carrying the identity claims and kind discriminator.
func (p *Provider) sign(subject, email, provider, kind string, ttl time.Duration) (*Result, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)

	claims := jwt.MapClaims{
		"sub":  subject,
		"type": kind,
		"iat":  now.Unix(),
		"exp":  expiresAt.Unix(),
		"iss":  p.config.BaseURL,
		"jti":  uuid.New().String(),
	}
	if email != "" {
		claims["email"] = email
	}
	if provider != "" {
		claims["provider"] = provider
	}

	var tokenString string
	var err error

	switch p.config.SigningMode {
	case config.SigningModeEd25519:
		t := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
		tokenString, err = t.SignedString(p.config.Ed25519PrivateKey)
	default:
		t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		tokenString, err = t.SignedString([]byte(p.config.JWTSecret))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenGeneration, err)
	}

	return &Result{
		TokenString: tokenString,
		TokenType:   TokenTypeBearer,
		Kind:        kind,
		ExpiresAt:   expiresAt,
		Claims:      claims,
	}, nil
}

// IssueAccessToken signs a short-lived access token.
func (p *Provider) IssueAccessToken(subject, email, provider string) (*Result, error) {
	return p.sign(subject, email, provider, KindAccess, p.config.AccessTokenTTL)
}

// IssueRefreshToken signs a long-lived refresh token.
func (p *Provider) IssueRefreshToken(subject, email, provider string) (*Result, error) {
	return p.sign(subject, email, provider, KindRefresh, p.config.RefreshTokenTTL)
}

// keyFunc returns the verifying key, rejecting any algorithm other than the
// configured one.
func (p *Provider) keyFunc(t *jwt.Token) (any, error) {
	switch p.config.SigningMode {
	case config.SigningModeEd25519:
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return p.config.Ed25519PublicKey, nil
	default:
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(p.config.JWTSecret), nil
	}
}

// Verify checks signature, expiry, and algorithm, then extracts claims.
// Any failure is an authentication failure returned as an error, never a panic.
func (p *Provider) Verify(tokenString string) (*Claims, error) {
	parsed, err := jwt.Parse(tokenString, p.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !parsed.Valid {
		return nil, ErrInvalidToken
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	subject, _ := mapClaims["sub"].(string)
	email, _ := mapClaims["email"].(string)
	provider, _ := mapClaims["provider"].(string)
	kind, _ := mapClaims["type"].(string)
	tokenID, _ := mapClaims["jti"].(string)

	if subject == "" || (kind != KindAccess && kind != KindRefresh) {
		return nil, ErrInvalidToken
	}

	exp, ok := mapClaims["exp"].(float64)
	if !ok {
		return nil, ErrInvalidToken
	}
	iat, _ := mapClaims["iat"].(float64)

	return &Claims{
		Subject:   subject,
		Email:     email,
		Provider:  provider,
		Kind:      kind,
		TokenID:   tokenID,
		IssuedAt:  time.Unix(int64(iat), 0),
		ExpiresAt: time.Unix(int64(exp), 0),
		Raw:       mapClaims,
	}, nil
}

// VerifyKind verifies the token and additionally enforces the expected kind.
func (p *Provider) VerifyKind(tokenString, kind string) (*Claims, error) {
	claims, err := p.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Kind != kind {
		return nil, ErrWrongTokenKind
	}
	return claims, nil
}
