package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token kind discriminators carried in the "type" claim. The kind is
// immutable and checked on every verification.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

// TokenTypeBearer is the OAuth token_type for all issued tokens.
const TokenTypeBearer = "Bearer"

// Result is the output of signing one token.
type Result struct {
	TokenString string
	TokenType   string
	Kind        string
	ExpiresAt   time.Time
	Claims      jwt.MapClaims
}

// Claims is the verified content of a presented token.
type Claims struct {
	Subject   string
	Email     string
	Provider  string
	Kind      string // "access" or "refresh"
	TokenID   string // jti
	IssuedAt  time.Time
	ExpiresAt time.Time
	Raw       jwt.MapClaims
}
