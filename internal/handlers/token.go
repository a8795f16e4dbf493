package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/elixpo/elixpoaccounts/internal/config"
	"github.com/elixpo/elixpoaccounts/internal/services"

	"github.com/gin-gonic/gin"
)

const (
	// https://datatracker.ietf.org/doc/html/rfc6749#section-4.1
	GrantTypeAuthorizationCode = "authorization_code"
	// https://datatracker.ietf.org/doc/html/rfc6749#section-6
	GrantTypeRefreshToken = "refresh_token"
	// https://datatracker.ietf.org/doc/html/rfc6749#section-4.4
	GrantTypeClientCredentials = "client_credentials"

	errInvalidGrant = "invalid_grant"
)

type TokenHandler struct {
	tokens        *services.TokenService
	authorization *services.AuthorizationService
	clients       *services.ClientService
	config        *config.Config
}

func NewTokenHandler(
	tokens *services.TokenService,
	authorization *services.AuthorizationService,
	clients *services.ClientService,
	cfg *config.Config,
) *TokenHandler {
	return &TokenHandler{
		tokens:        tokens,
		authorization: authorization,
		clients:       clients,
		config:        cfg,
	}
}

// Token godoc
//
//	@Summary		Request access token
//	@Description	Exchange an authorization code, refresh token, or client credentials for tokens (RFC 6749)
//	@Tags			OAuth
//	@Accept			x-www-form-urlencoded
//	@Produce		json
//	@Param			grant_type		formData	string																true	"Grant type: 'authorization_code', 'refresh_token', or 'client_credentials'"
//	@Param			code			formData	string																false	"Authorization code (authorization_code grant)"
//	@Param			redirect_uri	formData	string																false	"Redirect URI used at /authorize (authorization_code grant)"
//	@Param			code_verifier	formData	string																false	"PKCE code verifier (authorization_code grant)"
//	@Param			refresh_token	formData	string																false	"Refresh token (refresh_token grant)"
//	@Param			client_id		formData	string																false	"OAuth client ID (or HTTP Basic Auth)"
//	@Param			client_secret	formData	string																false	"OAuth client secret (or HTTP Basic Auth)"
//	@Success		200				{object}	object{access_token=string,refresh_token=string,token_type=string,expires_in=int}	"Tokens issued"
//	@Failure		400				{object}	object{error=string,error_description=string}										"Invalid request (unsupported_grant_type, invalid_request, invalid_grant)"
//	@Failure		401				{object}	object{error=string,error_description=string}										"Client authentication failed (invalid_client)"
//	@Router			/oauth/token [post]
func (h *TokenHandler) Token(c *gin.Context) {
	grantType := c.PostForm("grant_type")

	switch grantType {
	case GrantTypeAuthorizationCode:
		h.handleAuthorizationCodeGrant(c)
	case GrantTypeRefreshToken:
		h.handleRefreshTokenGrant(c)
	case GrantTypeClientCredentials:
		h.handleClientCredentialsGrant(c)
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "unsupported_grant_type",
			"error_description": "Supported grant types: authorization_code, refresh_token, client_credentials",
		})
	}
}

// clientCredentials reads client authentication from HTTP Basic Auth
// (preferred per RFC 6749 §2.3.1) or from the form body.
func clientCredentials(c *gin.Context) (clientID, clientSecret string) {
	if id, secret, ok := c.Request.BasicAuth(); ok {
		return id, secret
	}
	return c.PostForm("client_id"), c.PostForm("client_secret")
}

// handleAuthorizationCodeGrant exchanges a single-use code for a token pair
// (RFC 6749 §4.1.3). PKCE verification happens inside the exchange.
func (h *TokenHandler) handleAuthorizationCodeGrant(c *gin.Context) {
	code := c.PostForm("code")
	redirectURI := c.PostForm("redirect_uri")
	codeVerifier := c.PostForm("code_verifier")
	clientID, clientSecret := clientCredentials(c)

	if code == "" || clientID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "code and client_id are required",
		})
		return
	}

	pair, err := h.authorization.Exchange(
		c.Request.Context(),
		clientID,
		clientSecret,
		code,
		redirectURI,
		codeVerifier,
	)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrClientNotFound),
			errors.Is(err, services.ErrClientInactive),
			errors.Is(err, services.ErrInvalidCredentials):
			c.Header("WWW-Authenticate", `Basic realm="elixpoaccounts"`)
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":             "invalid_client",
				"error_description": "Client authentication failed",
			})
		case errors.Is(err, services.ErrCodeInvalid),
			errors.Is(err, services.ErrCodeExpired),
			errors.Is(err, services.ErrCodeReplayed),
			errors.Is(err, services.ErrInvalidRedirectURI):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             errInvalidGrant,
				"error_description": "Authorization code is invalid, expired, or already used",
			})
		case errors.Is(err, services.ErrPKCEMismatch):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             errInvalidGrant,
				"error_description": "PKCE verification failed",
			})
		case errors.Is(err, services.ErrUserInactive):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             errInvalidGrant,
				"error_description": "Resource owner account is deactivated",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":             "server_error",
				"error_description": "Token exchange failed",
			})
		}
		return
	}

	writeTokenPair(c, pair)
}

// handleRefreshTokenGrant rotates a refresh token (RFC 6749 §6). The old
// token is revoked as part of the rotation; presenting it again revokes the
// whole family.
func (h *TokenHandler) handleRefreshTokenGrant(c *gin.Context) {
	refreshToken := c.PostForm("refresh_token")
	if refreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "refresh_token is required",
		})
		return
	}

	pair, err := h.tokens.Refresh(c.Request.Context(), refreshToken)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrRefreshTokenInvalid),
			errors.Is(err, services.ErrRefreshTokenExpired),
			errors.Is(err, services.ErrRefreshTokenRevoked):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             errInvalidGrant,
				"error_description": "Refresh token is invalid, expired, or revoked",
			})
		case errors.Is(err, services.ErrUserInactive):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             errInvalidGrant,
				"error_description": "Account is deactivated",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":             "server_error",
				"error_description": "Token refresh failed",
			})
		}
		return
	}

	writeTokenPair(c, pair)
}

// handleClientCredentialsGrant issues a machine token for a confidential
// client (RFC 6749 §4.4). No refresh token is issued.
func (h *TokenHandler) handleClientCredentialsGrant(c *gin.Context) {
	clientID, clientSecret := clientCredentials(c)
	if clientID == "" || clientSecret == "" {
		c.Header("WWW-Authenticate", `Basic realm="elixpoaccounts"`)
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "invalid_client",
			"error_description": "Client authentication required: use HTTP Basic Auth or provide client_id and client_secret in the request body",
		})
		return
	}

	client, err := h.clients.Authenticate(clientID, clientSecret)
	if err != nil {
		c.Header("WWW-Authenticate", `Basic realm="elixpoaccounts"`)
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "invalid_client",
			"error_description": "Client authentication failed",
		})
		return
	}

	pair, err := h.tokens.IssueClientCredentials(c.Request.Context(), client)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":             "server_error",
			"error_description": "Token issuance failed",
		})
		return
	}

	writeTokenPair(c, pair)
}

// TokenInfo godoc
//
//	@Summary		Validate access token
//	@Description	Verify JWT token validity and retrieve token information (RFC 7662 style introspection)
//	@Tags			OAuth
//	@Produce		json
//	@Security		BearerAuth
//	@Param			Authorization	header		string															true	"Bearer token"
//	@Success		200				{object}	object{active=bool,sub=string,email=string,provider=string,exp=int,iss=string}	"Token is valid"
//	@Failure		401				{object}	object{error=string}											"Token is invalid or expired (missing_token, invalid_token)"
//	@Router			/oauth/tokeninfo [get]
func (h *TokenHandler) TokenInfo(c *gin.Context) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "missing_token",
		})
		return
	}

	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	claims, err := h.tokens.VerifyAccessToken(tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "invalid_token",
			"error_description": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"active":   true,
		"sub":      claims.Subject,
		"email":    claims.Email,
		"provider": claims.Provider,
		"exp":      claims.ExpiresAt.Unix(),
		"iss":      h.config.BaseURL,
	})
}

// Revoke godoc
//
//	@Summary		Revoke refresh token
//	@Description	Revoke a refresh token (RFC 7009). Returns 200 for both successful revocation and invalid tokens to prevent token scanning.
//	@Tags			OAuth
//	@Accept			x-www-form-urlencoded
//	@Produce		json
//	@Param			token	formData	string											true	"Refresh token to revoke"
//	@Success		200		{string}	string											"Token revoked (or was already invalid)"
//	@Failure		400		{object}	object{error=string,error_description=string}	"token parameter missing"
//	@Router			/oauth/revoke [post]
func (h *TokenHandler) Revoke(c *gin.Context) {
	token := c.PostForm("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "token parameter is required",
		})
		return
	}

	// RFC 7009 §2.2: respond 200 even for invalid tokens to prevent
	// token scanning.
	_ = h.tokens.Logout(c.Request.Context(), token)
	c.Status(http.StatusOK)
}

func writeTokenPair(c *gin.Context, pair *services.TokenPair) {
	resp := gin.H{
		"access_token": pair.AccessToken,
		"token_type":   pair.TokenType,
		"expires_in":   pair.ExpiresIn,
	}
	if pair.RefreshToken != "" {
		resp["refresh_token"] = pair.RefreshToken
	}
	c.JSON(http.StatusOK, resp)
}
