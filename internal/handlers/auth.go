package handlers

import (
	"errors"
	"net/http"

	"github.com/elixpo/elixpoaccounts/internal/middleware"
	"github.com/elixpo/elixpoaccounts/internal/services"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	users  *services.UserService
	tokens *services.TokenService
}

func NewAuthHandler(users *services.UserService, tokens *services.TokenService) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens}
}

type registerRequest struct {
	Email       string `json:"email" binding:"required"`
	Password    string `json:"password" binding:"required"`
	DisplayName string `json:"display_name"`
}

// Register godoc
//
//	@Summary		Register a new account
//	@Description	Create a local account with email and password
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		registerRequest	true	"Registration details"
//	@Success		201		{object}	object{id=string,email=string}
//	@Failure		400		{object}	object{error=string,error_description=string}	"weak_password, invalid_request"
//	@Failure		409		{object}	object{error=string,error_description=string}	"email_taken"
//	@Router			/auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "email and password are required",
		})
		return
	}

	user, err := h.users.Register(c, req.Email, req.Password, req.DisplayName)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrWeakPassword):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             "weak_password",
				"error_description": err.Error(),
			})
		case errors.Is(err, services.ErrEmailTaken):
			c.JSON(http.StatusConflict, gin.H{
				"error":             "email_taken",
				"error_description": "An account with this email already exists",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "server_error",
			})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":    user.ID,
		"email": user.Email,
	})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login godoc
//
//	@Summary		Log in with email and password
//	@Description	Authenticate and receive an access/refresh token pair. Also establishes a browser session for the consent flow.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		loginRequest	true	"Credentials"
//	@Success		200		{object}	object{access_token=string,refresh_token=string,token_type=string,expires_in=int}
//	@Failure		401		{object}	object{error=string,error_description=string}	"invalid_credentials"
//	@Failure		429		{object}	object{error=string,error_description=string}	"rate_limit_exceeded"
//	@Router			/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "email and password are required",
		})
		return
	}

	user, err := h.users.Authenticate(c, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUserInactive):
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":             "account_disabled",
				"error_description": "This account has been deactivated",
			})
		case errors.Is(err, services.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":             "invalid_credentials",
				"error_description": "Email or password is incorrect",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "server_error",
			})
		}
		return
	}

	pair, err := h.tokens.IssuePair(c, user, services.ProviderLocal, "", "password")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "server_error",
		})
		return
	}

	// Browser session for the /oauth/authorize consent surface.
	session := sessions.Default(c)
	session.Set(middleware.SessionUserID, user.ID)
	if err := session.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "server_error",
		})
		return
	}

	writeTokenPair(c, pair)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Refresh godoc
//
//	@Summary		Rotate a refresh token
//	@Description	Exchange a refresh token for a new access/refresh pair. The presented token is revoked; reusing it revokes all of the user's sessions.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		refreshRequest	true	"Refresh token"
//	@Success		200		{object}	object{access_token=string,refresh_token=string,token_type=string,expires_in=int}
//	@Failure		401		{object}	object{error=string,error_description=string}	"invalid_grant"
//	@Router			/auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "refresh_token is required",
		})
		return
	}

	pair, err := h.tokens.Refresh(c, req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrRefreshTokenInvalid),
			errors.Is(err, services.ErrRefreshTokenExpired),
			errors.Is(err, services.ErrRefreshTokenRevoked),
			errors.Is(err, services.ErrUserInactive):
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":             errInvalidGrant,
				"error_description": "Refresh token is invalid, expired, or revoked",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "server_error",
			})
		}
		return
	}

	writeTokenPair(c, pair)
}

// Logout godoc
//
//	@Summary		Log out
//	@Description	Revoke the presented refresh token and clear the browser session. Idempotent: unknown tokens still return 200.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		object{refresh_token=string}	false	"Refresh token to revoke"
//	@Success		200		{object}	object{status=string}
//	@Router			/auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	var req refreshRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.tokens.Logout(c, req.RefreshToken); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "server_error",
		})
		return
	}

	session := sessions.Default(c)
	session.Clear()
	_ = session.Save()

	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}

// Me godoc
//
//	@Summary		Current user profile
//	@Description	Return the authenticated user's profile and linked identities
//	@Tags			Auth
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	object{id=string,email=string,display_name=string,identities=[]object{provider=string,email=string}}
//	@Failure		401	{object}	object{error=string}
//	@Router			/auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
		return
	}

	identities, err := h.users.GetLinkedIdentities(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}

	linked := make([]gin.H, 0, len(identities))
	for _, id := range identities {
		linked = append(linked, gin.H{
			"provider":     id.Provider,
			"email":        id.ProviderEmail,
			"display_name": id.DisplayName,
			"last_used_at": id.LastUsedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"id":           user.ID,
		"email":        user.Email,
		"display_name": user.DisplayName,
		"avatar_url":   user.AvatarURL,
		"has_password": user.HasPassword(),
		"created_at":   user.CreatedAt,
		"identities":   linked,
	})
}
