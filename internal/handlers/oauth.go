package handlers

import (
	"errors"
	"net/http"

	"github.com/elixpo/elixpoaccounts/internal/middleware"
	"github.com/elixpo/elixpoaccounts/internal/services"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// OAuthHandler fronts the upstream login handshake: it opens provider
// redirects and completes callbacks into local token pairs.
type OAuthHandler struct {
	flow *services.FlowService
}

func NewOAuthHandler(flow *services.FlowService) *OAuthHandler {
	return &OAuthHandler{flow: flow}
}

// Providers godoc
//
//	@Summary		List login providers
//	@Description	Names of the upstream OAuth providers configured on this instance
//	@Tags			OAuth
//	@Produce		json
//	@Success		200	{object}	object{providers=[]string}
//	@Router			/auth/providers [get]
func (h *OAuthHandler) Providers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"providers": h.flow.Providers()})
}

// Begin godoc
//
//	@Summary		Start an upstream login
//	@Description	Open a handshake with the named provider and redirect to its authorization page. State, nonce, and a PKCE verifier are generated server-side.
//	@Tags			OAuth
//	@Produce		json
//	@Param			provider	path		string	true	"Provider name (google, github)"
//	@Success		302			{string}	string	"Redirect to the provider"
//	@Failure		404			{object}	object{error=string}	"unknown_provider"
//	@Router			/auth/{provider} [get]
func (h *OAuthHandler) Begin(c *gin.Context) {
	authURL, err := h.flow.Begin(c, c.Param("provider"))
	if err != nil {
		if errors.Is(err, services.ErrUnknownProvider) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown_provider"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}

	c.Redirect(http.StatusFound, authURL)
}

// Callback godoc
//
//	@Summary		Provider callback
//	@Description	Complete the handshake: consume the state, exchange the provider code, resolve the identity to a local user, and issue a token pair.
//	@Tags			OAuth
//	@Produce		json
//	@Param			provider	path		string	true	"Provider name"
//	@Param			code		query		string	true	"Provider authorization code"
//	@Param			state		query		string	true	"Handshake state"
//	@Success		200			{object}	object{access_token=string,refresh_token=string,token_type=string,expires_in=int}
//	@Failure		400			{object}	object{error=string,error_description=string}	"state_invalid, state_expired, provider_error"
//	@Failure		403			{object}	object{error=string,error_description=string}	"provider_mismatch, auto_register_disabled, account_disabled"
//	@Router			/auth/{provider}/callback [get]
func (h *OAuthHandler) Callback(c *gin.Context) {
	if errCode := c.Query("error"); errCode != "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "provider_error",
			"error_description": errCode,
		})
		return
	}

	state := c.Query("state")
	code := c.Query("code")
	if state == "" || code == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "code and state are required",
		})
		return
	}

	user, pair, err := h.flow.Complete(c, state, code)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrStateInvalid):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             "state_invalid",
				"error_description": "State is unknown or already used",
			})
		case errors.Is(err, services.ErrStateExpired):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             "state_expired",
				"error_description": "The login attempt took too long; start again",
			})
		case errors.Is(err, services.ErrProviderMismatch):
			c.JSON(http.StatusForbidden, gin.H{
				"error":             "provider_mismatch",
				"error_description": err.Error(),
			})
		case errors.Is(err, services.ErrAutoRegisterOff):
			c.JSON(http.StatusForbidden, gin.H{
				"error":             "auto_register_disabled",
				"error_description": "No account exists for this identity and self-registration is disabled",
			})
		case errors.Is(err, services.ErrUserInactive):
			c.JSON(http.StatusForbidden, gin.H{
				"error":             "account_disabled",
				"error_description": "This account has been deactivated",
			})
		default:
			c.JSON(http.StatusBadGateway, gin.H{
				"error":             "provider_error",
				"error_description": "Upstream exchange failed",
			})
		}
		return
	}

	session := sessions.Default(c)
	session.Set(middleware.SessionUserID, user.ID)
	_ = session.Save()

	writeTokenPair(c, pair)
}
