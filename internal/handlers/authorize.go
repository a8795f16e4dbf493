package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/elixpo/elixpoaccounts/internal/middleware"
	"github.com/elixpo/elixpoaccounts/internal/models"
	"github.com/elixpo/elixpoaccounts/internal/services"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

type AuthorizeHandler struct {
	authorization *services.AuthorizationService
}

func NewAuthorizeHandler(authorization *services.AuthorizationService) *AuthorizeHandler {
	return &AuthorizeHandler{authorization: authorization}
}

func authorizeRequestFromValues(get func(string) string) *services.AuthorizeRequest {
	return &services.AuthorizeRequest{
		ClientID:            get("client_id"),
		RedirectURI:         get("redirect_uri"),
		ResponseType:        get("response_type"),
		Scopes:              models.SplitScopes(get("scope")),
		State:               get("state"),
		Nonce:               get("nonce"),
		CodeChallenge:       get("code_challenge"),
		CodeChallengeMethod: get("code_challenge_method"),
	}
}

// redirectWithError sends the user agent back to the client with an RFC 6749
// error code. Only called after the redirect URI has been validated against
// the client's registration.
func redirectWithError(c *gin.Context, redirectURI, errCode, state string) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errCode})
		return
	}
	q := u.Query()
	q.Set("error", errCode)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	c.Redirect(http.StatusFound, u.String())
}

// validationErrorCode maps a validation failure to its RFC 6749 error code.
func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, services.ErrInvalidScope):
		return "invalid_scope"
	case errors.Is(err, services.ErrInvalidResponseType):
		return "unsupported_response_type"
	case errors.Is(err, services.ErrPKCERequired),
		errors.Is(err, services.ErrInvalidChallengeType):
		return "invalid_request"
	default:
		return "server_error"
	}
}

// Authorize godoc
//
//	@Summary		Authorization endpoint
//	@Description	Validate an authorization request and present the consent decision (RFC 6749 §4.1.1). Requires a browser session.
//	@Tags			OAuth
//	@Produce		json
//	@Security		SessionAuth
//	@Param			client_id				query		string	true	"Registered client ID"
//	@Param			redirect_uri			query		string	true	"Exact registered redirect URI"
//	@Param			response_type			query		string	true	"Must be 'code'"
//	@Param			scope					query		string	false	"Space-separated scopes"
//	@Param			state					query		string	false	"Opaque client state, echoed on redirect"
//	@Param			code_challenge			query		string	false	"PKCE challenge (required for public clients)"
//	@Param			code_challenge_method	query		string	false	"Must be 'S256' when a challenge is sent"
//	@Success		200						{object}	object{client_name=string,scopes=[]string}	"Consent required"
//	@Failure		400						{object}	object{error=string,error_description=string}
//	@Router			/oauth/authorize [get]
func (h *AuthorizeHandler) Authorize(c *gin.Context) {
	req := authorizeRequestFromValues(c.Query)

	client, err := h.authorization.Validate(req)
	if err != nil {
		// An unknown client or unregistered redirect URI must never be
		// redirected to (RFC 6749 §4.1.2.1).
		if errors.Is(err, services.ErrClientNotFound) ||
			errors.Is(err, services.ErrClientInactive) ||
			errors.Is(err, services.ErrInvalidRedirectURI) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             "invalid_request",
				"error_description": err.Error(),
			})
			return
		}
		redirectWithError(c, req.RedirectURI, validationErrorCode(err), req.State)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"client_id":    client.ClientID,
		"client_name":  client.ClientName,
		"description":  client.Description,
		"scopes":       req.Scopes,
		"redirect_uri": req.RedirectURI,
		"state":        req.State,
	})
}

// Consent godoc
//
//	@Summary		Consent decision
//	@Description	Approve or deny the pending authorization request. Approval issues a single-use code bound to the request's PKCE challenge; denial redirects with error=access_denied.
//	@Tags			OAuth
//	@Accept			x-www-form-urlencoded
//	@Produce		json
//	@Security		SessionAuth
//	@Param			client_id				formData	string	true	"Registered client ID"
//	@Param			redirect_uri			formData	string	true	"Exact registered redirect URI"
//	@Param			response_type			formData	string	true	"Must be 'code'"
//	@Param			approve					formData	string	true	"'true' to approve"
//	@Success		302						{string}	string	"Redirect to client with code and state, or error=access_denied"
//	@Failure		400						{object}	object{error=string,error_description=string}
//	@Router			/oauth/authorize [post]
func (h *AuthorizeHandler) Consent(c *gin.Context) {
	req := authorizeRequestFromValues(c.PostForm)

	if _, err := h.authorization.Validate(req); err != nil {
		if errors.Is(err, services.ErrClientNotFound) ||
			errors.Is(err, services.ErrClientInactive) ||
			errors.Is(err, services.ErrInvalidRedirectURI) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             "invalid_request",
				"error_description": err.Error(),
			})
			return
		}
		redirectWithError(c, req.RedirectURI, validationErrorCode(err), req.State)
		return
	}

	session := sessions.Default(c)
	userID, _ := session.Get(middleware.SessionUserID).(string)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "login_required"})
		return
	}

	if c.PostForm("approve") != "true" {
		redirectWithError(c, req.RedirectURI, "access_denied", req.State)
		return
	}

	code, err := h.authorization.IssueCode(c, userID, req)
	if err != nil {
		redirectWithError(c, req.RedirectURI, "server_error", req.State)
		return
	}

	u, parseErr := url.Parse(req.RedirectURI)
	if parseErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	q := u.Query()
	q.Set("code", code)
	if req.State != "" {
		q.Set("state", req.State)
	}
	u.RawQuery = q.Encode()

	c.Redirect(http.StatusFound, u.String())
}
