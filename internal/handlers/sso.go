package handlers

import (
	"net/http"

	"github.com/elixpo/elixpoaccounts/internal/services"

	"github.com/gin-gonic/gin"
)

// SSOHandler answers token verification questions for sibling services. The
// route sits behind API key authentication with the sso:verify scope.
type SSOHandler struct {
	tokens *services.TokenService
}

func NewSSOHandler(tokens *services.TokenService) *SSOHandler {
	return &SSOHandler{tokens: tokens}
}

type ssoVerifyRequest struct {
	Token string `json:"token" binding:"required"`
}

// Verify godoc
//
//	@Summary		Verify an access token
//	@Description	Check a token on behalf of another service. Invalid tokens produce a negative result with HTTP 200, not an error status.
//	@Tags			SSO
//	@Accept			json
//	@Produce		json
//	@Security		APIKeyAuth
//	@Param			request	body		ssoVerifyRequest	true	"Token to verify"
//	@Success		200		{object}	services.SSOVerifyResult
//	@Failure		400		{object}	object{error=string,error_description=string}	"token field missing"
//	@Router			/sso/verify [post]
func (h *SSOHandler) Verify(c *gin.Context) {
	token := c.Query("token")
	if c.Request.Method == http.MethodPost {
		var req ssoVerifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             "invalid_request",
				"error_description": "token is required",
			})
			return
		}
		token = req.Token
	}
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "token is required",
		})
		return
	}

	c.JSON(http.StatusOK, h.tokens.SSOVerify(token))
}
