package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/elixpo/elixpoaccounts/internal/middleware"
	"github.com/elixpo/elixpoaccounts/internal/models"
	"github.com/elixpo/elixpoaccounts/internal/services"
	"github.com/elixpo/elixpoaccounts/internal/store"

	"github.com/gin-gonic/gin"
)

type APIKeyHandler struct {
	apiKeys *services.APIKeyService
	rbac    *services.RBACService
}

func NewAPIKeyHandler(apiKeys *services.APIKeyService, rbac *services.RBACService) *APIKeyHandler {
	return &APIKeyHandler{apiKeys: apiKeys, rbac: rbac}
}

type createAPIKeyRequest struct {
	Name            string   `json:"name" binding:"required"`
	Scopes          []string `json:"scopes" binding:"required"`
	RateLimitMax    int      `json:"rate_limit_max"`
	RateLimitWindow int      `json:"rate_limit_window"` // seconds
	ExpiresAt       *string  `json:"expires_at"`        // RFC 3339
}

// Create godoc
//
//	@Summary		Create an API key
//	@Description	Mint a new API key for the authenticated user. The plaintext is returned exactly once.
//	@Tags			APIKeys
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		createAPIKeyRequest	true	"Key details"
//	@Success		201		{object}	object{id=string,key=string,prefix=string,scopes=string}
//	@Failure		400		{object}	object{error=string,error_description=string}	"unknown_scope, invalid_request"
//	@Router			/apikeys [post]
func (h *APIKeyHandler) Create(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)

	var req createAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "name and scopes are required",
		})
		return
	}

	var expiresAt *time.Time
	if req.ExpiresAt != nil {
		t, err := time.Parse(time.RFC3339, *req.ExpiresAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             "invalid_request",
				"error_description": "expires_at must be RFC 3339",
			})
			return
		}
		expiresAt = &t
	}

	scopes := make([]models.Scope, 0, len(req.Scopes))
	for _, s := range req.Scopes {
		scopes = append(scopes, models.Scope(s))
	}

	created, err := h.apiKeys.Create(
		c,
		userID,
		req.Name,
		scopes,
		req.RateLimitMax,
		req.RateLimitWindow,
		expiresAt,
	)
	if err != nil {
		if errors.Is(err, services.ErrUnknownScope) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             "unknown_scope",
				"error_description": err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":                created.Key.ID,
		"key":               created.Plaintext,
		"prefix":            created.Key.KeyPrefix,
		"scopes":            created.Key.Scopes,
		"rate_limit_max":    created.Key.RateLimitMax,
		"rate_limit_window": created.Key.RateLimitWindow,
		"expires_at":        created.Key.ExpiresAt,
	})
}

// List godoc
//
//	@Summary		List own API keys
//	@Tags			APIKeys
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	object{keys=[]object{id=string,name=string,prefix=string}}
//	@Router			/apikeys [get]
func (h *APIKeyHandler) List(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)

	keys, err := h.apiKeys.ListForUser(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}

	out := make([]gin.H, 0, len(keys))
	for _, k := range keys {
		out = append(out, gin.H{
			"id":                k.ID,
			"name":              k.Name,
			"prefix":            k.KeyPrefix,
			"scopes":            k.Scopes,
			"rate_limit_max":    k.RateLimitMax,
			"rate_limit_window": k.RateLimitWindow,
			"revoked":           k.Revoked,
			"expires_at":        k.ExpiresAt,
			"last_used_at":      k.LastUsedAt,
			"created_at":        k.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"keys": out})
}

// Revoke godoc
//
//	@Summary		Revoke an API key
//	@Description	Revoke a key you own. Holders of apikeys:write may revoke any key.
//	@Tags			APIKeys
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Key ID"
//	@Success		200	{object}	object{status=string}
//	@Failure		403	{object}	object{error=string}	"not_owner"
//	@Failure		404	{object}	object{error=string}	"not_found"
//	@Router			/apikeys/{id} [delete]
func (h *APIKeyHandler) Revoke(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)
	keyID := c.Param("id")

	isAdmin, err := h.rbac.HasPermission(c, userID, models.PermAPIKeysWrite)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}

	if err := h.apiKeys.Revoke(c, userID, keyID, isAdmin); err != nil {
		switch {
		case errors.Is(err, services.ErrKeyNotOwned):
			c.JSON(http.StatusForbidden, gin.H{"error": "not_owner"})
		case errors.Is(err, services.ErrAPIKeyInvalid):
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "revoked"})
}

// Usage godoc
//
//	@Summary		API key usage trail
//	@Tags			APIKeys
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id			path		string	true	"Key ID"
//	@Param			page		query		int		false	"Page number"
//	@Param			page_size	query		int		false	"Page size (max 100)"
//	@Success		200			{object}	object{usage=[]object{endpoint=string,method=string,status=int},total=int}
//	@Failure		403			{object}	object{error=string}	"not_owner"
//	@Router			/apikeys/{id}/usage [get]
func (h *APIKeyHandler) Usage(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)
	keyID := c.Param("id")

	key, err := h.apiKeys.Get(keyID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if key.UserID != userID {
		isAdmin, permErr := h.rbac.HasPermission(c, userID, models.PermAPIKeysRead)
		if permErr != nil || !isAdmin {
			c.JSON(http.StatusForbidden, gin.H{"error": "not_owner"})
			return
		}
	}

	params := paginationFromQuery(c)
	logs, pagination, err := h.apiKeys.Usage(keyID, params)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}

	out := make([]gin.H, 0, len(logs))
	for _, l := range logs {
		out = append(out, gin.H{
			"endpoint":   l.Endpoint,
			"method":     l.Method,
			"status":     l.Status,
			"ip":         l.ActorIP,
			"created_at": l.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"usage": out,
		"total": pagination.Total,
		"page":  pagination.CurrentPage,
	})
}

func paginationFromQuery(c *gin.Context) store.PaginationParams {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return store.PaginationParams{
		Page:     page,
		PageSize: pageSize,
		Search:   c.Query("search"),
	}
}
