package handlers

import (
	"errors"
	"net/http"

	"github.com/elixpo/elixpoaccounts/internal/middleware"
	"github.com/elixpo/elixpoaccounts/internal/models"
	"github.com/elixpo/elixpoaccounts/internal/services"

	"github.com/gin-gonic/gin"
)

// ClientHandler is the admin surface for OAuth client registration. Routes
// sit behind clients:read / clients:write permissions.
type ClientHandler struct {
	clients *services.ClientService
}

func NewClientHandler(clients *services.ClientService) *ClientHandler {
	return &ClientHandler{clients: clients}
}

type registerClientRequest struct {
	Name         string   `json:"name" binding:"required"`
	Description  string   `json:"description"`
	ClientType   string   `json:"client_type" binding:"required"`
	RedirectURIs []string `json:"redirect_uris" binding:"required"`
	Scopes       []string `json:"scopes"`
}

// Register godoc
//
//	@Summary		Register an OAuth client
//	@Description	Create a client application. Confidential clients receive a generated secret, shown exactly once.
//	@Tags			Clients
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		registerClientRequest	true	"Client details"
//	@Success		201		{object}	object{client_id=string,client_secret=string}
//	@Failure		400		{object}	object{error=string,error_description=string}	"invalid_client_type, no_redirect_uris, unknown_scope"
//	@Router			/admin/clients [post]
func (h *ClientHandler) Register(c *gin.Context) {
	actorID := c.GetString(middleware.ContextUserID)

	var req registerClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "name, client_type, and redirect_uris are required",
		})
		return
	}

	scopes := make([]models.Scope, 0, len(req.Scopes))
	for _, s := range req.Scopes {
		scopes = append(scopes, models.Scope(s))
	}

	registered, err := h.clients.Register(
		c,
		actorID,
		req.Name,
		req.Description,
		req.ClientType,
		req.RedirectURIs,
		scopes,
	)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidClientType):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             "invalid_client_type",
				"error_description": err.Error(),
			})
		case errors.Is(err, services.ErrNoRedirectURIs):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             "no_redirect_uris",
				"error_description": err.Error(),
			})
		case errors.Is(err, services.ErrUnknownScope):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             "unknown_scope",
				"error_description": err.Error(),
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		}
		return
	}

	resp := gin.H{
		"client_id":     registered.Client.ClientID,
		"client_name":   registered.Client.ClientName,
		"client_type":   registered.Client.ClientType,
		"redirect_uris": registered.Client.RedirectURIList(),
		"scopes":        registered.Client.Scopes,
	}
	if registered.ClientSecret != "" {
		resp["client_secret"] = registered.ClientSecret
	}
	c.JSON(http.StatusCreated, resp)
}

// List godoc
//
//	@Summary		List OAuth clients
//	@Tags			Clients
//	@Produce		json
//	@Security		BearerAuth
//	@Param			page		query		int	false	"Page number"
//	@Param			page_size	query		int	false	"Page size (max 100)"
//	@Success		200			{object}	object{clients=[]object{client_id=string,client_name=string},total=int}
//	@Router			/admin/clients [get]
func (h *ClientHandler) List(c *gin.Context) {
	params := paginationFromQuery(c)

	clients, pagination, err := h.clients.List(params)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}

	out := make([]gin.H, 0, len(clients))
	for _, cl := range clients {
		out = append(out, gin.H{
			"client_id":     cl.ClientID,
			"client_name":   cl.ClientName,
			"description":   cl.Description,
			"client_type":   cl.ClientType,
			"redirect_uris": cl.RedirectURIList(),
			"scopes":        cl.Scopes,
			"is_active":     cl.IsActive,
			"created_at":    cl.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"clients": out,
		"total":   pagination.Total,
		"page":    pagination.CurrentPage,
	})
}

// Deactivate godoc
//
//	@Summary		Deactivate an OAuth client
//	@Description	Deactivated clients fail authentication and authorization immediately.
//	@Tags			Clients
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Client ID"
//	@Success		200	{object}	object{status=string}
//	@Failure		404	{object}	object{error=string}	"not_found"
//	@Router			/admin/clients/{id}/deactivate [post]
func (h *ClientHandler) Deactivate(c *gin.Context) {
	actorID := c.GetString(middleware.ContextUserID)

	if err := h.clients.Deactivate(c, actorID, c.Param("id")); err != nil {
		if errors.Is(err, services.ErrClientNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deactivated"})
}
