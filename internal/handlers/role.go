package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/elixpo/elixpoaccounts/internal/middleware"
	"github.com/elixpo/elixpoaccounts/internal/models"
	"github.com/elixpo/elixpoaccounts/internal/services"

	"github.com/gin-gonic/gin"
)

// RoleHandler is the RBAC admin surface. Routes sit behind roles:read /
// roles:write permissions.
type RoleHandler struct {
	rbac *services.RBACService
}

func NewRoleHandler(rbac *services.RBACService) *RoleHandler {
	return &RoleHandler{rbac: rbac}
}

func roleResponse(role *models.Role) gin.H {
	perms := make([]string, 0, len(role.Permissions))
	for _, p := range role.Permissions {
		perms = append(perms, p.Name)
	}
	return gin.H{
		"id":          role.ID,
		"name":        role.Name,
		"description": role.Description,
		"is_system":   role.IsSystem,
		"permissions": perms,
	}
}

// List godoc
//
//	@Summary		List roles
//	@Tags			Roles
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	object{roles=[]object{id=int,name=string,permissions=[]string}}
//	@Router			/admin/roles [get]
func (h *RoleHandler) List(c *gin.Context) {
	roles, err := h.rbac.GetAllRoles()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}

	out := make([]gin.H, 0, len(roles))
	for i := range roles {
		out = append(out, roleResponse(&roles[i]))
	}
	c.JSON(http.StatusOK, gin.H{"roles": out})
}

type createRoleRequest struct {
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions" binding:"required"`
}

// Create godoc
//
//	@Summary		Create a role
//	@Description	Create a custom role from catalog permissions. System role names are reserved.
//	@Tags			Roles
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		createRoleRequest	true	"Role details"
//	@Success		201		{object}	object{id=int,name=string,permissions=[]string}
//	@Failure		400		{object}	object{error=string,error_description=string}	"unknown_permission"
//	@Failure		409		{object}	object{error=string}							"name_taken"
//	@Router			/admin/roles [post]
func (h *RoleHandler) Create(c *gin.Context) {
	actorID := c.GetString(middleware.ContextUserID)

	var req createRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "name and permissions are required",
		})
		return
	}

	perms := make([]models.PermissionName, 0, len(req.Permissions))
	for _, p := range req.Permissions {
		perms = append(perms, models.PermissionName(p))
	}

	role, err := h.rbac.CreateRole(c, actorID, req.Name, req.Description, perms)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnknownPermission):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             "unknown_permission",
				"error_description": err.Error(),
			})
		case errors.Is(err, services.ErrRoleNameTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "name_taken"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		}
		return
	}

	c.JSON(http.StatusCreated, roleResponse(role))
}

type updatePermissionsRequest struct {
	Permissions []string `json:"permissions" binding:"required"`
}

// UpdatePermissions godoc
//
//	@Summary		Replace a role's permission set
//	@Description	System roles are immutable. Cached permission sets of every member are invalidated.
//	@Tags			Roles
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		int							true	"Role ID"
//	@Param			request	body		updatePermissionsRequest	true	"New permission set"
//	@Success		200		{object}	object{id=int,permissions=[]string}
//	@Failure		400		{object}	object{error=string}	"unknown_permission"
//	@Failure		403		{object}	object{error=string}	"system_role"
//	@Failure		404		{object}	object{error=string}	"not_found"
//	@Router			/admin/roles/{id}/permissions [put]
func (h *RoleHandler) UpdatePermissions(c *gin.Context) {
	actorID := c.GetString(middleware.ContextUserID)

	roleID, err := parseRoleID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	var req updatePermissionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "permissions is required",
		})
		return
	}

	perms := make([]models.PermissionName, 0, len(req.Permissions))
	for _, p := range req.Permissions {
		perms = append(perms, models.PermissionName(p))
	}

	if err := h.rbac.UpdateRolePermissions(c, actorID, roleID, perms); err != nil {
		writeRoleError(c, err)
		return
	}

	role, err := h.rbac.GetRole(roleID)
	if err != nil {
		writeRoleError(c, err)
		return
	}
	c.JSON(http.StatusOK, roleResponse(role))
}

// Delete godoc
//
//	@Summary		Delete a role
//	@Description	Removes the role and all of its assignments. System roles cannot be deleted.
//	@Tags			Roles
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		int	true	"Role ID"
//	@Success		200	{object}	object{status=string}
//	@Failure		403	{object}	object{error=string}	"system_role"
//	@Failure		404	{object}	object{error=string}	"not_found"
//	@Router			/admin/roles/{id} [delete]
func (h *RoleHandler) Delete(c *gin.Context) {
	actorID := c.GetString(middleware.ContextUserID)

	roleID, err := parseRoleID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if err := h.rbac.DeleteRole(c, actorID, roleID); err != nil {
		writeRoleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

type assignRoleRequest struct {
	RoleID uint `json:"role_id" binding:"required"`
}

// Assign godoc
//
//	@Summary		Assign a role to a user
//	@Description	Idempotent: assigning an already-held role succeeds without change.
//	@Tags			Roles
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		string				true	"User ID"
//	@Param			request	body		assignRoleRequest	true	"Role to assign"
//	@Success		200		{object}	object{status=string}
//	@Failure		404		{object}	object{error=string}	"not_found"
//	@Router			/admin/users/{id}/roles [post]
func (h *RoleHandler) Assign(c *gin.Context) {
	actorID := c.GetString(middleware.ContextUserID)

	var req assignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "role_id is required",
		})
		return
	}

	if err := h.rbac.AssignRole(c, actorID, c.Param("id"), req.RoleID); err != nil {
		writeRoleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "assigned"})
}

// Unassign godoc
//
//	@Summary		Revoke a role from a user
//	@Tags			Roles
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		string	true	"User ID"
//	@Param			roleID	path		int		true	"Role ID"
//	@Success		200		{object}	object{status=string}
//	@Failure		404		{object}	object{error=string}	"not_found"
//	@Router			/admin/users/{id}/roles/{roleID} [delete]
func (h *RoleHandler) Unassign(c *gin.Context) {
	actorID := c.GetString(middleware.ContextUserID)

	roleID, err := strconv.ParseUint(c.Param("roleID"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if err := h.rbac.RevokeRole(c, actorID, c.Param("id"), uint(roleID)); err != nil {
		writeRoleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "revoked"})
}

// UserPermissions godoc
//
//	@Summary		Effective permissions of a user
//	@Description	Union of permissions across all assigned roles. Super-admins report the full catalog.
//	@Tags			Roles
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"User ID"
//	@Success		200	{object}	object{user_id=string,permissions=[]string}
//	@Router			/admin/users/{id}/permissions [get]
func (h *RoleHandler) UserPermissions(c *gin.Context) {
	userID := c.Param("id")

	perms, err := h.rbac.EffectivePermissions(c, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":     userID,
		"permissions": perms,
	})
}

func parseRoleID(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	return uint(id), err
}

func writeRoleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrRoleNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, services.ErrSystemRole):
		c.JSON(http.StatusForbidden, gin.H{"error": "system_role"})
	case errors.Is(err, services.ErrUnknownPermission):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_permission"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
	}
}
