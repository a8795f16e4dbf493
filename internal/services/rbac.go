package services

import (
	"context"
	"errors"
	"time"

	"github.com/elixpo/elixpoaccounts/internal/cache"
	"github.com/elixpo/elixpoaccounts/internal/metrics"
	"github.com/elixpo/elixpoaccounts/internal/models"
	"github.com/elixpo/elixpoaccounts/internal/store"
)

var (
	ErrRoleNotFound      = errors.New("role not found")
	ErrSystemRole        = errors.New("system roles cannot be modified")
	ErrUnknownPermission = errors.New("unknown permission name")
	ErrRoleNameTaken     = errors.New("role name already exists")
)

const permissionCacheTTL = 30 * time.Second

// RBACService resolves effective permissions and manages roles. Permission
// sets are cached per user with a short TTL; the cache entry is invalidated
// on every assignment change so revocation takes effect within one TTL at
// worst and immediately on this instance.
type RBACService struct {
	store   *store.Store
	cache   cache.Cache[[]string]
	audit   *AuditService
	metrics metrics.Recorder
}

func NewRBACService(
	s *store.Store,
	permCache cache.Cache[[]string],
	audit *AuditService,
	recorder metrics.Recorder,
) *RBACService {
	return &RBACService{
		store:   s,
		cache:   permCache,
		audit:   audit,
		metrics: recorder,
	}
}

// IsSuperAdmin reports whether the user holds the super-admin role. The
// bypass is structural: it checks role membership, never permission rows.
func (s *RBACService) IsSuperAdmin(userID string) (bool, error) {
	roles, err := s.store.GetRolesByUserID(userID)
	if err != nil {
		return false, err
	}
	for _, role := range roles {
		if role.Name == models.RoleSuperAdmin {
			return true, nil
		}
	}
	return false, nil
}

// EffectivePermissions returns the union of permissions across all the
// user's roles, cache-aside with a short TTL.
func (s *RBACService) EffectivePermissions(ctx context.Context, userID string) ([]string, error) {
	return cache.GetWithFetch(ctx, s.cache, "perms:"+userID, permissionCacheTTL,
		func(ctx context.Context, key string) ([]string, error) {
			return s.loadPermissions(userID)
		})
}

func (s *RBACService) loadPermissions(userID string) ([]string, error) {
	roles, err := s.store.GetRolesByUserID(userID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	perms := make([]string, 0, 8)
	for _, role := range roles {
		for _, p := range role.Permissions {
			if _, ok := seen[p.Name]; ok {
				continue
			}
			seen[p.Name] = struct{}{}
			perms = append(perms, p.Name)
		}
	}
	return perms, nil
}

// HasPermission answers the single question every protected endpoint asks.
// Super-admins pass unconditionally.
func (s *RBACService) HasPermission(ctx context.Context, userID string, perm models.PermissionName) (bool, error) {
	super, err := s.IsSuperAdmin(userID)
	if err != nil {
		return false, err
	}
	if super {
		s.metrics.RecordPermissionCheck("bypass")
		return true, nil
	}

	perms, err := s.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}

	for _, p := range perms {
		if p == string(perm) {
			s.metrics.RecordPermissionCheck("granted")
			return true, nil
		}
	}

	s.metrics.RecordPermissionCheck("denied")
	return false, nil
}

// HasAnyPermission is false for an empty requirement list.
func (s *RBACService) HasAnyPermission(ctx context.Context, userID string, perms ...models.PermissionName) (bool, error) {
	for _, p := range perms {
		ok, err := s.HasPermission(ctx, userID, p)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// HasAllPermissions is vacuously true for an empty requirement list.
func (s *RBACService) HasAllPermissions(ctx context.Context, userID string, perms ...models.PermissionName) (bool, error) {
	for _, p := range perms {
		ok, err := s.HasPermission(ctx, userID, p)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// HasResourceAction answers a point query by resource and action columns
// rather than the joined "resource:action" name.
func (s *RBACService) HasResourceAction(ctx context.Context, userID, resource, action string) (bool, error) {
	super, err := s.IsSuperAdmin(userID)
	if err != nil {
		return false, err
	}
	if super {
		s.metrics.RecordPermissionCheck("bypass")
		return true, nil
	}

	perms, err := s.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}

	for _, name := range perms {
		for i := range models.PermissionCatalog {
			p := &models.PermissionCatalog[i]
			if p.Name == name && p.Resource == resource && p.Action == action {
				s.metrics.RecordPermissionCheck("granted")
				return true, nil
			}
		}
	}

	s.metrics.RecordPermissionCheck("denied")
	return false, nil
}

// Role management

func (s *RBACService) GetAllRoles() ([]models.Role, error) {
	return s.store.GetAllRoles()
}

func (s *RBACService) GetRole(id uint) (*models.Role, error) {
	role, err := s.store.GetRoleByID(id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, ErrRoleNotFound
		}
		return nil, err
	}
	return role, nil
}

// CreateRole creates a custom role. Every requested permission must exist in
// the closed catalog; free-form strings are rejected.
func (s *RBACService) CreateRole(
	ctx context.Context,
	actorID, name, description string,
	permNames []models.PermissionName,
) (*models.Role, error) {
	for _, p := range permNames {
		if !models.KnownPermission(string(p)) {
			return nil, ErrUnknownPermission
		}
	}

	if _, err := s.store.GetRoleByName(name); err == nil {
		return nil, ErrRoleNameTaken
	}

	perms, err := s.store.GetPermissionsByNames(permNames)
	if err != nil {
		return nil, err
	}

	role := &models.Role{
		Name:        name,
		Description: description,
		IsSystem:    false,
		Permissions: perms,
	}
	if err := s.store.CreateRole(role); err != nil {
		return nil, err
	}

	s.audit.Log(ctx, AuditLogEntry{
		EventType:    models.EventRoleCreated,
		ActorUserID:  actorID,
		ResourceType: models.ResourceRole,
		ResourceID:   role.Name,
		Action:       "role created",
		Details:      models.AuditDetails{"permissions": len(perms)},
		Success:      true,
	})

	return role, nil
}

// UpdateRolePermissions replaces a custom role's permission set.
func (s *RBACService) UpdateRolePermissions(
	ctx context.Context,
	actorID string,
	roleID uint,
	permNames []models.PermissionName,
) error {
	for _, p := range permNames {
		if !models.KnownPermission(string(p)) {
			return ErrUnknownPermission
		}
	}

	perms, err := s.store.GetPermissionsByNames(permNames)
	if err != nil {
		return err
	}

	if err := s.store.UpdateRolePermissions(roleID, perms); err != nil {
		if errors.Is(err, store.ErrSystemRole) {
			return ErrSystemRole
		}
		if errors.Is(err, store.ErrRecordNotFound) {
			return ErrRoleNotFound
		}
		return err
	}

	s.invalidateRoleMembers(ctx, roleID)
	s.audit.Log(ctx, AuditLogEntry{
		EventType:    models.EventRoleUpdated,
		ActorUserID:  actorID,
		ResourceType: models.ResourceRole,
		Action:       "role permissions replaced",
		Success:      true,
	})

	return nil
}

func (s *RBACService) DeleteRole(ctx context.Context, actorID string, roleID uint) error {
	s.invalidateRoleMembers(ctx, roleID)

	if err := s.store.DeleteRole(roleID); err != nil {
		if errors.Is(err, store.ErrSystemRole) {
			return ErrSystemRole
		}
		if errors.Is(err, store.ErrRecordNotFound) {
			return ErrRoleNotFound
		}
		return err
	}

	s.audit.Log(ctx, AuditLogEntry{
		EventType:    models.EventRoleDeleted,
		ActorUserID:  actorID,
		ResourceType: models.ResourceRole,
		Action:       "role deleted",
		Success:      true,
	})

	return nil
}

// AssignRole grants a role to a user. Idempotent for an existing assignment.
func (s *RBACService) AssignRole(ctx context.Context, actorID, userID string, roleID uint) error {
	role, err := s.store.GetRoleByID(roleID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return ErrRoleNotFound
		}
		return err
	}

	has, err := s.store.HasRoleAssignment(userID, roleID)
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	if err := s.store.CreateRoleAssignment(&models.RoleAssignment{
		UserID:     userID,
		RoleID:     roleID,
		AssignedBy: actorID,
	}); err != nil {
		return err
	}

	_ = s.cache.Delete(ctx, "perms:"+userID)
	s.audit.Log(ctx, AuditLogEntry{
		EventType:    models.EventRoleAssigned,
		ActorUserID:  actorID,
		ResourceType: models.ResourceRole,
		ResourceID:   role.Name,
		Action:       "role assigned",
		Details:      models.AuditDetails{"target_user": userID},
		Success:      true,
	})

	return nil
}

// RevokeRole removes a role from a user.
func (s *RBACService) RevokeRole(ctx context.Context, actorID, userID string, roleID uint) error {
	if err := s.store.DeleteRoleAssignment(userID, roleID); err != nil {
		return err
	}

	_ = s.cache.Delete(ctx, "perms:"+userID)
	s.audit.Log(ctx, AuditLogEntry{
		EventType:    models.EventRoleAssigned,
		ActorUserID:  actorID,
		ResourceType: models.ResourceRole,
		Action:       "role revoked",
		Details:      models.AuditDetails{"target_user": userID},
		Success:      true,
	})

	return nil
}

// invalidateRoleMembers drops cached permission sets for everyone holding
// the role. Best effort: missed entries age out within the TTL.
func (s *RBACService) invalidateRoleMembers(ctx context.Context, roleID uint) {
	var assignments []models.RoleAssignment
	if err := s.store.DB().Where("role_id = ?", roleID).Find(&assignments).Error; err != nil {
		return
	}
	for _, a := range assignments {
		_ = s.cache.Delete(ctx, "perms:"+a.UserID)
	}
}
