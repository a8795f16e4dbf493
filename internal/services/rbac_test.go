package services

import (
	"context"
	"testing"

	"github.com/elixpo/elixpoaccounts/internal/cache"
	"github.com/elixpo/elixpoaccounts/internal/models"
	"github.com/elixpo/elixpoaccounts/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRBACService(t *testing.T) (*RBACService, *store.Store) {
	s := setupTestStore(t)
	svc := NewRBACService(s, cache.NewMemoryCache[[]string](), quietAudit(s), noop())
	return svc, s
}

func assignNamedRole(t *testing.T, svc *RBACService, s *store.Store, userID, roleName string) {
	role, err := s.GetRoleByName(roleName)
	require.NoError(t, err)
	require.NoError(t, svc.AssignRole(context.Background(), "", userID, role.ID))
}

func TestSuperAdminBypassesPermissionChecks(t *testing.T) {
	svc, s := newRBACService(t)
	user := createTestUser(t, s, "root@example.com")
	ctx := context.Background()

	assignNamedRole(t, svc, s, user.ID, models.RoleSuperAdmin)

	super, err := svc.IsSuperAdmin(user.ID)
	require.NoError(t, err)
	assert.True(t, super)

	// Membership alone grants everything, including permissions the role
	// carries no rows for
	for _, perm := range []models.PermissionName{
		models.PermUsersWrite,
		models.PermRolesWrite,
		models.PermAuditRead,
	} {
		ok, err := svc.HasPermission(ctx, user.ID, perm)
		require.NoError(t, err)
		assert.True(t, ok, "super-admin should pass %s", perm)
	}
}

func TestEffectivePermissionsUnionAcrossRoles(t *testing.T) {
	svc, s := newRBACService(t)
	user := createTestUser(t, s, "alice@example.com")
	ctx := context.Background()

	readers, err := svc.CreateRole(ctx, "", "readers", "read everything",
		[]models.PermissionName{models.PermUsersRead, models.PermClientsRead})
	require.NoError(t, err)
	auditors, err := svc.CreateRole(ctx, "", "auditors", "audit access",
		[]models.PermissionName{models.PermAuditRead, models.PermUsersRead})
	require.NoError(t, err)

	require.NoError(t, svc.AssignRole(ctx, "", user.ID, readers.ID))
	require.NoError(t, svc.AssignRole(ctx, "", user.ID, auditors.ID))

	perms, err := svc.EffectivePermissions(ctx, user.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"users:read", "clients:read", "audit:read"}, perms)

	ok, err := svc.HasPermission(ctx, user.ID, models.PermAuditRead)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.HasPermission(ctx, user.ID, models.PermUsersWrite)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasAnyPermission(t *testing.T) {
	svc, s := newRBACService(t)
	user := createTestUser(t, s, "alice@example.com")
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, "", "readers", "",
		[]models.PermissionName{models.PermUsersRead})
	require.NoError(t, err)
	require.NoError(t, svc.AssignRole(ctx, "", user.ID, role.ID))

	ok, err := svc.HasAnyPermission(ctx, user.ID, models.PermUsersWrite, models.PermUsersRead)
	require.NoError(t, err)
	assert.True(t, ok)

	// An empty requirement list never passes
	ok, err = svc.HasAnyPermission(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasAllPermissions(t *testing.T) {
	svc, s := newRBACService(t)
	user := createTestUser(t, s, "alice@example.com")
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, "", "readers", "",
		[]models.PermissionName{models.PermUsersRead, models.PermClientsRead})
	require.NoError(t, err)
	require.NoError(t, svc.AssignRole(ctx, "", user.ID, role.ID))

	ok, err := svc.HasAllPermissions(ctx, user.ID, models.PermUsersRead, models.PermClientsRead)
	require.NoError(t, err)
	assert.True(t, ok)

	// One missing permission fails the whole requirement
	ok, err = svc.HasAllPermissions(ctx, user.ID, models.PermUsersRead, models.PermUsersWrite)
	require.NoError(t, err)
	assert.False(t, ok)

	// An empty requirement list is vacuously satisfied
	ok, err = svc.HasAllPermissions(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	// Even for a user with no roles at all
	nobody := createTestUser(t, s, "nobody@example.com")
	ok, err = svc.HasAllPermissions(ctx, nobody.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHasResourceAction(t *testing.T) {
	svc, s := newRBACService(t)
	user := createTestUser(t, s, "alice@example.com")
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, "", "readers", "",
		[]models.PermissionName{models.PermUsersRead})
	require.NoError(t, err)
	require.NoError(t, svc.AssignRole(ctx, "", user.ID, role.ID))

	ok, err := svc.HasResourceAction(ctx, user.ID, "users", "read")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.HasResourceAction(ctx, user.ID, "users", "write")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.HasResourceAction(ctx, user.ID, "rockets", "launch")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasResourceActionSuperAdminBypass(t *testing.T) {
	svc, s := newRBACService(t)
	user := createTestUser(t, s, "root@example.com")
	ctx := context.Background()

	assignNamedRole(t, svc, s, user.ID, models.RoleSuperAdmin)

	// Structural bypass covers resources outside the catalog too
	ok, err := svc.HasResourceAction(ctx, user.ID, "rockets", "launch")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCreateRoleRejectsUnknownPermission(t *testing.T) {
	svc, _ := newRBACService(t)

	_, err := svc.CreateRole(context.Background(), "", "bad", "",
		[]models.PermissionName{"users:fly"})
	assert.ErrorIs(t, err, ErrUnknownPermission)
}

func TestCreateRoleRejectsDuplicateName(t *testing.T) {
	svc, _ := newRBACService(t)
	ctx := context.Background()

	_, err := svc.CreateRole(ctx, "", "readers", "", nil)
	require.NoError(t, err)

	_, err = svc.CreateRole(ctx, "", "readers", "", nil)
	assert.ErrorIs(t, err, ErrRoleNameTaken)

	// System role names are taken too
	_, err = svc.CreateRole(ctx, "", models.RoleAdmin, "", nil)
	assert.ErrorIs(t, err, ErrRoleNameTaken)
}

func TestSystemRolesAreImmutable(t *testing.T) {
	svc, s := newRBACService(t)
	ctx := context.Background()

	admin, err := s.GetRoleByName(models.RoleAdmin)
	require.NoError(t, err)

	err = svc.UpdateRolePermissions(ctx, "", admin.ID,
		[]models.PermissionName{models.PermUsersRead})
	assert.ErrorIs(t, err, ErrSystemRole)

	err = svc.DeleteRole(ctx, "", admin.ID)
	assert.ErrorIs(t, err, ErrSystemRole)
}

func TestUpdateRolePermissionsInvalidatesCache(t *testing.T) {
	svc, s := newRBACService(t)
	user := createTestUser(t, s, "alice@example.com")
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, "", "readers", "",
		[]models.PermissionName{models.PermUsersRead})
	require.NoError(t, err)
	require.NoError(t, svc.AssignRole(ctx, "", user.ID, role.ID))

	// Prime the cache
	perms, err := svc.EffectivePermissions(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"users:read"}, perms)

	require.NoError(t, svc.UpdateRolePermissions(ctx, "", role.ID,
		[]models.PermissionName{models.PermUsersRead, models.PermUsersWrite}))

	// The change is visible immediately, not after the TTL
	perms, err = svc.EffectivePermissions(ctx, user.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"users:read", "users:write"}, perms)
}

func TestAssignRoleIsIdempotent(t *testing.T) {
	svc, s := newRBACService(t)
	user := createTestUser(t, s, "alice@example.com")
	ctx := context.Background()

	role, err := s.GetRoleByName(models.RoleUser)
	require.NoError(t, err)

	require.NoError(t, svc.AssignRole(ctx, "", user.ID, role.ID))
	require.NoError(t, svc.AssignRole(ctx, "", user.ID, role.ID))

	roles, err := s.GetRolesByUserID(user.ID)
	require.NoError(t, err)
	assert.Len(t, roles, 1)
}

func TestAssignRoleUnknownRole(t *testing.T) {
	svc, s := newRBACService(t)
	user := createTestUser(t, s, "alice@example.com")

	err := svc.AssignRole(context.Background(), "", user.ID, 9999)
	assert.ErrorIs(t, err, ErrRoleNotFound)
}

func TestRevokeRoleDropsPermissions(t *testing.T) {
	svc, s := newRBACService(t)
	user := createTestUser(t, s, "alice@example.com")
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, "", "readers", "",
		[]models.PermissionName{models.PermUsersRead})
	require.NoError(t, err)
	require.NoError(t, svc.AssignRole(ctx, "", user.ID, role.ID))

	ok, err := svc.HasPermission(ctx, user.ID, models.PermUsersRead)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, svc.RevokeRole(ctx, "", user.ID, role.ID))

	ok, err = svc.HasPermission(ctx, user.ID, models.PermUsersRead)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteRoleRemovesAssignments(t *testing.T) {
	svc, s := newRBACService(t)
	user := createTestUser(t, s, "alice@example.com")
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, "", "temps", "",
		[]models.PermissionName{models.PermUsersRead})
	require.NoError(t, err)
	require.NoError(t, svc.AssignRole(ctx, "", user.ID, role.ID))

	require.NoError(t, svc.DeleteRole(ctx, "", role.ID))

	roles, err := s.GetRolesByUserID(user.ID)
	require.NoError(t, err)
	assert.Empty(t, roles)

	err = svc.DeleteRole(ctx, "", role.ID)
	assert.ErrorIs(t, err, ErrRoleNotFound)
}
