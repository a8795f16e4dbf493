package models

import "time"

// Built-in role names. System roles are seeded at startup and cannot be
// modified or deleted through the role admin surface.
const (
	RoleSuperAdmin = "super-admin"
	RoleAdmin      = "admin"
	RoleUser       = "user"
)

// PermissionName is a closed, compile-time-enumerable capability identifier.
// The wire vocabulary stays "resource:action" strings; typing them catches
// typos at compile time.
type PermissionName string

const (
	PermUsersRead    PermissionName = "users:read"
	PermUsersWrite   PermissionName = "users:write"
	PermClientsRead  PermissionName = "clients:read"
	PermClientsWrite PermissionName = "clients:write"
	PermRolesRead    PermissionName = "roles:read"
	PermRolesWrite   PermissionName = "roles:write"
	PermTokensRevoke PermissionName = "tokens:revoke"
	PermAPIKeysRead  PermissionName = "apikeys:read"
	PermAPIKeysWrite PermissionName = "apikeys:write"
	PermAuditRead    PermissionName = "audit:read"
)

// PermissionCatalog enumerates every known permission with its resource and
// action, used to seed the permissions table. New entries automatically apply
// to super-admin without a data migration (super-admin bypasses checks).
var PermissionCatalog = []Permission{
	{Name: string(PermUsersRead), Resource: "users", Action: "read"},
	{Name: string(PermUsersWrite), Resource: "users", Action: "write"},
	{Name: string(PermClientsRead), Resource: "clients", Action: "read"},
	{Name: string(PermClientsWrite), Resource: "clients", Action: "write"},
	{Name: string(PermRolesRead), Resource: "roles", Action: "read"},
	{Name: string(PermRolesWrite), Resource: "roles", Action: "write"},
	{Name: string(PermTokensRevoke), Resource: "tokens", Action: "revoke"},
	{Name: string(PermAPIKeysRead), Resource: "apikeys", Action: "read"},
	{Name: string(PermAPIKeysWrite), Resource: "apikeys", Action: "write"},
	{Name: string(PermAuditRead), Resource: "audit", Action: "read"},
}

// KnownPermission reports whether name is part of the closed catalog.
func KnownPermission(name string) bool {
	for i := range PermissionCatalog {
		if PermissionCatalog[i].Name == name {
			return true
		}
	}
	return false
}

// Role is a named permission group.
type Role struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	Name        string `gorm:"uniqueIndex;not null"`
	Description string
	IsSystem    bool `gorm:"not null;default:false"` // immutable, undeletable

	Permissions []Permission `gorm:"many2many:role_permissions"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Role) TableName() string {
	return "roles"
}

// Permission is one grantable capability on a resource.
type Permission struct {
	ID       uint   `gorm:"primaryKey;autoIncrement"`
	Name     string `gorm:"uniqueIndex;not null"` // "resource:action"
	Resource string `gorm:"not null;index"`
	Action   string `gorm:"not null"`

	CreatedAt time.Time
}

func (Permission) TableName() string {
	return "permissions"
}

// RoleAssignment links a user to a role, with an audit reference to the
// assigning actor.
type RoleAssignment struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	UserID     string `gorm:"not null;uniqueIndex:idx_assignment_user_role,priority:1"`
	RoleID     uint   `gorm:"not null;uniqueIndex:idx_assignment_user_role,priority:2"`
	AssignedBy string // user ID of the assigning admin, empty for bootstrap

	CreatedAt time.Time
}

func (RoleAssignment) TableName() string {
	return "role_assignments"
}
