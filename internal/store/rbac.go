package store

import (
	"errors"

	"github.com/elixpo/elixpoaccounts/internal/models"

	"gorm.io/gorm"
)

// Role and permission operations

func (s *Store) GetRoleByName(name string) (*models.Role, error) {
	var role models.Role
	if err := s.db.Preload("Permissions").Where("name = ?", name).First(&role).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &role, nil
}

func (s *Store) GetRoleByID(id uint) (*models.Role, error) {
	var role models.Role
	if err := s.db.Preload("Permissions").Where("id = ?", id).First(&role).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &role, nil
}

func (s *Store) GetAllRoles() ([]models.Role, error) {
	var roles []models.Role
	if err := s.db.Preload("Permissions").Order("name ASC").Find(&roles).Error; err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *Store) CreateRole(role *models.Role) error {
	return s.db.Create(role).Error
}

// UpdateRolePermissions replaces a role's permission set. System roles are
// immutable.
func (s *Store) UpdateRolePermissions(roleID uint, permissions []models.Permission) error {
	role, err := s.GetRoleByID(roleID)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return ErrSystemRole
	}
	return s.db.Model(role).Association("Permissions").Replace(permissions)
}

func (s *Store) DeleteRole(roleID uint) error {
	role, err := s.GetRoleByID(roleID)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return ErrSystemRole
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("role_id = ?", roleID).Delete(&models.RoleAssignment{}).Error; err != nil {
			return err
		}
		if err := tx.Model(role).Association("Permissions").Clear(); err != nil {
			return err
		}
		return tx.Delete(role).Error
	})
}

func (s *Store) GetPermissionsByNames(names []models.PermissionName) ([]models.Permission, error) {
	if len(names) == 0 {
		return nil, nil
	}
	values := make([]string, len(names))
	for i, n := range names {
		values[i] = string(n)
	}
	var perms []models.Permission
	if err := s.db.Where("name IN ?", values).Find(&perms).Error; err != nil {
		return nil, err
	}
	return perms, nil
}

// Role assignment operations

func (s *Store) GetRolesByUserID(userID string) ([]models.Role, error) {
	var roles []models.Role
	err := s.db.Preload("Permissions").
		Joins("JOIN role_assignments ON role_assignments.role_id = roles.id").
		Where("role_assignments.user_id = ?", userID).
		Find(&roles).Error
	if err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *Store) CreateRoleAssignment(assignment *models.RoleAssignment) error {
	return s.db.Create(assignment).Error
}

// DeleteRoleAssignment removes a user's role. Idempotent.
func (s *Store) DeleteRoleAssignment(userID string, roleID uint) error {
	return s.db.Where("user_id = ? AND role_id = ?", userID, roleID).Delete(&models.RoleAssignment{}).Error
}

func (s *Store) HasRoleAssignment(userID string, roleID uint) (bool, error) {
	var count int64
	err := s.db.Model(&models.RoleAssignment{}).
		Where("user_id = ? AND role_id = ?", userID, roleID).
		Count(&count).Error
	return count > 0, err
}
