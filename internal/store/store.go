package store

import (
	"errors"
	"log"

	"github.com/elixpo/elixpoaccounts/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Store struct {
	db *gorm.DB
}

func New(driver, dsn string) (*Store, error) {
	dialector, err := GetDialector(driver, dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	// Auto migrate
	if err := db.AutoMigrate(
		&models.User{},
		&models.Identity{},
		&models.RefreshCredential{},
		&models.AuthorizationRequest{},
		&models.AuthorizationCode{},
		&models.OAuthClient{},
		&models.RateLimitEntry{},
		&models.Role{},
		&models.Permission{},
		&models.RoleAssignment{},
		&models.APIKey{},
		&models.UsageLog{},
		&models.AuditLog{},
	); err != nil {
		return nil, err
	}

	store := &Store{db: db}

	if err := store.seedAccessControl(); err != nil {
		log.Printf("Warning: failed to seed access control data: %v", err)
	}

	return store, nil
}

// DB exposes the underlying handle for transactional callers.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Health pings the database connection.
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// seedAccessControl creates the permission catalog and system roles. This is
// the bootstrap path: it is the only writer allowed to touch system roles.
func (s *Store) seedAccessControl() error {
	// Permission catalog: insert any entries not yet present
	for _, p := range models.PermissionCatalog {
		var existing models.Permission
		err := s.db.Where("name = ?", p.Name).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		perm := p
		if err := s.db.Create(&perm).Error; err != nil {
			return err
		}
	}

	// System roles
	systemRoles := []struct {
		name        string
		description string
		permissions []string
	}{
		{
			name:        models.RoleSuperAdmin,
			description: "Bypasses all permission checks",
			permissions: nil, // bypass is structural, not data
		},
		{
			name:        models.RoleAdmin,
			description: "Full administrative access",
			permissions: permissionNames(models.PermissionCatalog),
		},
		{
			name:        models.RoleUser,
			description: "Default role for registered users",
			permissions: []string{string(models.PermUsersRead)},
		},
	}

	for _, def := range systemRoles {
		var role models.Role
		err := s.db.Where("name = ?", def.name).First(&role).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		role = models.Role{
			Name:        def.name,
			Description: def.description,
			IsSystem:    true,
		}
		if err := s.db.Create(&role).Error; err != nil {
			return err
		}

		if len(def.permissions) > 0 {
			var perms []models.Permission
			if err := s.db.Where("name IN ?", def.permissions).Find(&perms).Error; err != nil {
				return err
			}
			if err := s.db.Model(&role).Association("Permissions").Append(&perms); err != nil {
				return err
			}
		}

		log.Printf("Created system role: %s", def.name)
	}

	return nil
}

func permissionNames(catalog []models.Permission) []string {
	names := make([]string, 0, len(catalog))
	for i := range catalog {
		names = append(names, catalog[i].Name)
	}
	return names
}
