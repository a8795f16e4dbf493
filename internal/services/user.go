package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/elixpo/elixpoaccounts/internal/metrics"
	"github.com/elixpo/elixpoaccounts/internal/models"
	"github.com/elixpo/elixpoaccounts/internal/store"
	"github.com/elixpo/elixpoaccounts/internal/util"

	"github.com/google/uuid"
)

// ProviderLocal tags credentials issued from a password login.
const ProviderLocal = "local"

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserInactive       = errors.New("user account is deactivated")
	ErrEmailTaken         = errors.New("email already registered")
	ErrWeakPassword       = errors.New("password does not meet requirements")
)

const minPasswordLength = 8

// UserService owns registration and password authentication.
type UserService struct {
	store   *store.Store
	audit   *AuditService
	metrics metrics.Recorder
}

func NewUserService(s *store.Store, audit *AuditService, recorder metrics.Recorder) *UserService {
	return &UserService{
		store:   s,
		audit:   audit,
		metrics: recorder,
	}
}

// Register creates a password-backed account and assigns the default role.
// Email comparison is case-insensitive; the stored form is lowercased.
func (s *UserService) Register(ctx context.Context, email, password, displayName string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: invalid email", ErrInvalidCredentials)
	}
	if len(password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	salt, err := util.CryptoRandomString(16)
	if err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	user := &models.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: util.HashPassword(password, salt),
		PasswordSalt: salt,
		DisplayName:  displayName,
		IsActive:     true,
	}

	if err := s.store.CreateUser(user); err != nil {
		s.metrics.RecordRegistration(false)
		if errors.Is(err, store.ErrEmailConflict) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	if err := s.assignDefaultRole(user.ID); err != nil {
		// The account exists; a missing role assignment is recoverable
		log.Printf("Failed to assign default role to user=%s: %v", user.ID, err)
	}

	s.metrics.RecordRegistration(true)
	s.audit.Log(ctx, AuditLogEntry{
		EventType:    models.EventRegistration,
		ActorUserID:  user.ID,
		ActorEmail:   user.Email,
		ResourceType: models.ResourceUser,
		ResourceID:   user.ID,
		Action:       "user registered",
		Success:      true,
	})

	return user, nil
}

func (s *UserService) assignDefaultRole(userID string) error {
	role, err := s.store.GetRoleByName(models.RoleUser)
	if err != nil {
		return err
	}
	return s.store.CreateRoleAssignment(&models.RoleAssignment{
		UserID: userID,
		RoleID: role.ID,
	})
}

// Authenticate verifies a password login. A missing user, a wrong password,
// and an OAuth-only account all collapse into ErrInvalidCredentials so the
// response does not reveal which one happened.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.store.GetUserByEmail(email)
	if err != nil {
		s.recordLoginFailure(ctx, email, "unknown email")
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		s.recordLoginFailure(ctx, email, "account deactivated")
		return nil, ErrUserInactive
	}

	if !user.HasPassword() {
		// OAuth-only account; password login is not available for it
		s.recordLoginFailure(ctx, email, "no password credentials")
		return nil, ErrInvalidCredentials
	}

	if !util.VerifyPassword(password, user.PasswordSalt, user.PasswordHash) {
		s.recordLoginFailure(ctx, email, "wrong password")
		return nil, ErrInvalidCredentials
	}

	s.metrics.RecordLogin(ProviderLocal, true)
	s.audit.Log(ctx, AuditLogEntry{
		EventType:    models.EventLoginSuccess,
		ActorUserID:  user.ID,
		ActorEmail:   user.Email,
		ResourceType: models.ResourceUser,
		ResourceID:   user.ID,
		Action:       "password login",
		Success:      true,
	})

	return user, nil
}

func (s *UserService) recordLoginFailure(ctx context.Context, email, reason string) {
	s.metrics.RecordLogin(ProviderLocal, false)
	s.audit.Log(ctx, AuditLogEntry{
		EventType:    models.EventLoginFailure,
		Severity:     models.SeverityWarning,
		ActorEmail:   email,
		ResourceType: models.ResourceUser,
		Action:       "password login",
		Success:      false,
		ErrorMessage: reason,
	})
}

func (s *UserService) GetUserByID(id string) (*models.User, error) {
	user, err := s.store.GetUserByID(id)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// GetLinkedIdentities lists the external identities attached to a user.
func (s *UserService) GetLinkedIdentities(userID string) ([]models.Identity, error) {
	return s.store.GetIdentitiesByUserID(userID)
}
