package store

import "errors"

var (
	// ErrRecordNotFound wraps GORM's not found error for consistency
	ErrRecordNotFound = errors.New("record not found")

	// ErrEmailConflict is returned when an email is already registered
	ErrEmailConflict = errors.New("email already registered")

	// ErrAuthCodeAlreadyUsed is returned by MarkAuthorizationCodeUsed when the
	// code was already consumed by a concurrent request (0 rows updated)
	ErrAuthCodeAlreadyUsed = errors.New("authorization code already used")

	// ErrAuthRequestConsumed is returned by ConsumeAuthorizationRequest when
	// the state was already consumed by a concurrent callback
	ErrAuthRequestConsumed = errors.New("authorization request already consumed")

	// ErrSystemRole is returned when a mutation targets a system role
	ErrSystemRole = errors.New("system roles cannot be modified")
)
