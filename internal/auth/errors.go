package auth

import "errors"

var (
	// ErrUnsupportedProvider indicates the requested provider is not configured
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrNoEmail indicates the provider account exposes no usable email address
	ErrNoEmail = errors.New("provider account has no email address")
)
