package token

import "errors"

var (
	// ErrTokenGeneration indicates signing failed
	ErrTokenGeneration = errors.New("failed to generate token")

	// ErrInvalidToken indicates a malformed, tampered, or wrongly-signed token
	ErrInvalidToken = errors.New("invalid token")

	// ErrExpiredToken indicates the token's exp claim has passed
	ErrExpiredToken = errors.New("token has expired")

	// ErrWrongTokenKind indicates the "type" claim does not match the
	// operation (e.g. an access token presented to Refresh)
	ErrWrongTokenKind = errors.New("wrong token kind")
)
