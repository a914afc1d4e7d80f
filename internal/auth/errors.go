package auth

import "errors"

// Validation errors.
var (
	// ErrMissingToken indicates no bearer token was presented.
	ErrMissingToken = errors.New("missing bearer token")

	// ErrInvalidToken indicates the token failed validation.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired indicates the token is past its expiry.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenRevoked indicates the token was explicitly revoked.
	ErrTokenRevoked = errors.New("token revoked")
)
