// Package util provides shared error types and helpers for the gateway.
//
// # Error Conventions
//
// This project follows a standardized error pattern across all packages:
//
//   - Sentinel errors (errors.New) for well-known, stable conditions
//     that callers check with errors.Is(). Example: ErrNoHealthyBackend.
//   - Structured error types for context-rich errors that carry
//     additional fields (e.g., GatewayError). Each type implements
//     Error(), Unwrap() (if wrapping), and Is().
//   - fmt.Errorf with %w for ad-hoc wrapping that adds context to an
//     existing error without introducing a new type.
package util

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Common sentinel errors.
var (
	ErrForbidden        = errors.New("forbidden")
	ErrPayloadTooLarge  = errors.New("payload too large")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrTooManyRequests  = errors.New("too many requests")
	ErrServiceUnavail   = errors.New("service unavailable")
	ErrNoHealthyBackend = errors.New("no healthy backend")
	ErrBackendTimeout   = errors.New("backend timeout")
	ErrBackendError     = errors.New("backend error")
)

// GatewayError is the structured error returned by the admission pipeline.
// It maps a terminal pipeline decision to an HTTP status code and an
// optional Retry-After hint.
type GatewayError struct {
	// Code is the sentinel error identifying the failure class.
	Code error

	// Message is a human-readable detail safe to return to the caller.
	Message string

	// RetryAfter is the suggested wait before retrying.
	// Only set for rate-limit rejections.
	RetryAfter time.Duration

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code.Error(), e.Message)
	}
	return e.Code.Error()
}

// Unwrap returns the underlying cause.
func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// Is reports whether the error matches the target sentinel.
func (e *GatewayError) Is(target error) bool {
	return errors.Is(e.Code, target) || errors.Is(e.Cause, target)
}

// HTTPStatus returns the HTTP status code for the error class.
func (e *GatewayError) HTTPStatus() int {
	switch {
	case errors.Is(e.Code, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(e.Code, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(e.Code, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(e.Code, ErrTooManyRequests):
		return http.StatusTooManyRequests
	case errors.Is(e.Code, ErrServiceUnavail):
		return http.StatusServiceUnavailable
	case errors.Is(e.Code, ErrNoHealthyBackend):
		return http.StatusBadGateway
	case errors.Is(e.Code, ErrBackendTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(e.Code, ErrBackendError):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewGatewayError creates a GatewayError for the given sentinel.
func NewGatewayError(code error, message string) *GatewayError {
	return &GatewayError{Code: code, Message: message}
}

// NewGatewayErrorWithCause creates a GatewayError wrapping a cause.
func NewGatewayErrorWithCause(code error, message string, cause error) *GatewayError {
	return &GatewayError{Code: code, Message: message, Cause: cause}
}

// NewRateLimitError creates a TooManyRequests error carrying the retry hint.
func NewRateLimitError(message string, retryAfter time.Duration) *GatewayError {
	return &GatewayError{Code: ErrTooManyRequests, Message: message, RetryAfter: retryAfter}
}

// AsGatewayError extracts a *GatewayError from an error chain, or wraps the
// error as an internal gateway error when it is not one.
func AsGatewayError(err error) *GatewayError {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge
	}
	return &GatewayError{Code: ErrBackendError, Message: "upstream request failed", Cause: err}
}

// ConfigError represents a configuration-related error.
type ConfigError struct {
	Field   string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error at %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ConfigError) Is(target error) bool {
	_, ok := target.(*ConfigError)
	return ok || errors.Is(e.Cause, target)
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}
