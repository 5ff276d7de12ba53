// Package errors provides standardized domain errors that express business intent
// rather than infrastructure details. These errors should be used by use cases
// and mapped to appropriate HTTP status codes by handlers.
package errors

import (
	"errors"
	"fmt"
)

// Standard domain errors that can be used across all domain modules.
var (
	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a conflict with existing data (e.g., duplicate key).
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput indicates the input data is invalid or fails validation.
	// Callers must correct the input; retrying the same request cannot succeed.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates the request lacks valid authentication credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the authenticated principal doesn't have permission.
	ErrForbidden = errors.New("forbidden")

	// ErrConfiguration indicates an invalid startup configuration, such as a
	// field marked as protected without a resolvable sensitivity tier.
	// Fatal and non-retryable; the process must not start.
	ErrConfiguration = errors.New("configuration error")

	// ErrKeyState indicates a key-lifecycle conflict, such as an unknown key
	// reference or a rotation already in flight. Callers may retry after a delay.
	ErrKeyState = errors.New("key state error")

	// ErrServiceUnavailable indicates the external key service could not be
	// reached. Retried internally with bounded exponential backoff before being
	// surfaced; callers may retry after a backoff of their own.
	ErrServiceUnavailable = errors.New("key service unavailable")

	// ErrAuditFailure indicates the audit trail could not be recorded.
	// Always fatal to the enclosing transaction: data is never persisted
	// without its audit trail.
	ErrAuditFailure = errors.New("audit failure")
)

// New creates a new error with the given message.
// This is a convenience wrapper around errors.New for consistency.
func New(message string) error {
	return errors.New(message)
}

// Wrap wraps an error with additional context while preserving the error chain.
// Use this to add context at each layer without losing the original error type.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted message while preserving the error chain.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's tree matches target.
// This is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
// This is a convenience wrapper around errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}
