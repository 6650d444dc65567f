// Package shared contains common domain types, errors and events that are
// used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base error kinds that can be checked with errors.Is().
var (
	// ErrValidation covers malformed input: bad IDs, self-follow, unknown category.
	ErrValidation = errors.New("validation error")

	// ErrConflict covers requests that contradict current state
	// (already following, not following).
	ErrConflict = errors.New("conflict")

	// ErrNotFound means a referenced entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrStore wraps transient backend failures.
	ErrStore = errors.New("store error")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "leaderboard", "social"
	Op      string // Operation that failed, e.g., "Follow", "GetLeaderboard"
	Kind    error  // Base error kind for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching against both the kind and the cause.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// StoreError wraps a backend failure into an ErrStore domain error.
// A nil err yields nil.
func StoreError(domain, op string, err error) error {
	if err == nil {
		return nil
	}
	return WrapError(domain, op, ErrStore, "store operation failed", err)
}

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsConflict checks if the error is a state conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsStore checks if the error is a backend failure.
func IsStore(err error) bool {
	return errors.Is(err, ErrStore)
}

// IsRetryable reports whether the caller may simply try again.
// Only backend failures qualify; validation and conflict errors never do.
func IsRetryable(err error) bool {
	return IsStore(err)
}
