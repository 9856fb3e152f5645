// Package shared contains the error kinds used across the planner's domain,
// application, and infrastructure layers. This package has zero external dependencies.
package shared

import (
	"context"
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrInvalidID    = errors.New("invalid ID")
	ErrInvalidInput = errors.New("invalid input")

	// Build failure kinds
	ErrPoolUnavailable     = errors.New("item pool unavailable")
	ErrPersistenceConflict = errors.New("persistence conflict")
	ErrTransportFailure    = errors.New("transport failure")
	ErrTimeout             = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "training", "neo4j", "postgres"
	Op      string // Operation that failed, e.g., "AssignSets", "PersistPlan"
	Kind    error  // Base error type for errors.Is() checking
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

// Is implements errors.Is() matching.
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

// KindOf returns the build failure kind carried by err, or nil when err
// has not been classified yet.
func KindOf(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrTimeout):
		return ErrTimeout
	case errors.Is(err, ErrTransportFailure):
		return ErrTransportFailure
	case errors.Is(err, ErrPoolUnavailable):
		return ErrPoolUnavailable
	case errors.Is(err, ErrPersistenceConflict):
		return ErrPersistenceConflict
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidID):
		return ErrInvalidInput
	case errors.Is(err, ErrNotFound):
		return ErrNotFound
	}
	return nil
}

// IsContextError reports whether err was caused by a cancelled or expired context.
func IsContextError(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidID) || errors.Is(err, ErrInvalidInput)
}

// IsRetryable checks if the operation can be retried.
// Timeouts are final: the caller's budget is already spent.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrTimeout) || IsContextError(err) {
		return false
	}
	return errors.Is(err, ErrPersistenceConflict) ||
		errors.Is(err, ErrTransportFailure)
}
