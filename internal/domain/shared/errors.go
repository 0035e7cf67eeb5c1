// Package shared contains the error taxonomy and domain events used across
// the Stellar Map packages. It has no external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// State errors
	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")
	ErrNotReady        = errors.New("resource not ready")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g. "hierarchy", "completion", "scene"
	Op      string // operation that failed, e.g. "Complete", "OpenScene"
	Kind    error  // base error for errors.Is() checking
	Message string // human-readable message
	Err     error  // underlying error (optional)
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

// Is matches against both the kind and the wrapped error.
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

// Content errors
var (
	ErrCoreNotFound          = NewDomainError("visibility", "Lookup", ErrNotFound, "core not found")
	ErrInvalidThresholdTable = NewDomainError("visibility", "LoadTable", ErrInvalidInput, "invalid threshold table")
	ErrConstellationNotFound = NewDomainError("hierarchy", "Resolve", ErrNotFound, "constellation not found")
	ErrNodeNotFound          = NewDomainError("hierarchy", "FindNode", ErrNotFound, "node not found")
	ErrContentUnavailable    = NewDomainError("hierarchy", "Fetch", ErrExternalService, "content store unavailable")
)

// Completion errors
var (
	ErrCompletionNotFound = NewDomainError("completion", "Find", ErrNotFound, "completion record not found")
	ErrCompletionExists   = NewDomainError("completion", "Insert", ErrAlreadyExists, "completion already recorded")
	ErrProfileNotFound    = NewDomainError("profile", "Find", ErrNotFound, "learner profile not found")
	ErrInvalidReward      = NewDomainError("completion", "Validate", ErrNegativeValue, "reward cannot be negative")
	ErrRewardFailed       = NewDomainError("completion", "ApplyReward", ErrExternalService, "reward application failed")
)

// Scene errors
var (
	ErrSurfaceNotReady = NewDomainError("scene", "OpenScene", ErrNotReady, "surface has zero size")
	ErrSceneNotFound   = NewDomainError("scene", "Lookup", ErrNotFound, "scene is not open")
	ErrSceneDisposed   = NewDomainError("scene", "Lookup", ErrInvalidState, "scene has been disposed")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsExternalService checks if the error is from an external store.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrNotReady) ||
		errors.Is(err, ErrConcurrentModification)
}
