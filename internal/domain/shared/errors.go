// Package shared contains the error taxonomy used across the fragment router,
// the saga coordinator and the partition gateways. This package has zero
// external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base error kinds that can be checked with errors.Is().
var (
	// ErrValidation marks malformed or out-of-range input, rejected before any mutation.
	ErrValidation = errors.New("validation error")

	// ErrUnclassifiable marks a record that matches neither domain discriminant.
	ErrUnclassifiable = fmt.Errorf("%w: unclassifiable record", ErrValidation)

	// ErrRouting marks a study year no fragment rule covers.
	ErrRouting = errors.New("routing error")

	// ErrNotFound marks a required record or collection absent from a partition.
	ErrNotFound = errors.New("not found")

	// ErrPartition marks a fault in the underlying store.
	ErrPartition = errors.New("partition error")

	// ErrInconsistentState marks vertically split copies that disagree on a shared field.
	ErrInconsistentState = errors.New("inconsistent state")

	// ErrCompensation marks a rollback action that itself failed.
	ErrCompensation = errors.New("compensation error")
)

// DomainError represents a classified error with context.
type DomainError struct {
	Domain  string // e.g., "student", "course", "fragment"
	Op      string // Operation that failed, e.g., "Resolve", "Locate"
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

// Is implements errors.Is() matching on both the kind and the wrapped error.
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

// Validationf builds a validation error for the given domain operation.
func Validationf(domain, op, format string, args ...any) *DomainError {
	return NewDomainError(domain, op, ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf builds a not-found error for the given domain operation.
func NotFoundf(domain, op, format string, args ...any) *DomainError {
	return NewDomainError(domain, op, ErrNotFound, fmt.Sprintf(format, args...))
}

// PartitionFault wraps a store failure observed on the named partition.
// Errors that already carry a kind from this package are returned unchanged.
func PartitionFault(partition, op string, err error) error {
	if err == nil {
		return nil
	}
	if IsClassified(err) {
		return err
	}
	return WrapError("partition", op, ErrPartition, "partition "+partition+" faulted", err)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsRouting checks if the error is a routing error.
func IsRouting(err error) bool {
	return errors.Is(err, ErrRouting)
}

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsPartition checks if the error is a store fault.
func IsPartition(err error) bool {
	return errors.Is(err, ErrPartition)
}

// IsInconsistentState checks if the error reports a vertical mismatch.
func IsInconsistentState(err error) bool {
	return errors.Is(err, ErrInconsistentState)
}

// IsCompensation checks if any rollback action failed.
func IsCompensation(err error) bool {
	return errors.Is(err, ErrCompensation)
}

// IsClassified reports whether err already carries one of the kinds above.
func IsClassified(err error) bool {
	return IsValidation(err) ||
		IsRouting(err) ||
		IsNotFound(err) ||
		IsPartition(err) ||
		IsInconsistentState(err) ||
		IsCompensation(err)
}
