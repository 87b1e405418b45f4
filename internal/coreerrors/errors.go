// Package coreerrors defines the error taxonomy the analytics core exposes
// to its callers. The HTTP layer maps these to client-visible responses;
// the core only guarantees the kinds stay distinguishable via errors.As.
package coreerrors

import "fmt"

// ValidationError marks a malformed batch or record. The whole batch is
// refused before any write.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// StorageUnavailableError wraps an underlying store failure. No retry or
// buffering happens inside the core; the caller decides.
type StorageUnavailableError struct {
	Op  string
	Err error
}

func NewStorageUnavailableError(op string, err error) *StorageUnavailableError {
	return &StorageUnavailableError{Op: op, Err: err}
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable during %s: %v", e.Op, e.Err)
}

func (e *StorageUnavailableError) Unwrap() error { return e.Err }

// NotFoundError is reserved for operations requiring a specific known
// entity. Queries over empty windows are not errors and never produce it.
type NotFoundError struct {
	Entity string
	Key    string
}

func NewNotFoundError(entity, key string) *NotFoundError {
	return &NotFoundError{Entity: entity, Key: key}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.Key)
}

// TimeoutError reports a query that exceeded its caller-supplied deadline.
// Partial aggregates are never returned alongside it.
type TimeoutError struct {
	Op  string
	Err error
}

func NewTimeoutError(op string, err error) *TimeoutError {
	return &TimeoutError{Op: op, Err: err}
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s exceeded its deadline: %v", e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }
