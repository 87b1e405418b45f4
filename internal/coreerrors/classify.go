package coreerrors

import (
	"context"
	"errors"
)

// FromDBError wraps a database round-trip failure into the taxonomy.
// Deadline and cancellation failures become TimeoutError, everything else
// StorageUnavailableError. A nil error stays nil.
func FromDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewTimeoutError(op, err)
	}
	return NewStorageUnavailableError(op, err)
}
