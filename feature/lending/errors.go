package lending

import (
	"context"
	"errors"
	"fmt"
	"time"

	"book-circulation/core/store"
)

var (
	// ErrNotFound is returned when a referenced item or user does not exist.
	ErrNotFound = errors.New("not found")
	// ErrOwnershipMismatch is returned when a return is requested by someone other than the holder.
	ErrOwnershipMismatch = errors.New("item is not held by this user")
	// ErrInvariantViolation is returned when a bulk hold modifies a different
	// number of rows than the candidate query predicted.
	ErrInvariantViolation = errors.New("bulk hold modified an unexpected number of items")
	// ErrStoreUnavailable wraps database failures; the outcome of the request is unknown.
	ErrStoreUnavailable = store.ErrUnavailable
)

// DispatchTimeoutError is returned when dispatched tasks do not all report
// within the await timeout. Partial holds the outcomes that did arrive;
// Pending lists the items whose outcome is unknown.
type DispatchTimeoutError struct {
	Partial Partition
	Pending []string
	Timeout time.Duration
}

func (e *DispatchTimeoutError) Error() string {
	return fmt.Sprintf("checkout dispatch timed out after %s with %d items pending", e.Timeout, len(e.Pending))
}

func (e *DispatchTimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}
