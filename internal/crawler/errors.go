package crawler

import (
	"errors"
	"fmt"
)

// ErrUnmappedCategory is returned when a URL's path segment matches no category.
var ErrUnmappedCategory = errors.New("no category matches url")

// ErrStoreUnavailable wraps every progress store failure.
var ErrStoreUnavailable = errors.New("progress store unavailable")

// TransportError indicates a failed fetch or a non-success HTTP status.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StoreError wraps a backend error so callers can match ErrStoreUnavailable.
func StoreError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
