package counterstore

import (
	"fmt"

	"imagegate/internal/ratelimit"
)

// StoreError describes a failed counter store command. It always matches
// ratelimit.ErrStoreUnavailable with errors.Is.
type StoreError struct {
	Op         string // command, e.g. INCR
	Key        string
	StatusCode int    // HTTP status for the REST backend, zero otherwise
	Message    string // backend-supplied error text
	Err        error  // underlying transport or driver error
}

func (e *StoreError) Error() string {
	msg := fmt.Sprintf("counter store %s", e.Op)
	if e.Key != "" {
		msg += " " + e.Key
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StoreError) Unwrap() []error {
	if e.Err == nil {
		return []error{ratelimit.ErrStoreUnavailable}
	}
	return []error{ratelimit.ErrStoreUnavailable, e.Err}
}
