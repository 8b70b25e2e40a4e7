package ratelimit

import "errors"

var (
	// ErrStoreUnavailable means a quota check could not be completed. Callers
	// must not admit the request.
	ErrStoreUnavailable = errors.New("counter store unavailable")

	// ErrConfigurationMissing means the counter store address or credentials
	// were never provided.
	ErrConfigurationMissing = errors.New("counter store configuration missing")
)
