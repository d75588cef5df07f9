package repository

import "errors"

// Sentinel kinds for event store errors.
var (
	// ErrStoreUnavailable marks infrastructure failures of the event store.
	// The underlying driver error stays in the chain.
	ErrStoreUnavailable = errors.New("event store unavailable")
	ErrInvalidEvent     = errors.New("invalid event")
	ErrNotConfigured    = errors.New("event store is not configured")
)
