package service

import (
	"errors"

	"github.com/okian/gridreplay/internal/adapters/repository"
	"github.com/okian/gridreplay/internal/domain/standings"
)

// Sentinel kinds for service errors.
var (
	// ErrInvalidInput marks a request rejected before any store access.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmptyResult marks a well-formed query with nothing to show.
	ErrEmptyResult = standings.ErrEmptyResult

	// ErrStoreUnavailable marks an event store failure.
	ErrStoreUnavailable = repository.ErrStoreUnavailable

	ErrNotStarted      = errors.New("service not started")
	ErrNotConfigured   = errors.New("service dependency not configured")
	ErrBackpressure    = errors.New("event queue is full")
	ErrNothingIngested = errors.New("nothing was ingested")
)
