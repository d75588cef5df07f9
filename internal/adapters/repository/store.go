// Package repository defines the event store contracts and their SQLite
// implementation.
package repository

import (
	"context"

	"github.com/okian/gridreplay/internal/domain/model"
)

// View is a read-only projection of one consistent snapshot of the event log.
type View interface {
	// ActiveDrivers returns the distinct drivers with at least one event at or
	// before cutoff, ordered by first appearance.
	ActiveDrivers(ctx context.Context, sessionID string, cutoff float64) ([]string, error)

	// LatestPositions returns, per driver, the newest POSITION event at or
	// before cutoff that carries a usable position. Recency is (time_sec, id).
	LatestPositions(ctx context.Context, sessionID string, cutoff float64) (map[string]model.PositionObservation, error)
}

// EventStore is the append-only session event log.
type EventStore interface {
	// ReadView runs fn against a single consistent read snapshot.
	ReadView(ctx context.Context, fn func(View) error) error

	// Append stores events for a session atomically and returns how many were written.
	Append(ctx context.Context, sessionID string, events []model.NewEvent) (int, error)

	// LoadEvents returns a session's events ordered by (time_sec, id).
	// A nil until loads everything.
	LoadEvents(ctx context.Context, sessionID string, until *float64) ([]model.Event, error)

	// DeleteSession removes every event of a session.
	DeleteSession(ctx context.Context, sessionID string) (int64, error)

	// Sessions summarizes each session in the store.
	Sessions(ctx context.Context) ([]model.SessionSummary, error)

	Close() error
}

// DriverDirectory stores driver display metadata per session.
type DriverDirectory interface {
	UpsertDrivers(ctx context.Context, sessionID string, drivers []model.DriverInfo) (int, error)
	DriverMap(ctx context.Context, sessionID string) (map[string]model.DriverInfo, error)
}
