// Package model contains domain models passed between layers.
package model

import (
	"encoding/json"
	"strings"
)

// EventType classifies an event in the session log.
type EventType string

// Known event types. Other values are stored as-is and only count as activity.
const (
	EventLap      EventType = "LAP"
	EventPosition EventType = "POSITION"
	EventPit      EventType = "PIT"
)

// ParseEventType normalizes a client-supplied type name.
func ParseEventType(s string) EventType {
	return EventType(strings.ToUpper(strings.TrimSpace(s)))
}

// Event is an immutable fact about session progress.
type Event struct {
	ID        int64           `json:"id"`               // store-assigned insertion sequence
	SessionID string          `json:"session_id"`       // session the event belongs to
	Type      EventType       `json:"type"`             // LAP, POSITION, PIT, ...
	Driver    string          `json:"driver,omitempty"` // empty when the event is not about a driver
	TimeSec   float64         `json:"time_sec"`         // seconds since session start
	Payload   json.RawMessage `json:"payload"`          // full event document as ingested
}

// NewEvent is an event before the store assigns its sequence.
type NewEvent struct {
	Type    EventType
	Driver  string
	TimeSec float64
	Payload json.RawMessage
}

// After reports whether e is more recent than other by (TimeSec, ID).
func (e Event) After(other Event) bool {
	if e.TimeSec != other.TimeSec {
		return e.TimeSec > other.TimeSec
	}
	return e.ID > other.ID
}

// Submission is a client event accepted for asynchronous append.
type Submission struct {
	EventID   string
	SessionID string
	Event     NewEvent
}
