// Package racecheck drives a running replay service end to end: it synthesizes a
// race, submits it over HTTP and checks the served leaderboards against a
// local reconstruction.
package racecheck

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidConfig is returned when a race check configuration cannot be run.
var ErrInvalidConfig = errors.New("invalid race check config")

// ErrMismatch is returned when a served leaderboard differs from the local one.
var ErrMismatch = errors.New("leaderboard mismatch")

// Config holds configuration for a race check run.
type Config struct {
	BaseURL       string        // Base URL of the service
	SessionID     string        // Session the synthetic race is written to
	Drivers       int           // Number of drivers on the grid
	Laps          int           // Number of laps to generate
	LapTime       time.Duration // Nominal lap duration
	PitChance     float64       // Per lap, per driver probability of a pit stop
	Malformed     int           // POSITION events sent with an unusable position
	Duplicates    int           // Events resubmitted with an already used event_id
	Checkpoints   int           // Cutoffs verified across the race
	Seed          uint64        // Seed for the race generator
	Workers       int           // Number of concurrent submitters
	Timeout       time.Duration // HTTP request timeout
	SettleTimeout time.Duration // How long to wait for the store to catch up
	PollInterval  time.Duration // Delay between settle polls
	OutputFile    string        // Optional file the generated events are saved to
	Verbose       bool          // Log every checkpoint
}

// Validate checks the fields a run cannot start without.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.BaseURL) == "":
		return fmt.Errorf("%w: base url is required", ErrInvalidConfig)
	case strings.TrimSpace(c.SessionID) == "":
		return fmt.Errorf("%w: session id is required", ErrInvalidConfig)
	case c.Drivers < 1 || c.Drivers > len(gridCodes):
		return fmt.Errorf("%w: drivers must be between 1 and %d", ErrInvalidConfig, len(gridCodes))
	case c.Laps < 1:
		return fmt.Errorf("%w: laps must be positive", ErrInvalidConfig)
	case c.LapTime < time.Second:
		return fmt.Errorf("%w: lap time must be at least one second", ErrInvalidConfig)
	case c.PitChance < 0 || c.PitChance > 1:
		return fmt.Errorf("%w: pit chance must be within [0, 1]", ErrInvalidConfig)
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	case c.Checkpoints < 1:
		return fmt.Errorf("%w: checkpoints must be positive", ErrInvalidConfig)
	case c.Malformed < 0 || c.Duplicates < 0:
		return fmt.Errorf("%w: malformed and duplicates must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Event is a submitted race event in its wire form.
type Event struct {
	EventID   string  `json:"event_id"`
	SessionID string  `json:"session_id"`
	Type      string  `json:"type"`
	Driver    string  `json:"driver"`
	TimeSec   float64 `json:"time_sec"`
	Lap       int     `json:"lap,omitempty"`
	Position  any     `json:"position,omitempty"`
	PitCount  int     `json:"pit_count,omitempty"`
}

// AckResponse represents the response from event submission.
type AckResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
	EventID   string `json:"event_id"`
}

// Stats holds run statistics.
type Stats struct {
	EventsGenerated     int
	EventsAccepted      int
	EventsDuplicate     int
	EventsFailed        int
	EventsRetried       int
	EventsStored        int
	CheckpointsVerified int
	CheckpointsFailed   int
	StartTime           time.Time
	EndTime             time.Time
	Duration            time.Duration
}
