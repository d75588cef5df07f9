package model

// PositionObservation is the newest usable POSITION event for one driver.
type PositionObservation struct {
	Position        int
	ObservedTimeSec float64
	Sequence        int64
}

// Snapshot is one participant's reconstructed state at a cutoff.
type Snapshot struct {
	Driver       string
	Position     Position
	ObservedTime ObservedTime
}

// Entry is a leaderboard row.
type Entry struct {
	Driver       string       `json:"driver"`
	Code         string       `json:"code,omitempty"`
	Name         string       `json:"name,omitempty"`
	Position     Position     `json:"position"`
	ObservedTime ObservedTime `json:"observed_time_sec"`
	AsOfTimeSec  float64      `json:"as_of_time_sec"`
	Inferred     bool         `json:"inferred"`
}

// Leaderboard is the ranked result for one (session, cutoff) query.
type Leaderboard struct {
	SessionID   string  `json:"session_id"`
	AsOfTimeSec float64 `json:"as_of_time_sec"`
	Entries     []Entry `json:"leaderboard"`
}

// DriverInfo is display metadata for a driver within a session.
type DriverInfo struct {
	Driver string `json:"driver"`
	Code   string `json:"code,omitempty"`
	Name   string `json:"name,omitempty"`
}

// SessionSummary describes one session present in the store.
type SessionSummary struct {
	SessionID  string     `json:"session_id"`
	EventCount int        `json:"event_count"`
	TimeRange  [2]float64 `json:"time_range"`
}
