// Package standings synthesizes a ranked leaderboard from reconstructed
// participant state. Every function here is pure.
package standings

import (
	"sort"

	"github.com/okian/gridreplay/internal/domain/model"
)

// Diagnostics describes how a leaderboard was derived.
type Diagnostics struct {
	KnownPositions []int    `json:"known_positions"`
	UnknownDrivers []string `json:"missing_position_drivers"`
	InferredDriver string   `json:"inferred_driver,omitempty"`
}

// BuildSnapshots creates one snapshot per active driver, in the order of active.
// Drivers without an observation get an unknown position and time.
func BuildSnapshots(active []string, latest map[string]model.PositionObservation) []model.Snapshot {
	snapshots := make([]model.Snapshot, 0, len(active))
	for _, driver := range active {
		s := model.Snapshot{Driver: driver}
		if obs, ok := latest[driver]; ok {
			s.Position = model.KnownPosition(obs.Position)
			s.ObservedTime = model.KnownTime(obs.ObservedTimeSec)
		}
		snapshots = append(snapshots, s)
	}
	return snapshots
}

// InferLeader applies the single missing leader rule: when nobody holds P1
// and exactly one snapshot has an unknown position, that snapshot is presumed
// to be leading. It returns the index of that snapshot.
func InferLeader(snapshots []model.Snapshot) (int, bool) {
	unknown := -1
	for i, s := range snapshots {
		if s.Position.Is(1) {
			return -1, false
		}
		if !s.Position.IsKnown() {
			if unknown >= 0 {
				return -1, false
			}
			unknown = i
		}
	}
	if unknown < 0 {
		return -1, false
	}
	return unknown, true
}

// Order sorts entries ascending by position with unknown positions last.
// Equal positions keep their incoming order.
func Order(entries []model.Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Position.Less(entries[j].Position)
	})
}

// Synthesize builds the leaderboard for sessionID at cutoff.
// It returns ErrEmptyResult when no driver was active.
func Synthesize(sessionID string, cutoff float64, active []string, latest map[string]model.PositionObservation) (model.Leaderboard, Diagnostics, error) {
	snapshots := BuildSnapshots(active, latest)
	if len(snapshots) == 0 {
		return model.Leaderboard{}, Diagnostics{}, ErrEmptyResult
	}

	diag := describe(snapshots)

	entries := make([]model.Entry, len(snapshots))
	for i, s := range snapshots {
		entries[i] = model.Entry{
			Driver:       s.Driver,
			Position:     s.Position,
			ObservedTime: s.ObservedTime,
			AsOfTimeSec:  cutoff,
		}
	}

	if idx, ok := InferLeader(snapshots); ok {
		entries[idx].Position = model.KnownPosition(1)
		entries[idx].Inferred = true
		diag.InferredDriver = entries[idx].Driver
	}

	Order(entries)

	return model.Leaderboard{
		SessionID:   sessionID,
		AsOfTimeSec: cutoff,
		Entries:     entries,
	}, diag, nil
}

func describe(snapshots []model.Snapshot) Diagnostics {
	d := Diagnostics{
		KnownPositions: []int{},
		UnknownDrivers: []string{},
	}
	seen := make(map[int]struct{}, len(snapshots))
	for _, s := range snapshots {
		p, ok := s.Position.Get()
		if !ok {
			d.UnknownDrivers = append(d.UnknownDrivers, s.Driver)
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		d.KnownPositions = append(d.KnownPositions, p)
	}
	sort.Ints(d.KnownPositions)
	return d
}
