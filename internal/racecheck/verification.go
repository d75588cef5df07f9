package racecheck

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/okian/gridreplay/internal/domain/model"
	"github.com/okian/gridreplay/internal/domain/replay"
	"github.com/okian/gridreplay/internal/domain/standings"
)

// expectedLeaderboard rebuilds the leaderboard the service should serve at
// cutoff from the events that were submitted.
func expectedLeaderboard(sessionID string, events []Event, cutoff float64) (model.Leaderboard, error) {
	firstSeen := make(map[string]float64)
	latest := make(map[string]model.PositionObservation)

	for i := range events {
		e := &events[i]
		if e.Driver == "" || e.TimeSec > cutoff {
			continue
		}
		if t, ok := firstSeen[e.Driver]; !ok || e.TimeSec < t {
			firstSeen[e.Driver] = e.TimeSec
		}
		if e.Type != typePosition {
			continue
		}
		pos, ok := positionOf(e)
		if !ok {
			continue
		}
		if prev, seen := latest[e.Driver]; !seen || e.TimeSec > prev.ObservedTimeSec {
			latest[e.Driver] = model.PositionObservation{Position: pos, ObservedTimeSec: e.TimeSec}
		}
	}

	active := make([]string, 0, len(firstSeen))
	for d := range firstSeen {
		active = append(active, d)
	}
	sort.Slice(active, func(i, j int) bool {
		ti, tj := firstSeen[active[i]], firstSeen[active[j]]
		if ti != tj {
			return ti < tj
		}
		return active[i] < active[j]
	})

	lb, _, err := standings.Synthesize(sessionID, cutoff, active, latest)
	return lb, err
}

// positionOf reads the position the way the service reads a stored payload.
func positionOf(e *Event) (int, bool) {
	payload, err := json.Marshal(e)
	if err != nil {
		return 0, false
	}
	return replay.PositionFromPayload(payload)
}

// compareLeaderboards reports the first difference in driver, position or
// inference between two leaderboards.
func compareLeaderboards(want, got model.Leaderboard) error {
	if len(want.Entries) != len(got.Entries) {
		return fmt.Errorf("%w: %d entries, want %d", ErrMismatch, len(got.Entries), len(want.Entries))
	}
	for i := range want.Entries {
		w, g := want.Entries[i], got.Entries[i]
		if w.Driver != g.Driver {
			return fmt.Errorf("%w: row %d is %s, want %s", ErrMismatch, i+1, g.Driver, w.Driver)
		}
		if w.Position != g.Position {
			return fmt.Errorf("%w: %s position %s, want %s", ErrMismatch, w.Driver, describePosition(g.Position), describePosition(w.Position))
		}
		if w.Inferred != g.Inferred {
			return fmt.Errorf("%w: %s inferred=%t, want %t", ErrMismatch, w.Driver, g.Inferred, w.Inferred)
		}
	}
	return nil
}

func describePosition(p model.Position) string {
	if n, ok := p.Get(); ok {
		return fmt.Sprintf("P%d", n)
	}
	return "unknown"
}

// checkpoints returns n cutoffs spread over the race plus one before any event.
func checkpoints(race Race, n int) []float64 {
	out := []float64{0}
	step := race.End / float64(n)
	for i := 1; i <= n; i++ {
		out = append(out, roundMillis(step*float64(i)))
	}
	return out
}
