// Package replay rebuilds per-driver session state by applying events in order.
package replay

import (
	"sort"

	"github.com/okian/gridreplay/internal/domain/model"
	"github.com/tidwall/gjson"
)

// DriverState is what is known about one driver at a point in time.
type DriverState struct {
	Lap      int            `json:"lap"`
	Position model.Position `json:"position"`
	Pits     int            `json:"pits"`
}

// State maps driver to their state.
type State map[string]DriverState

// Apply folds one event into state. Events without a driver are ignored.
func Apply(state State, e model.Event) {
	if e.Driver == "" {
		return
	}
	ds := state[e.Driver]

	switch e.Type {
	case model.EventLap:
		if lap, ok := IntField(e.Payload, "lap"); ok {
			ds.Lap = lap
		}
	case model.EventPosition:
		if pos, ok := PositionFromPayload(e.Payload); ok {
			ds.Position = model.KnownPosition(pos)
		}
	case model.EventPit:
		// A running pit_count wins; otherwise each PIT is one stop.
		if pc := gjson.GetBytes(e.Payload, "pit_count"); pc.Exists() {
			n, _ := IntField(e.Payload, "pit_count")
			ds.Pits = n
		} else {
			ds.Pits++
		}
	}

	state[e.Driver] = ds
}

// Replay applies every event with TimeSec <= cutoff in (TimeSec, ID) order.
func Replay(events []model.Event, cutoff float64) State {
	sorted := make([]model.Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[j].After(sorted[i])
	})

	state := State{}
	for _, e := range sorted {
		if e.TimeSec > cutoff {
			break
		}
		Apply(state, e)
	}
	return state
}
