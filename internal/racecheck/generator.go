package racecheck

import (
	"math"
	"math/rand/v2"

	"github.com/google/uuid"
)

// Event types as accepted by the service.
const (
	typeLap      = "LAP"
	typePosition = "POSITION"
	typePit      = "PIT"
)

const (
	// slotGap separates grid slots in time so no two drivers share a timestamp.
	slotGap = 0.25
	// slotJitter stays below slotGap.
	slotJitter = 0.1
	// positionDelay places a POSITION report just after its LAP event.
	positionDelay = 0.002
	// swapChance is the per lap probability of an overtake among the chasers.
	swapChance = 0.4
)

var gridCodes = []string{
	"VER", "PER", "HAM", "RUS", "LEC", "SAI", "NOR", "PIA", "ALO", "STR",
	"GAS", "OCO", "ALB", "SAR", "TSU", "RIC", "HUL", "MAG", "BOT", "ZHO",
}

// Race is a generated session.
type Race struct {
	Events []Event
	// Leader is the driver whose POSITION reports are never sent.
	Leader string
	// Grid lists drivers in the order they first appear.
	Grid []string
	// End is the time of the last event.
	End float64
}

// generateRace synthesizes a deterministic race for cfg.Seed.
//
// The leader never reports a position, so every cutoff after the first lap
// exercises leader inference. The chasers swap places on some laps and the
// configured number of their POSITION reports carry an unusable position.
func generateRace(cfg *Config) Race {
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	lapTime := cfg.LapTime.Seconds()

	grid := make([]string, cfg.Drivers)
	for i, j := range rng.Perm(cfg.Drivers) {
		grid[i] = gridCodes[j]
	}
	// running order of the chasers, P2 onwards
	chasers := append([]string(nil), grid[1:]...)

	race := Race{Leader: grid[0], Grid: grid}
	pits := make(map[string]int, cfg.Drivers)
	newEvent := func(typ, driver string, t float64) Event {
		t = roundMillis(t)
		if t > race.End {
			race.End = t
		}
		return Event{
			EventID:   uuid.NewString(),
			SessionID: cfg.SessionID,
			Type:      typ,
			Driver:    driver,
			TimeSec:   t,
		}
	}

	var positions []int
	for lap := 1; lap <= cfg.Laps; lap++ {
		if len(chasers) > 1 && rng.Float64() < swapChance {
			i := rng.IntN(len(chasers) - 1)
			chasers[i], chasers[i+1] = chasers[i+1], chasers[i]
		}
		place := make(map[string]int, len(chasers))
		for i, d := range chasers {
			place[d] = i + 2
		}

		for slot, driver := range grid {
			t := float64(lap)*lapTime + float64(slot)*slotGap + rng.Float64()*slotJitter

			e := newEvent(typeLap, driver, t)
			e.Lap = lap
			race.Events = append(race.Events, e)

			if driver != race.Leader {
				e := newEvent(typePosition, driver, t+positionDelay)
				e.Position = place[driver]
				positions = append(positions, len(race.Events))
				race.Events = append(race.Events, e)
			}

			if rng.Float64() < cfg.PitChance {
				pits[driver]++
				e := newEvent(typePit, driver, t+lapTime/2)
				e.PitCount = pits[driver]
				race.Events = append(race.Events, e)
			}
		}
	}

	for n := 0; n < cfg.Malformed && len(positions) > 0; n++ {
		k := rng.IntN(len(positions))
		race.Events[positions[k]].Position = "P?"
		positions = append(positions[:k], positions[k+1:]...)
	}
	return race
}

func roundMillis(t float64) float64 {
	return math.Round(t*1000) / 1000
}
