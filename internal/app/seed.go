package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/okian/gridreplay/internal/domain/model"
	"github.com/okian/gridreplay/pkg/logger"
)

// demoEvents is a minimal session: VER laps, pits and reports P1 while LEC
// only completes a lap.
var demoEvents = []struct {
	typ    model.EventType
	driver string
	time   float64
	field  string
	value  int
}{
	{model.EventLap, "VER", 10, "lap", 1},
	{model.EventLap, "LEC", 25, "lap", 1},
	{model.EventPit, "VER", 30, "pit_count", 1},
	{model.EventPosition, "VER", 40, "position", 1},
}

// Seed appends the demo events to sessionID.
func (s *Service) Seed(ctx context.Context, sessionID string) (int, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return 0, err
	}
	if s.store == nil {
		return 0, fmt.Errorf("%w: event store", ErrNotConfigured)
	}

	events := make([]model.NewEvent, 0, len(demoEvents))
	for _, d := range demoEvents {
		payload, err := json.Marshal(map[string]any{
			"type":     d.typ,
			"driver":   d.driver,
			"time_sec": d.time,
			d.field:    d.value,
		})
		if err != nil {
			return 0, fmt.Errorf("encode demo event: %w", err)
		}
		events = append(events, model.NewEvent{Type: d.typ, Driver: d.driver, TimeSec: d.time, Payload: payload})
	}

	n, err := s.store.Append(ctx, sessionID, events)
	if err != nil {
		return 0, fmt.Errorf("seed session: %w", err)
	}
	s.logger.Info(ctx, "session seeded", logger.String("session_id", sessionID), logger.Int("inserted", n))
	return n, nil
}
