package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/okian/gridreplay/internal/adapters/repository"
	"github.com/okian/gridreplay/internal/domain/model"
	"github.com/okian/gridreplay/internal/domain/replay"
	"github.com/okian/gridreplay/internal/domain/standings"
	"github.com/okian/gridreplay/pkg/logger"
	"github.com/okian/gridreplay/pkg/metrics"
)

// ValidateSessionID rejects empty session ids and ids with surrounding
// whitespace. Ids are stored and queried exactly as given.
func ValidateSessionID(sessionID string) error {
	switch {
	case strings.TrimSpace(sessionID) == "":
		return fmt.Errorf("%w: session_id must not be empty", ErrInvalidInput)
	case strings.TrimSpace(sessionID) != sessionID:
		return fmt.Errorf("%w: session_id must not have leading or trailing whitespace", ErrInvalidInput)
	}
	return nil
}

// ValidateQuery checks a (session, cutoff) pair. Errors wrap ErrInvalidInput.
func ValidateQuery(sessionID string, cutoff float64) error {
	if err := ValidateSessionID(sessionID); err != nil {
		return err
	}
	switch {
	case math.IsNaN(cutoff) || math.IsInf(cutoff, 0):
		return fmt.Errorf("%w: time_sec must be a finite number", ErrInvalidInput)
	case cutoff < 0:
		return fmt.Errorf("%w: time_sec must be >= 0", ErrInvalidInput)
	}
	return nil
}

// ComputeLeaderboard ranks every driver active in sessionID at cutoff.
//
// Both store reads happen inside one read view. A driver without a usable
// position is ranked after all known positions, except that a single such
// driver is presumed to lead when nobody holds P1.
func (s *Service) ComputeLeaderboard(ctx context.Context, sessionID string, cutoff float64) (lb model.Leaderboard, diag standings.Diagnostics, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordLeaderboardQuery(outcome(err))
		metrics.RecordReconstructionDuration("leaderboard", float64(time.Since(start).Nanoseconds())/nanosPerMillisecond)
	}()

	if err := ValidateQuery(sessionID, cutoff); err != nil {
		return model.Leaderboard{}, standings.Diagnostics{}, err
	}
	if s.store == nil {
		return model.Leaderboard{}, standings.Diagnostics{}, fmt.Errorf("%w: event store", ErrNotConfigured)
	}

	var (
		active []string
		latest map[string]model.PositionObservation
	)
	err = s.store.ReadView(ctx, func(v repository.View) error {
		var err error
		if active, err = v.ActiveDrivers(ctx, sessionID, cutoff); err != nil {
			return fmt.Errorf("active drivers: %w", err)
		}
		if latest, err = v.LatestPositions(ctx, sessionID, cutoff); err != nil {
			return fmt.Errorf("latest positions: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error(ctx, "leaderboard read failed",
			logger.String("session_id", sessionID),
			logger.Float64("time_sec", cutoff),
			logger.Error(err),
		)
		return model.Leaderboard{}, standings.Diagnostics{}, err
	}

	lb, diag, err = standings.Synthesize(sessionID, cutoff, active, latest)
	if err != nil {
		return model.Leaderboard{}, standings.Diagnostics{}, err
	}
	if diag.InferredDriver != "" {
		metrics.RecordLeaderboardInference()
		s.logger.Debug(ctx, "inferred leader",
			logger.String("session_id", sessionID),
			logger.String("driver", diag.InferredDriver),
		)
	}
	metrics.ObserveLeaderboardEntries(len(lb.Entries))

	s.enrich(ctx, sessionID, lb.Entries)
	return lb, diag, nil
}

// enrich fills driver code and name where metadata exists. Metadata is
// optional, so a lookup failure only loses the labels.
func (s *Service) enrich(ctx context.Context, sessionID string, entries []model.Entry) {
	if s.drivers == nil || len(entries) == 0 {
		return
	}
	meta, err := s.drivers.DriverMap(ctx, sessionID)
	if err != nil {
		s.logger.Warn(ctx, "driver metadata unavailable",
			logger.String("session_id", sessionID),
			logger.Error(err),
		)
		return
	}
	for i := range entries {
		if d, ok := meta[entries[i].Driver]; ok {
			entries[i].Code = d.Code
			entries[i].Name = d.Name
		}
	}
}

// State replays sessionID up to cutoff. When driver is set only that driver
// is returned, with a zero state if it has no events yet.
func (s *Service) State(ctx context.Context, sessionID string, cutoff float64, driver string) (state replay.State, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordStateQuery(outcome(err))
		metrics.RecordReconstructionDuration("state", float64(time.Since(start).Nanoseconds())/nanosPerMillisecond)
	}()

	if err := ValidateQuery(sessionID, cutoff); err != nil {
		return nil, err
	}
	if s.store == nil {
		return nil, fmt.Errorf("%w: event store", ErrNotConfigured)
	}

	events, err := s.store.LoadEvents(ctx, sessionID, &cutoff)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	if len(events) == 0 {
		return nil, ErrEmptyResult
	}

	state = replay.Replay(events, cutoff)
	if driver = strings.TrimSpace(driver); driver != "" {
		return replay.State{driver: state[driver]}, nil
	}
	return state, nil
}

// Events lists a session's events, optionally up to until.
func (s *Service) Events(ctx context.Context, sessionID string, until *float64) ([]model.Event, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	if until != nil {
		if err := ValidateQuery(sessionID, *until); err != nil {
			return nil, err
		}
	}
	if s.store == nil {
		return nil, fmt.Errorf("%w: event store", ErrNotConfigured)
	}
	return s.store.LoadEvents(ctx, sessionID, until)
}

// Sessions summarizes every session in the store.
func (s *Service) Sessions(ctx context.Context) ([]model.SessionSummary, error) {
	if s.store == nil {
		return nil, fmt.Errorf("%w: event store", ErrNotConfigured)
	}
	return s.store.Sessions(ctx)
}

// Reset deletes every event of a session and returns how many were removed.
func (s *Service) Reset(ctx context.Context, sessionID string) (int64, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return 0, err
	}
	if s.store == nil {
		return 0, fmt.Errorf("%w: event store", ErrNotConfigured)
	}
	n, err := s.store.DeleteSession(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	s.logger.Info(ctx, "session reset",
		logger.String("session_id", sessionID),
		logger.Int64("deleted", n),
	)
	return n, nil
}

// outcome labels a query result for metrics.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrEmptyResult):
		return "empty_result"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "error"
	}
}
