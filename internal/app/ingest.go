package service

import (
	"context"
	"fmt"

	"github.com/okian/gridreplay/internal/domain/model"
	"github.com/okian/gridreplay/pkg/logger"
	"github.com/okian/gridreplay/pkg/metrics"
)

// IngestResult reports what an OpenF1 ingest wrote.
type IngestResult struct {
	SessionID        string `json:"session_id"`
	OpenF1SessionKey int    `json:"openf1_session_key"`
	InsertedTotal    int    `json:"inserted_total"`
	Inserted         struct {
		Laps      int `json:"laps"`
		Positions int `json:"positions"`
		Pits      int `json:"pits"`
	} `json:"inserted"`
}

// DefaultIngestLimits returns the configured OpenF1 row limits.
func (s *Service) DefaultIngestLimits() IngestLimits {
	return s.limits
}

// IngestOpenF1 copies laps, positions and pit stops of an OpenF1 session
// into sessionID. Zero limits mean no limit.
func (s *Service) IngestOpenF1(ctx context.Context, sessionID string, sessionKey int, limits IngestLimits) (res IngestResult, err error) {
	defer func() {
		if err != nil {
			metrics.RecordIngestFailure()
		}
	}()

	if err := ValidateSessionID(sessionID); err != nil {
		return res, err
	}
	if sessionKey <= 0 {
		return res, fmt.Errorf("%w: openf1_session_key must be positive", ErrInvalidInput)
	}
	if limits.Laps < 0 || limits.Positions < 0 || limits.Pits < 0 {
		return res, fmt.Errorf("%w: limits must not be negative", ErrInvalidInput)
	}
	if s.store == nil || s.openf1 == nil {
		return res, fmt.Errorf("%w: event store and openf1 client are required", ErrNotConfigured)
	}

	s.logger.Info(ctx, "ingest started",
		logger.String("session_id", sessionID),
		logger.Int("openf1_session_key", sessionKey),
	)

	start, err := s.openf1.SessionStart(ctx, sessionKey)
	if err != nil {
		return res, fmt.Errorf("fetch session start: %w", err)
	}
	laps, err := s.openf1.Laps(ctx, sessionKey, start, limits.Laps)
	if err != nil {
		return res, fmt.Errorf("fetch laps: %w", err)
	}
	positions, err := s.openf1.Positions(ctx, sessionKey, start, limits.Positions)
	if err != nil {
		return res, fmt.Errorf("fetch positions: %w", err)
	}
	pits, err := s.openf1.Pits(ctx, sessionKey, start, limits.Pits)
	if err != nil {
		return res, fmt.Errorf("fetch pits: %w", err)
	}

	res.SessionID = sessionID
	res.OpenF1SessionKey = sessionKey

	// One append keeps the ingest all-or-nothing across kinds.
	events := make([]model.NewEvent, 0, len(laps)+len(positions)+len(pits))
	events = append(append(append(events, laps...), positions...), pits...)
	if len(events) > 0 {
		n, err := s.store.Append(ctx, sessionID, events)
		if err != nil {
			return res, fmt.Errorf("store events: %w", err)
		}
		res.InsertedTotal = n
		res.Inserted.Laps = len(laps)
		res.Inserted.Positions = len(positions)
		res.Inserted.Pits = len(pits)
		metrics.RecordIngestEvents("laps", len(laps))
		metrics.RecordIngestEvents("positions", len(positions))
		metrics.RecordIngestEvents("pits", len(pits))
	}

	if res.InsertedTotal == 0 {
		s.logger.Error(ctx, "ingest produced no events",
			logger.String("session_id", sessionID),
			logger.Int("openf1_session_key", sessionKey),
		)
		return res, fmt.Errorf("%w: check openf1_session_key", ErrNothingIngested)
	}

	s.logger.Info(ctx, "ingest finished",
		logger.String("session_id", sessionID),
		logger.Int("total_inserted", res.InsertedTotal),
	)
	return res, nil
}

// IngestOpenF1Drivers copies driver metadata of an OpenF1 session into sessionID.
func (s *Service) IngestOpenF1Drivers(ctx context.Context, sessionID string, sessionKey int) (n int, err error) {
	defer func() {
		if err != nil {
			metrics.RecordIngestFailure()
		}
	}()

	if err := ValidateSessionID(sessionID); err != nil {
		return 0, err
	}
	if sessionKey <= 0 {
		return 0, fmt.Errorf("%w: openf1_session_key must be positive", ErrInvalidInput)
	}
	if s.drivers == nil || s.openf1 == nil {
		return 0, fmt.Errorf("%w: driver directory and openf1 client are required", ErrNotConfigured)
	}

	drivers, err := s.openf1.Drivers(ctx, sessionKey)
	if err != nil {
		return 0, fmt.Errorf("fetch drivers: %w", err)
	}
	n, err = s.drivers.UpsertDrivers(ctx, sessionID, drivers)
	if err != nil {
		return 0, fmt.Errorf("store drivers: %w", err)
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: check openf1_session_key", ErrNothingIngested)
	}
	metrics.RecordIngestEvents("drivers", n)
	return n, nil
}
