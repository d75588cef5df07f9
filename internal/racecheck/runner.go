package racecheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/gridreplay/internal/domain/standings"
	"github.com/okian/gridreplay/pkg/logger"
)

const (
	directoryPermission = 0o750
	percentMultiplier   = 100
)

// Run executes a complete race check against the service and returns its statistics.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logger.Named("racecheck")
	stats := &Stats{StartTime: time.Now()}
	client := newHTTPClient(cfg.BaseURL, cfg.Timeout)

	log.Info(ctx, "starting race check",
		logger.String("baseURL", cfg.BaseURL),
		logger.String("session_id", cfg.SessionID),
		logger.Int("drivers", cfg.Drivers),
		logger.Int("laps", cfg.Laps),
		logger.Int("workers", cfg.Workers),
		logger.Any("seed", cfg.Seed))

	if err := client.health(ctx); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	deleted, err := client.reset(ctx, cfg.SessionID)
	if err != nil {
		return stats, fmt.Errorf("session reset failed: %w", err)
	}
	log.Info(ctx, "session reset", logger.Int64("deleted", deleted))

	race := generateRace(cfg)
	stats.EventsGenerated = len(race.Events)
	log.Info(ctx, "race generated",
		logger.Int("events", len(race.Events)),
		logger.String("leader", race.Leader),
		logger.Float64("end_time_sec", race.End))

	submitEvents(ctx, cfg, client, race.Events, stats)
	if dups := pickDuplicates(cfg, race.Events); len(dups) > 0 {
		submitEvents(ctx, cfg, client, dups, stats)
	}

	if err := waitForStore(ctx, cfg, client, stats); err != nil {
		return stats, fmt.Errorf("waiting for events to be stored: %w", err)
	}

	verifyErr := verifyCheckpoints(ctx, cfg, client, race, stats)

	if cfg.OutputFile != "" {
		if err := saveEventsToFile(ctx, cfg.OutputFile, race.Events); err != nil {
			log.Warn(ctx, "failed to save events to file", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)

	if verifyErr != nil {
		return stats, verifyErr
	}
	log.Info(ctx, "race check completed successfully")
	return stats, nil
}

// pickDuplicates returns copies of already submitted events to resend.
func pickDuplicates(cfg *Config, events []Event) []Event {
	n := min(cfg.Duplicates, len(events))
	if n == 0 {
		return nil
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, uint64(len(events))))
	out := make([]Event, 0, n)
	for _, i := range rng.Perm(len(events))[:n] {
		out = append(out, events[i])
	}
	return out
}

// waitForStore polls until every accepted event is visible or SettleTimeout passes.
func waitForStore(ctx context.Context, cfg *Config, client *HTTPClient, stats *Stats) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.SettleTimeout)
	defer cancel()

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		stored, err := client.storedEvents(ctx, cfg.SessionID)
		if err != nil && !errors.Is(err, errNotFound) {
			return err
		}
		stats.EventsStored = stored
		if stored >= stats.EventsAccepted {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%d of %d accepted events stored: %w", stored, stats.EventsAccepted, ctx.Err())
		case <-ticker.C:
		}
	}
}

// verifyCheckpoints compares served leaderboards with local reconstructions.
func verifyCheckpoints(ctx context.Context, cfg *Config, client *HTTPClient, race Race, stats *Stats) error {
	log := logger.Named("racecheck")
	var errs []error

	for _, cutoff := range checkpoints(race, cfg.Checkpoints) {
		want, wantErr := expectedLeaderboard(cfg.SessionID, race.Events, cutoff)
		got, gotErr := client.leaderboard(ctx, cfg.SessionID, cutoff)

		var err error
		switch {
		case errors.Is(wantErr, standings.ErrEmptyResult):
			if !errors.Is(gotErr, errNotFound) {
				err = fmt.Errorf("%w: at %.3f expected no leaderboard, got %v", ErrMismatch, cutoff, gotErr)
			}
		case wantErr != nil:
			err = wantErr
		case gotErr != nil:
			err = fmt.Errorf("at %.3f: %w", cutoff, gotErr)
		default:
			if cmpErr := compareLeaderboards(want, got); cmpErr != nil {
				err = fmt.Errorf("at %.3f: %w", cutoff, cmpErr)
			}
		}

		if err != nil {
			stats.CheckpointsFailed++
			errs = append(errs, err)
			log.Warn(ctx, "checkpoint mismatch", logger.Float64("time_sec", cutoff), logger.Error(err))
			continue
		}
		stats.CheckpointsVerified++
		if cfg.Verbose {
			log.Info(ctx, "checkpoint verified",
				logger.Float64("time_sec", cutoff),
				logger.Int("entries", len(want.Entries)))
		}
	}
	return errors.Join(errs...)
}

// saveEventsToFile writes the generated events as a JSON array.
func saveEventsToFile(ctx context.Context, filename string, events []Event) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	logger.Named("racecheck").Info(ctx, "events saved to file", logger.String("filename", filename))
	return nil
}

func displayFinalStats(ctx context.Context, stats *Stats) {
	var acceptRate, eventsPerSecond float64
	submitted := stats.EventsAccepted + stats.EventsDuplicate + stats.EventsFailed
	if submitted > 0 {
		acceptRate = float64(stats.EventsAccepted) / float64(submitted) * percentMultiplier
	}
	if stats.Duration > 0 {
		eventsPerSecond = float64(submitted) / stats.Duration.Seconds()
	}

	logger.Named("racecheck").Info(ctx, "final statistics",
		logger.Int("eventsGenerated", stats.EventsGenerated),
		logger.Int("eventsAccepted", stats.EventsAccepted),
		logger.Int("eventsDuplicate", stats.EventsDuplicate),
		logger.Int("eventsFailed", stats.EventsFailed),
		logger.Int("eventsRetried", stats.EventsRetried),
		logger.Int("eventsStored", stats.EventsStored),
		logger.Int("checkpointsVerified", stats.CheckpointsVerified),
		logger.Int("checkpointsFailed", stats.CheckpointsFailed),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("acceptRate", acceptRate),
		logger.Float64("eventsPerSecond", eventsPerSecond))
}
