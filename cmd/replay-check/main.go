package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/gridreplay/internal/racecheck"
)

// Default configuration constants.
const (
	defaultDrivers     = 20
	defaultLaps        = 30
	defaultLapTime     = 92 * time.Second
	defaultPitChance   = 0.03
	defaultMalformed   = 5
	defaultDuplicates  = 25
	defaultCheckpoints = 12
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultTimeout     = 30 * time.Second
	defaultSettle      = 30 * time.Second
	defaultPoll        = 200 * time.Millisecond
	defaultRunTimeout  = 10 * time.Minute
)

func main() {
	var (
		baseURL     = flag.String("url", "http://localhost:9080", "Base URL of the service")
		sessionID   = flag.String("session", "racecheck", "Session the race is written to")
		drivers     = flag.Int("drivers", defaultDrivers, "Drivers on the grid")
		laps        = flag.Int("laps", defaultLaps, "Laps to generate")
		lapTime     = flag.Duration("lap-time", defaultLapTime, "Nominal lap duration")
		pitChance   = flag.Float64("pit-chance", defaultPitChance, "Per lap pit stop probability")
		malformed   = flag.Int("malformed", defaultMalformed, "POSITION events sent with an unusable position")
		duplicates  = flag.Int("duplicates", defaultDuplicates, "Events resubmitted with a used event_id")
		checkpoints = flag.Int("checkpoints", defaultCheckpoints, "Cutoffs verified across the race")
		seed        = flag.Uint64("seed", 1, "Generator seed")
		workers     = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Concurrent submitters")
		timeout     = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		settle      = flag.Duration("settle", defaultSettle, "Time allowed for the store to catch up")
		outputFile  = flag.String("output", "", "Save generated events to this file")
		logFile     = flag.String("log", "", "Also write logs to this file")
		verbose     = flag.Bool("verbose", false, "Log every checkpoint")
		help        = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		racecheck.ShowHelp()
		return
	}

	closeLog, err := racecheck.SetupLogging(*logFile)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)

	cfg := &racecheck.Config{
		BaseURL:       *baseURL,
		SessionID:     *sessionID,
		Drivers:       *drivers,
		Laps:          *laps,
		LapTime:       *lapTime,
		PitChance:     *pitChance,
		Malformed:     *malformed,
		Duplicates:    *duplicates,
		Checkpoints:   *checkpoints,
		Seed:          *seed,
		Workers:       *workers,
		Timeout:       *timeout,
		SettleTimeout: *settle,
		PollInterval:  defaultPoll,
		OutputFile:    *outputFile,
		Verbose:       *verbose,
	}

	_, runErr := racecheck.Run(ctx, cfg)
	cancel()
	stop()
	_ = closeLog()

	if runErr != nil {
		os.Stderr.WriteString("Race check failed: " + runErr.Error() + "\n")
		os.Exit(1)
	}
}
