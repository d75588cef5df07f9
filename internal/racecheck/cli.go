package racecheck

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/okian/gridreplay/pkg/logger"
)

const logFilePermission = 0o600

// SetupLogging routes race check logs to stdout and, when logFile is set, to that
// file as well. The returned close function releases the file.
func SetupLogging(logFile string) (func() error, error) {
	if logFile == "" {
		return func() error { return nil }, logger.Init()
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	if err := logger.InitWithWriter(io.MultiWriter(os.Stdout, file)); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return file.Close, nil
}

// ShowHelp prints usage information for the race check.
func ShowHelp() {
	os.Stdout.WriteString(`GridReplay Race Check
=====================

Synthesizes a race, submits it to a running gridreplay service and checks
the served leaderboards against a local reconstruction.

Usage:
  go run ./cmd/replay-check [options]

Options:
  -url string          Base URL of the service (default "http://localhost:9080")
  -session string      Session the race is written to (default "racecheck")
  -drivers int         Drivers on the grid, at most 20 (default 20)
  -laps int            Laps to generate (default 30)
  -lap-time duration   Nominal lap duration (default 1m32s)
  -pit-chance float    Per lap pit stop probability (default 0.03)
  -malformed int       POSITION events sent with an unusable position (default 5)
  -duplicates int      Events resubmitted with a used event_id (default 25)
  -checkpoints int     Cutoffs verified across the race (default 12)
  -seed uint           Generator seed (default 1)
  -workers int         Concurrent submitters (default CPU cores * 2)
  -timeout duration    HTTP request timeout (default 30s)
  -settle duration     Time allowed for the store to catch up (default 30s)
  -output string       Save generated events to this file
  -log string          Also write logs to this file
  -verbose             Log every checkpoint
  -help                Show this help message

Examples:
  # Check a local service with the defaults
  go run ./cmd/replay-check

  # A short race against another host
  go run ./cmd/replay-check -url http://localhost:8080 -drivers 6 -laps 5 -verbose
`)
}
