// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers defaults, an optional YAML file and GRIDREPLAY_* env vars.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"runtime"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`
	// DBPath is the SQLite event store file.
	DBPath string `koanf:"db_path"`
	// EventQueueSize bounds the in-memory submission queue.
	EventQueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of append workers.
	WorkerCount int `koanf:"worker_count"`
	// DedupeSize sets the size of the submission deduplication cache.
	DedupeSize int `koanf:"dedupe_size"`
	// DefaultSessionID is used when a request omits session_id.
	DefaultSessionID string `koanf:"default_session_id"`
	// OpenF1BaseURL is the upstream race data provider.
	OpenF1BaseURL string `koanf:"openf1_base_url"`
	// OpenF1TimeoutMS bounds each upstream HTTP call.
	OpenF1TimeoutMS int `koanf:"openf1_timeout_ms"`
	// Ingest limits per event kind.
	IngestLimitLaps      int `koanf:"ingest_limit_laps"`
	IngestLimitPositions int `koanf:"ingest_limit_positions"`
	IngestLimitPits      int `koanf:"ingest_limit_pits"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		Addr:                 ":9080",
		DBPath:               "gridreplay.db",
		EventQueueSize:       10_000,
		WorkerCount:          runtime.NumCPU(),
		DedupeSize:           100_000,
		DefaultSessionID:     "bahrain_demo",
		OpenF1BaseURL:        "https://api.openf1.org/v1",
		OpenF1TimeoutMS:      30_000,
		IngestLimitLaps:      500,
		IngestLimitPositions: 2000,
		IngestLimitPits:      2000,
	}
}

// OpenF1Timeout returns the upstream timeout as a duration.
func (c *Config) OpenF1Timeout() time.Duration {
	return time.Duration(c.OpenF1TimeoutMS) * time.Millisecond
}
