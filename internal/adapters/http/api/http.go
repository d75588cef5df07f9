// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/okian/gridreplay/internal/adapters/openf1"
	service "github.com/okian/gridreplay/internal/app"
	"github.com/okian/gridreplay/internal/domain/dedupe"
	"github.com/okian/gridreplay/internal/domain/model"
	"github.com/okian/gridreplay/internal/domain/replay"
	"github.com/okian/gridreplay/internal/domain/standings"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	dedupe.Deduper

	// Enqueue pushes a submission for async append.
	Enqueue(ctx context.Context, sub model.Submission) error

	DefaultSessionID() string
	DefaultIngestLimits() service.IngestLimits

	ComputeLeaderboard(ctx context.Context, sessionID string, cutoff float64) (model.Leaderboard, standings.Diagnostics, error)
	State(ctx context.Context, sessionID string, cutoff float64, driver string) (replay.State, error)
	Events(ctx context.Context, sessionID string, until *float64) ([]model.Event, error)
	Sessions(ctx context.Context) ([]model.SessionSummary, error)
	Reset(ctx context.Context, sessionID string) (int64, error)
	Seed(ctx context.Context, sessionID string) (int, error)
	IngestOpenF1(ctx context.Context, sessionID string, sessionKey int, limits service.IngestLimits) (service.IngestResult, error)
	IngestOpenF1Drivers(ctx context.Context, sessionID string, sessionKey int) (int, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	eventsHandler      *EventsHandler
	leaderboardHandler *LeaderboardHandler
	stateHandler       *StateHandler
	sessionsHandler    *SessionsHandler
	ingestHandler      *IngestHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		eventsHandler:      NewEventsHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps),
		stateHandler:       NewStateHandler(deps),
		sessionsHandler:    NewSessionsHandler(deps),
		ingestHandler:      NewIngestHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("/metrics", MetricsHandler())
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("/state", MetricsMiddleware(s.stateHandler.HandleGetState, "state"))
	mux.HandleFunc("/events", MetricsMiddleware(s.eventsHandler.HandleEvents, "events"))
	mux.HandleFunc("/sessions", MetricsMiddleware(s.sessionsHandler.HandleListSessions, "sessions"))
	mux.HandleFunc("/reset", MetricsMiddleware(s.sessionsHandler.HandleReset, "reset"))
	mux.HandleFunc("/seed", MetricsMiddleware(s.sessionsHandler.HandleSeed, "seed"))
	mux.HandleFunc("/ingest/openf1", MetricsMiddleware(s.ingestHandler.HandleIngest, "ingest_openf1"))
	mux.HandleFunc("/ingest/openf1/drivers", MetricsMiddleware(s.ingestHandler.HandleIngestDrivers, "ingest_openf1_drivers"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError maps service and upstream errors to a status and code.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input", Wrap(op, err))
	case errors.Is(err, service.ErrEmptyResult):
		writeError(w, http.StatusNotFound, "empty_result", Wrap(op, err))
	case errors.Is(err, service.ErrNothingIngested):
		writeError(w, http.StatusBadRequest, "nothing_ingested", Wrap(op, err))
	case errors.Is(err, openf1.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "not_found", Wrap(op, err))
	case errors.Is(err, openf1.ErrUpstream), errors.Is(err, openf1.ErrBadResponse):
		writeError(w, http.StatusBadGateway, "upstream_error", Wrap(op, err))
	case errors.Is(err, service.ErrStoreUnavailable):
		writeError(w, http.StatusInternalServerError, "store_unavailable", Wrap(op, err))
	case errors.Is(err, service.ErrNotConfigured), errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
	}
}

// sessionParam returns session_id, or fallback when the parameter is absent.
// A present but empty value is returned as is so validation can reject it.
func sessionParam(q url.Values, fallback string) string {
	if _, ok := q["session_id"]; !ok {
		return fallback
	}
	return q.Get("session_id")
}

// timeParam parses a required seconds parameter. Range checks are left to
// the service so NaN and Inf are rejected in one place.
func timeParam(q url.Values, name string) (float64, error) {
	raw, ok := q[name]
	if !ok || strings.TrimSpace(raw[0]) == "" {
		return 0, fmt.Errorf("%w: %s is required", service.ErrInvalidInput, name)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw[0]), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", service.ErrInvalidInput, name)
	}
	return v, nil
}

// optionalTimeParam parses an optional seconds parameter.
func optionalTimeParam(q url.Values, name string) (*float64, error) {
	if strings.TrimSpace(q.Get(name)) == "" {
		return nil, nil
	}
	v, err := timeParam(q, name)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return nil, fmt.Errorf("%w: %s must be a finite number >= 0", service.ErrInvalidInput, name)
	}
	return &v, nil
}

// intParam parses an optional integer parameter, returning fallback when absent.
func intParam(q url.Values, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", service.ErrInvalidInput, name)
	}
	return v, nil
}

// boolParam parses an optional boolean parameter.
func boolParam(q url.Values, name string) (bool, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean", service.ErrInvalidInput, name)
	}
	return v, nil
}
