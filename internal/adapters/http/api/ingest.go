package api

import (
	"context"
	"fmt"
	"net/http"

	service "github.com/okian/gridreplay/internal/app"
)

// IngestDependencies defines the interface for OpenF1 ingestion.
type IngestDependencies interface {
	DefaultIngestLimits() service.IngestLimits
	IngestOpenF1(ctx context.Context, sessionID string, sessionKey int, limits service.IngestLimits) (service.IngestResult, error)
	IngestOpenF1Drivers(ctx context.Context, sessionID string, sessionKey int) (int, error)
}

// IngestHandler handles OpenF1 ingestion requests.
type IngestHandler struct {
	deps IngestDependencies
}

// NewIngestHandler creates a new ingest handler.
func NewIngestHandler(deps IngestDependencies) *IngestHandler {
	return &IngestHandler{deps: deps}
}

// HandleIngest handles POST /ingest/openf1 requests.
func (h *IngestHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	const op = "api.ingest_openf1"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	key, err := intParam(q, "openf1_session_key", 0)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	defaults := h.deps.DefaultIngestLimits()
	var limits service.IngestLimits
	for _, p := range []struct {
		name     string
		fallback int
		dst      *int
	}{
		{"limit_laps", defaults.Laps, &limits.Laps},
		{"limit_positions", defaults.Positions, &limits.Positions},
		{"limit_pits", defaults.Pits, &limits.Pits},
	} {
		if *p.dst, err = intParam(q, p.name, p.fallback); err != nil {
			writeServiceError(w, op, err)
			return
		}
	}

	res, err := h.deps.IngestOpenF1(r.Context(), q.Get("session_id"), key, limits)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleIngestDrivers handles POST /ingest/openf1/drivers requests.
func (h *IngestHandler) HandleIngestDrivers(w http.ResponseWriter, r *http.Request) {
	const op = "api.ingest_openf1_drivers"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	key, err := intParam(q, "openf1_session_key", 0)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	sessionID := q.Get("session_id")

	n, err := h.deps.IngestOpenF1Drivers(r.Context(), sessionID, key)
	if err != nil {
		writeServiceError(w, op, fmt.Errorf("session %q: %w", sessionID, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":         sessionID,
		"openf1_session_key": key,
		"upserted":           n,
	})
}
