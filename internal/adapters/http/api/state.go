package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/okian/gridreplay/internal/domain/replay"
)

// StateDependencies defines the interface for state replay.
type StateDependencies interface {
	DefaultSessionID() string
	State(ctx context.Context, sessionID string, cutoff float64, driver string) (replay.State, error)
}

// StateHandler handles state requests.
type StateHandler struct {
	deps StateDependencies
}

// NewStateHandler creates a new state handler.
func NewStateHandler(deps StateDependencies) *StateHandler {
	return &StateHandler{deps: deps}
}

type stateResponse struct {
	SessionID string       `json:"session_id"`
	TimeSec   float64      `json:"time_sec"`
	Driver    string       `json:"driver,omitempty"`
	State     replay.State `json:"state"`
}

// HandleGetState handles GET /state?session_id=&time_sec=&driver= requests.
func (h *StateHandler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_state"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	cutoff, err := timeParam(q, "time_sec")
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	sessionID := sessionParam(q, h.deps.DefaultSessionID())
	driver := strings.TrimSpace(q.Get("driver"))

	state, err := h.deps.State(r.Context(), sessionID, cutoff, driver)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, stateResponse{SessionID: sessionID, TimeSec: cutoff, Driver: driver, State: state})
}
