package api

import (
	"context"
	"net/http"

	"github.com/okian/gridreplay/internal/domain/model"
	"github.com/okian/gridreplay/internal/domain/standings"
)

// LeaderboardDependencies defines the interface for leaderboard operations.
type LeaderboardDependencies interface {
	DefaultSessionID() string
	ComputeLeaderboard(ctx context.Context, sessionID string, cutoff float64) (model.Leaderboard, standings.Diagnostics, error)
}

// LeaderboardHandler handles leaderboard requests.
type LeaderboardHandler struct {
	deps LeaderboardDependencies
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps LeaderboardDependencies) *LeaderboardHandler {
	return &LeaderboardHandler{deps: deps}
}

type leaderboardResponse struct {
	model.Leaderboard
	Debug *standings.Diagnostics `json:"debug,omitempty"`
}

// HandleGetLeaderboard handles GET /leaderboard?session_id=&time_sec=&debug= requests.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
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
	debug, err := boolParam(q, "debug")
	if err != nil {
		writeServiceError(w, op, err)
		return
	}

	lb, diag, err := h.deps.ComputeLeaderboard(r.Context(), sessionParam(q, h.deps.DefaultSessionID()), cutoff)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}

	resp := leaderboardResponse{Leaderboard: lb}
	if debug {
		resp.Debug = &diag
	}
	writeJSON(w, http.StatusOK, resp)
}
