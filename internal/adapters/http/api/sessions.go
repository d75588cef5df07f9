package api

import (
	"context"
	"net/http"

	"github.com/okian/gridreplay/internal/domain/model"
)

// SessionsDependencies defines the interface for session management.
type SessionsDependencies interface {
	DefaultSessionID() string
	Sessions(ctx context.Context) ([]model.SessionSummary, error)
	Reset(ctx context.Context, sessionID string) (int64, error)
	Seed(ctx context.Context, sessionID string) (int, error)
}

// SessionsHandler handles session listing, reset and seed requests.
type SessionsHandler struct {
	deps SessionsDependencies
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(deps SessionsDependencies) *SessionsHandler {
	return &SessionsHandler{deps: deps}
}

// HandleListSessions handles GET /sessions requests.
func (h *SessionsHandler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_sessions"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	sessions, err := h.deps.Sessions(r.Context())
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// HandleReset handles POST /reset?session_id= requests.
func (h *SessionsHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	const op = "api.reset"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	sessionID := sessionParam(r.URL.Query(), h.deps.DefaultSessionID())
	deleted, err := h.deps.Reset(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "session_id": sessionID, "deleted": deleted})
}

// HandleSeed handles POST /seed?session_id= requests.
func (h *SessionsHandler) HandleSeed(w http.ResponseWriter, r *http.Request) {
	const op = "api.seed"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	sessionID := sessionParam(r.URL.Query(), h.deps.DefaultSessionID())
	inserted, err := h.deps.Seed(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "inserted": inserted})
}
