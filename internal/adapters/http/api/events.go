package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"

	"github.com/google/uuid"
	service "github.com/okian/gridreplay/internal/app"
	"github.com/okian/gridreplay/internal/domain/dedupe"
	"github.com/okian/gridreplay/internal/domain/model"
)

const maxEventBodySize = 1 << 20

// EventDependencies defines the interface for event submission and listing.
type EventDependencies interface {
	dedupe.Deduper
	Enqueue(ctx context.Context, sub model.Submission) error
	DefaultSessionID() string
	Events(ctx context.Context, sessionID string, until *float64) ([]model.Event, error)
}

// EventsHandler handles event requests.
type EventsHandler struct {
	deps EventDependencies
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

// HandleEvents routes GET and POST /events.
func (h *EventsHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.HandleListEvents(w, r)
	case http.MethodPost:
		h.HandlePostEvent(w, r)
	default:
		http.NotFound(w, r)
	}
}

type eventsResponse struct {
	SessionID string        `json:"session_id"`
	Until     *float64      `json:"until"`
	Events    []model.Event `json:"events"`
}

// HandleListEvents handles GET /events?session_id=&until= requests.
func (h *EventsHandler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_events"
	q := r.URL.Query()
	until, err := optionalTimeParam(q, "until")
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	sessionID := sessionParam(q, h.deps.DefaultSessionID())

	events, err := h.deps.Events(r.Context(), sessionID, until)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse{SessionID: sessionID, Until: until, Events: events})
}

// HandlePostEvent handles POST /events requests.
func (h *EventsHandler) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_event"

	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	req, err := decodeEventRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	sub := req.submission(h.deps.DefaultSessionID())

	// Idempotency check - mark as seen first
	if h.deps.SeenAndRecord(r.Context(), sub.EventID) {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true, EventID: sub.EventID})
		return
	}

	if err := h.deps.Enqueue(r.Context(), sub); err != nil {
		// Rollback the "seen" status since enqueue failed
		h.deps.Unrecord(r.Context(), sub.EventID)
		if errors.Is(err, service.ErrBackpressure) {
			writeError(w, http.StatusTooManyRequests, "backpressure", NewKind(op, ErrBackpressure))
			return
		}
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", Duplicate: false, EventID: sub.EventID})
}

// eventRequest is a submitted event. Fields other than the envelope are
// event specific (lap, position, pit_count, ...) and travel in the payload.
type eventRequest struct {
	EventID   string
	SessionID *string
	Type      string
	Driver    string
	TimeSec   *float64
	Payload   json.RawMessage
}

func decodeEventRequest(body []byte) (eventRequest, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return eventRequest{}, fmt.Errorf("invalid JSON object: %w", err)
	}

	var req eventRequest
	for name, dst := range map[string]any{
		"event_id":   &req.EventID,
		"session_id": &req.SessionID,
		"type":       &req.Type,
		"driver":     &req.Driver,
		"time_sec":   &req.TimeSec,
	} {
		raw, ok := fields[name]
		if !ok || bytes.Equal(raw, []byte("null")) {
			continue
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return eventRequest{}, fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	// The stored payload is the whole event without the delivery envelope.
	delete(fields, "event_id")
	delete(fields, "session_id")
	payload, err := json.Marshal(fields)
	if err != nil {
		return eventRequest{}, fmt.Errorf("encode payload: %w", err)
	}
	req.Payload = payload
	return req, nil
}

func (e *eventRequest) validate() error {
	switch {
	case strings.TrimSpace(e.Type) == "":
		return errors.New("missing type")
	case e.TimeSec == nil:
		return errors.New("missing time_sec")
	case math.IsNaN(*e.TimeSec) || math.IsInf(*e.TimeSec, 0) || *e.TimeSec < 0:
		return errors.New("time_sec must be a finite number >= 0")
	case e.SessionID != nil && strings.TrimSpace(*e.SessionID) == "":
		return errors.New("session_id must not be empty")
	case e.SessionID != nil && strings.TrimSpace(*e.SessionID) != *e.SessionID:
		return errors.New("session_id must not have leading or trailing whitespace")
	}
	return nil
}

func (e *eventRequest) submission(defaultSession string) model.Submission {
	id := strings.TrimSpace(e.EventID)
	if id == "" {
		id = uuid.NewString()
	}
	session := defaultSession
	if e.SessionID != nil {
		session = *e.SessionID
	}
	return model.Submission{
		EventID:   id,
		SessionID: session,
		Event: model.NewEvent{
			Type:    model.ParseEventType(e.Type),
			Driver:  strings.TrimSpace(e.Driver),
			TimeSec: *e.TimeSec,
			Payload: e.Payload,
		},
	}
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
	EventID   string `json:"event_id"`
}
