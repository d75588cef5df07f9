package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/okian/gridreplay/internal/domain/model"
	"github.com/okian/gridreplay/pkg/metrics"
)

// Append stores events for a session in one transaction.
func (s *SQLiteStore) Append(ctx context.Context, sessionID string, events []model.NewEvent) (n int, err error) {
	defer observe("append", time.Now(), &err)
	if err := s.ready(); err != nil {
		return 0, err
	}
	if strings.TrimSpace(sessionID) == "" {
		return 0, fmt.Errorf("%w: session id is required", ErrInvalidEvent)
	}
	for i, e := range events {
		if err := validateNewEvent(e); err != nil {
			return 0, fmt.Errorf("event %d: %w", i, err)
		}
	}
	if len(events) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, unavailable("begin append", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (session_id, time_sec, driver, type, payload) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, unavailable("prepare append", err)
	}
	defer stmt.Close()

	for _, e := range events {
		payload := e.Payload
		if len(payload) == 0 {
			payload = json.RawMessage(`{}`)
		}
		driver := sql.NullString{String: strings.TrimSpace(e.Driver), Valid: strings.TrimSpace(e.Driver) != ""}
		if _, err := stmt.ExecContext(ctx, sessionID, e.TimeSec, driver, string(e.Type), string(payload)); err != nil {
			return 0, unavailable("insert event", err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, unavailable("commit append", err)
	}

	metrics.RecordEventsAppended(n)
	return n, nil
}

func validateNewEvent(e model.NewEvent) error {
	switch {
	case strings.TrimSpace(string(e.Type)) == "":
		return fmt.Errorf("%w: type is required", ErrInvalidEvent)
	case math.IsNaN(e.TimeSec) || math.IsInf(e.TimeSec, 0) || e.TimeSec < 0:
		return fmt.Errorf("%w: time_sec must be a finite number >= 0", ErrInvalidEvent)
	case len(e.Payload) > 0 && !json.Valid(e.Payload):
		return fmt.Errorf("%w: payload is not valid JSON", ErrInvalidEvent)
	}
	return nil
}

// LoadEvents returns a session's events ordered by (time_sec, id).
func (s *SQLiteStore) LoadEvents(ctx context.Context, sessionID string, until *float64) (events []model.Event, err error) {
	defer observe("load_events", time.Now(), &err)
	if err := s.ready(); err != nil {
		return nil, err
	}

	query := `SELECT id, session_id, time_sec, driver, type, payload FROM events WHERE session_id = ?`
	args := []any{sessionID}
	if until != nil {
		query += ` AND time_sec <= ?`
		args = append(args, *until)
	}
	query += ` ORDER BY time_sec ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("query events", err)
	}
	defer rows.Close()

	events = []model.Event{}
	for rows.Next() {
		var (
			e       model.Event
			driver  sql.NullString
			typ     string
			payload string
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.TimeSec, &driver, &typ, &payload); err != nil {
			return nil, unavailable("scan event", err)
		}
		e.Driver = driver.String
		e.Type = model.EventType(typ)
		e.Payload = json.RawMessage(payload)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate events", err)
	}
	return events, nil
}

// DeleteSession removes every event of a session.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) (n int64, err error) {
	defer observe("delete_session", time.Now(), &err)
	if err := s.ready(); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, unavailable("delete session", err)
	}
	n, err = res.RowsAffected()
	if err != nil {
		return 0, unavailable("delete session rows", err)
	}
	return n, nil
}

// Sessions summarizes each session in the store ordered by session id.
func (s *SQLiteStore) Sessions(ctx context.Context) (out []model.SessionSummary, err error) {
	defer observe("sessions", time.Now(), &err)
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, COUNT(*), MIN(time_sec), MAX(time_sec)
		FROM events
		GROUP BY session_id
		ORDER BY session_id`)
	if err != nil {
		return nil, unavailable("query sessions", err)
	}
	defer rows.Close()

	out = []model.SessionSummary{}
	for rows.Next() {
		var ss model.SessionSummary
		if err := rows.Scan(&ss.SessionID, &ss.EventCount, &ss.TimeRange[0], &ss.TimeRange[1]); err != nil {
			return nil, unavailable("scan session", err)
		}
		out = append(out, ss)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate sessions", err)
	}
	return out, nil
}
