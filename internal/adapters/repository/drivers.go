package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/okian/gridreplay/internal/domain/model"
)

// UpsertDrivers inserts or updates driver metadata for a session.
// Rows without a driver id are skipped.
func (s *SQLiteStore) UpsertDrivers(ctx context.Context, sessionID string, drivers []model.DriverInfo) (n int, err error) {
	defer observe("upsert_drivers", time.Now(), &err)
	if err := s.ready(); err != nil {
		return 0, err
	}
	if strings.TrimSpace(sessionID) == "" {
		return 0, fmt.Errorf("%w: session id is required", ErrInvalidEvent)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, unavailable("begin upsert drivers", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, d := range drivers {
		id := strings.TrimSpace(d.Driver)
		if id == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO drivers (session_id, driver, code, name)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(session_id, driver) DO UPDATE SET
				code = excluded.code,
				name = excluded.name`,
			sessionID, id, nullable(d.Code), nullable(d.Name),
		); err != nil {
			return 0, unavailable("upsert driver", err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, unavailable("commit upsert drivers", err)
	}
	return n, nil
}

// DriverMap returns driver metadata for a session keyed by driver id.
func (s *SQLiteStore) DriverMap(ctx context.Context, sessionID string) (out map[string]model.DriverInfo, err error) {
	defer observe("driver_map", time.Now(), &err)
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT driver, code, name FROM drivers WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, unavailable("query drivers", err)
	}
	defer rows.Close()

	out = map[string]model.DriverInfo{}
	for rows.Next() {
		var (
			d          model.DriverInfo
			code, name sql.NullString
		)
		if err := rows.Scan(&d.Driver, &code, &name); err != nil {
			return nil, unavailable("scan driver", err)
		}
		d.Code = code.String
		d.Name = name.String
		out[d.Driver] = d
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate drivers", err)
	}
	return out, nil
}

func nullable(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}
