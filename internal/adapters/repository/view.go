package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/okian/gridreplay/internal/domain/model"
	"github.com/okian/gridreplay/internal/domain/replay"
	"github.com/okian/gridreplay/pkg/logger"
	"github.com/okian/gridreplay/pkg/metrics"
)

// ReadView runs fn inside one read transaction so every query fn issues
// observes the same committed events.
func (s *SQLiteStore) ReadView(ctx context.Context, fn func(View) error) (err error) {
	defer observe("read_view", time.Now(), &err)
	if err := s.ready(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin read view", err)
	}
	// Nothing is ever written through a view.
	defer func() { _ = tx.Rollback() }()

	return fn(&sqlView{q: tx, logger: s.logger})
}

// queryer is the read surface shared by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type sqlView struct {
	q      queryer
	logger logger.Logger
}

func (v *sqlView) ActiveDrivers(ctx context.Context, sessionID string, cutoff float64) (drivers []string, err error) {
	defer observe("active_drivers", time.Now(), &err)

	// Each driver is ranked by its earliest (time_sec, id) row, so equal
	// first times resolve to the id of that row.
	rows, err := v.q.QueryContext(ctx, `
		SELECT driver
		FROM (
			SELECT driver, time_sec, id,
				ROW_NUMBER() OVER (PARTITION BY driver ORDER BY time_sec ASC, id ASC) AS rn
			FROM events
			WHERE session_id = ? AND time_sec <= ? AND driver IS NOT NULL AND driver <> ''
		)
		WHERE rn = 1
		ORDER BY time_sec ASC, id ASC`, sessionID, cutoff)
	if err != nil {
		return nil, unavailable("query active drivers", err)
	}
	defer rows.Close()

	drivers = []string{}
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, unavailable("scan active driver", err)
		}
		drivers = append(drivers, d)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate active drivers", err)
	}
	return drivers, nil
}

func (v *sqlView) LatestPositions(ctx context.Context, sessionID string, cutoff float64) (latest map[string]model.PositionObservation, err error) {
	defer observe("latest_positions", time.Now(), &err)

	// Newest first per driver; the first usable row wins and malformed
	// payloads fall through to the next older event.
	rows, err := v.q.QueryContext(ctx, `
		SELECT driver, time_sec, id, payload
		FROM events
		WHERE session_id = ? AND type = ? AND time_sec <= ? AND driver IS NOT NULL AND driver <> ''
		ORDER BY driver ASC, time_sec DESC, id DESC`, sessionID, string(model.EventPosition), cutoff)
	if err != nil {
		return nil, unavailable("query latest positions", err)
	}
	defer rows.Close()

	latest = map[string]model.PositionObservation{}
	for rows.Next() {
		var (
			driver  string
			timeSec float64
			id      int64
			payload []byte
		)
		if err := rows.Scan(&driver, &timeSec, &id, &payload); err != nil {
			return nil, unavailable("scan position event", err)
		}
		if _, done := latest[driver]; done {
			continue
		}
		pos, ok := replay.PositionFromPayload(payload)
		if !ok {
			metrics.RecordMalformedPosition()
			v.logger.Debug(ctx, "skipping position event without usable position",
				logger.String("session_id", sessionID),
				logger.String("driver", driver),
				logger.Int64("event_id", id),
			)
			continue
		}
		latest[driver] = model.PositionObservation{Position: pos, ObservedTimeSec: timeSec, Sequence: id}
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate position events", err)
	}
	return latest, nil
}
