// Package openf1 fetches timing data from the OpenF1 API and converts it
// into session events on a seconds-since-session-start timeline.
package openf1

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/okian/gridreplay/internal/domain/model"
	"github.com/okian/gridreplay/pkg/logger"
	"github.com/tidwall/gjson"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// DefaultBaseURL is the public OpenF1 API root.
	DefaultBaseURL = "https://api.openf1.org/v1"

	defaultTimeout  = 30 * time.Second
	maxResponseSize = 64 << 20
)

// Client talks to the OpenF1 REST API.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	logger  logger.Logger
}

// New creates an OpenF1 client.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: c.timeout}
	}
	if c.logger == nil {
		c.logger = logger.Named("openf1")
	}
	c.baseURL = strings.TrimRight(c.baseURL, "/")
	return c
}

// SessionStart returns the UTC start time of an OpenF1 session.
func (c *Client) SessionStart(ctx context.Context, sessionKey int) (time.Time, error) {
	rows, err := c.fetch(ctx, "sessions", sessionKey)
	if err != nil {
		return time.Time{}, err
	}
	if len(rows) == 0 {
		return time.Time{}, fmt.Errorf("%w: session_key %d", ErrSessionNotFound, sessionKey)
	}
	raw := rows[0].Get("date_start").String()
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: session_key %d has no date_start", ErrSessionNotFound, sessionKey)
	}
	start, err := ParseTime(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse session start: %w", err)
	}
	return start, nil
}

// Laps returns LAP events for the first limit lap rows. A limit <= 0 keeps every row.
func (c *Client) Laps(ctx context.Context, sessionKey int, start time.Time, limit int) ([]model.NewEvent, error) {
	return c.events(ctx, "laps", sessionKey, start, limit, model.EventLap, "date_start", "lap_number", "lap")
}

// Positions returns POSITION events for the first limit position rows.
func (c *Client) Positions(ctx context.Context, sessionKey int, start time.Time, limit int) ([]model.NewEvent, error) {
	return c.events(ctx, "position", sessionKey, start, limit, model.EventPosition, "date", "position", "position")
}

// Pits returns PIT events for the first limit pit rows.
func (c *Client) Pits(ctx context.Context, sessionKey int, start time.Time, limit int) ([]model.NewEvent, error) {
	return c.events(ctx, "pit", sessionKey, start, limit, model.EventPit, "date", "pit_count", "pit_count")
}

// Drivers returns display metadata for every driver in an OpenF1 session.
func (c *Client) Drivers(ctx context.Context, sessionKey int) ([]model.DriverInfo, error) {
	rows, err := c.fetch(ctx, "drivers", sessionKey)
	if err != nil {
		return nil, err
	}
	out := make([]model.DriverInfo, 0, len(rows))
	for _, r := range rows {
		if d, ok := driverInfo(r); ok {
			out = append(out, d)
		}
	}
	return out, nil
}

// events converts rows from endpoint into events of typ. Rows without a
// timestamp or driver number are skipped. The limit applies to raw rows.
func (c *Client) events(ctx context.Context, endpoint string, sessionKey int, start time.Time, limit int,
	typ model.EventType, timeField, valueField, payloadField string,
) ([]model.NewEvent, error) {
	rows, err := c.fetch(ctx, endpoint, sessionKey)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	out := make([]model.NewEvent, 0, len(rows))
	skipped := 0
	for _, r := range rows {
		ts := r.Get(timeField).String()
		num := r.Get("driver_number")
		if ts == "" || !num.Exists() || num.Type == gjson.Null {
			skipped++
			continue
		}
		t, err := ParseTime(ts)
		if err != nil {
			skipped++
			continue
		}
		driver := num.String()
		timeSec := t.Sub(start).Seconds()
		if timeSec < 0 {
			skipped++
			continue
		}

		value := json.RawMessage("null")
		if v := r.Get(valueField); v.Exists() {
			value = json.RawMessage(v.Raw)
		}
		payload, err := json.Marshal(map[string]any{
			"type":       typ,
			"driver":     driver,
			"time_sec":   timeSec,
			payloadField: value,
		})
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", endpoint, err)
		}
		out = append(out, model.NewEvent{Type: typ, Driver: driver, TimeSec: timeSec, Payload: payload})
	}

	if skipped > 0 {
		c.logger.Debug(ctx, "skipped openf1 rows",
			logger.String("endpoint", endpoint),
			logger.Int("skipped", skipped),
		)
	}
	return out, nil
}

func (c *Client) fetch(ctx context.Context, endpoint string, sessionKey int) ([]gjson.Result, error) {
	u := c.baseURL + "/" + endpoint + "?" + url.Values{"session_key": {strconv.Itoa(sessionKey)}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUpstream, endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrUpstream, endpoint, err)
	}
	c.logger.Debug(ctx, "openf1 request",
		logger.String("endpoint", endpoint),
		logger.Int("status", resp.StatusCode),
		logger.Int("bytes", len(body)),
		logger.Int64("latency_ms", time.Since(start).Milliseconds()),
	)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s: status %d", ErrUpstream, endpoint, resp.StatusCode)
	}

	parsed := gjson.ParseBytes(body)
	if !gjson.ValidBytes(body) || !parsed.IsArray() {
		return nil, fmt.Errorf("%w: %s", ErrBadResponse, endpoint)
	}
	return parsed.Array(), nil
}

var titleCaser = cases.Title(language.English)

// driverInfo maps one /drivers row. The name is title cased and the code
// falls back to the first three letters of the last name.
func driverInfo(r gjson.Result) (model.DriverInfo, bool) {
	id := r.Get("driver_number")
	if !id.Exists() || id.Type == gjson.Null {
		id = r.Get("driver")
	}
	if !id.Exists() || id.Type == gjson.Null || id.String() == "" {
		return model.DriverInfo{}, false
	}

	first := strings.TrimSpace(r.Get("first_name").String())
	last := strings.TrimSpace(r.Get("last_name").String())

	var name string
	switch {
	case first != "" && last != "":
		name = titleCaser.String(first) + " " + titleCaser.String(last)
	case r.Get("full_name").String() != "":
		name = titleCaser.String(r.Get("full_name").String())
	case r.Get("name").String() != "":
		name = titleCaser.String(r.Get("name").String())
	}

	var code string
	for _, field := range []string{"name_acronym", "abbreviation", "code"} {
		if v := strings.TrimSpace(r.Get(field).String()); v != "" {
			code = v
			break
		}
	}
	if code == "" && last != "" {
		runes := []rune(last)
		if len(runes) > 3 {
			runes = runes[:3]
		}
		code = strings.ToUpper(string(runes))
	}

	return model.DriverInfo{Driver: id.String(), Code: code, Name: name}, true
}

// ParseTime parses an OpenF1 ISO-8601 timestamp as UTC. Timestamps without
// a zone are taken to be UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05.999999999", s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
