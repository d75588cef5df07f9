package racecheck

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/gridreplay/internal/domain/model"
	"github.com/okian/gridreplay/pkg/logger"
)

const (
	maxSubmitAttempts = 5
	backpressureDelay = 50 * time.Millisecond
	workerChannelMult = 2
)

var errNotFound = errors.New("not found")

// submitOutcome classifies one POST /events exchange.
type submitOutcome int

const (
	outcomeAccepted submitOutcome = iota
	outcomeDuplicate
	outcomeFailed
)

// HTTPClient wraps http.Client with the service base URL.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

func newHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, q url.Values, body any) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		rdr = bytes.NewReader(data)
	}
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.client.Do(req)
}

// getJSON decodes a 200 response into out. A 404 yields errNotFound.
func (c *HTTPClient) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	resp, err := c.do(ctx, http.MethodGet, path, q, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return json.NewDecoder(resp.Body).Decode(out)
	case http.StatusNotFound:
		return errNotFound
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, bytes.TrimSpace(msg))
	}
}

func (c *HTTPClient) health(ctx context.Context) error {
	var body struct {
		OK bool `json:"ok"`
	}
	if err := c.getJSON(ctx, "/healthz", nil, &body); err != nil {
		return err
	}
	if !body.OK {
		return errors.New("service reported not ok")
	}
	return nil
}

func (c *HTTPClient) reset(ctx context.Context, sessionID string) (int64, error) {
	resp, err := c.do(ctx, http.MethodPost, "/reset", url.Values{"session_id": {sessionID}}, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("reset: status %d", resp.StatusCode)
	}
	var body struct {
		Deleted int64 `json:"deleted"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode reset: %w", err)
	}
	return body.Deleted, nil
}

// storedEvents returns how many events the service holds for a session.
func (c *HTTPClient) storedEvents(ctx context.Context, sessionID string) (int, error) {
	var body struct {
		Events []json.RawMessage `json:"events"`
	}
	if err := c.getJSON(ctx, "/events", url.Values{"session_id": {sessionID}}, &body); err != nil {
		return 0, err
	}
	return len(body.Events), nil
}

func (c *HTTPClient) leaderboard(ctx context.Context, sessionID string, cutoff float64) (model.Leaderboard, error) {
	var lb model.Leaderboard
	q := url.Values{
		"session_id": {sessionID},
		"time_sec":   {strconv.FormatFloat(cutoff, 'f', -1, 64)},
	}
	err := c.getJSON(ctx, "/leaderboard", q, &lb)
	return lb, err
}

// submit posts one event, retrying while the service applies backpressure.
func (c *HTTPClient) submit(ctx context.Context, e *Event) (submitOutcome, int) {
	retries := 0
	for attempt := 1; ; attempt++ {
		outcome, retry := c.submitOnce(ctx, e)
		if !retry || attempt == maxSubmitAttempts {
			return outcome, retries
		}
		retries++
		select {
		case <-ctx.Done():
			return outcomeFailed, retries
		case <-time.After(time.Duration(attempt) * backpressureDelay):
		}
	}
}

func (c *HTTPClient) submitOnce(ctx context.Context, e *Event) (submitOutcome, bool) {
	resp, err := c.do(ctx, http.MethodPost, "/events", nil, e)
	if err != nil {
		return outcomeFailed, false
	}
	defer resp.Body.Close()

	var ack AckResponse
	switch resp.StatusCode {
	case http.StatusAccepted:
		return outcomeAccepted, false
	case http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(&ack); err == nil && ack.Duplicate {
			return outcomeDuplicate, false
		}
		return outcomeFailed, false
	case http.StatusTooManyRequests:
		return outcomeFailed, true
	default:
		return outcomeFailed, false
	}
}

// submitEvents submits events concurrently and fills the submission counters of stats.
func submitEvents(ctx context.Context, cfg *Config, client *HTTPClient, events []Event, stats *Stats) {
	log := logger.Named("racecheck")
	log.Info(ctx, "submitting events", logger.Int("events", len(events)), logger.Int("workers", cfg.Workers))

	var accepted, duplicate, failed, retried atomic.Int64
	eventChan := make(chan int, cfg.Workers*workerChannelMult)
	var wg sync.WaitGroup

	for range cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range eventChan {
				outcome, retries := client.submit(ctx, &events[i])
				retried.Add(int64(retries))
				switch outcome {
				case outcomeAccepted:
					accepted.Add(1)
				case outcomeDuplicate:
					duplicate.Add(1)
				default:
					failed.Add(1)
					if cfg.Verbose {
						log.Warn(ctx, "event submission failed", logger.String("event_id", events[i].EventID))
					}
				}
			}
		}()
	}

	func() {
		defer close(eventChan)
		for i := range events {
			select {
			case <-ctx.Done():
				return
			case eventChan <- i:
			}
		}
	}()
	wg.Wait()

	stats.EventsAccepted += int(accepted.Load())
	stats.EventsDuplicate += int(duplicate.Load())
	stats.EventsFailed += int(failed.Load())
	stats.EventsRetried += int(retried.Load())

	log.Info(ctx, "event submission completed",
		logger.Int64("accepted", accepted.Load()),
		logger.Int64("duplicate", duplicate.Load()),
		logger.Int64("failed", failed.Load()),
		logger.Int64("retried", retried.Load()))
}
