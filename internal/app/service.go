// Package service implements the operations behind the HTTP API: point in
// time leaderboards and state, session management, demo seeding, OpenF1
// ingestion and the asynchronous event submission pipeline.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	eventqueue "github.com/okian/gridreplay/internal/adapters/mq/queue"
	workerpool "github.com/okian/gridreplay/internal/adapters/mq/worker"
	"github.com/okian/gridreplay/internal/adapters/repository"
	"github.com/okian/gridreplay/internal/domain/dedupe"
	"github.com/okian/gridreplay/internal/domain/model"
	"github.com/okian/gridreplay/pkg/logger"
	"github.com/okian/gridreplay/pkg/metrics"
)

const (
	defaultQueueSize      = 10_000
	defaultDedupeSize     = 100_000
	defaultSessionID      = "bahrain_demo"
	defaultLimitLaps      = 500
	defaultLimitPositions = 2000
	defaultLimitPits      = 2000
	poolShutdownTimeout   = 30 * time.Second
	nanosPerMillisecond   = 1e6
)

// OpenF1Source fetches session data from OpenF1.
type OpenF1Source interface {
	SessionStart(ctx context.Context, sessionKey int) (time.Time, error)
	Laps(ctx context.Context, sessionKey int, start time.Time, limit int) ([]model.NewEvent, error)
	Positions(ctx context.Context, sessionKey int, start time.Time, limit int) ([]model.NewEvent, error)
	Pits(ctx context.Context, sessionKey int, start time.Time, limit int) ([]model.NewEvent, error)
	Drivers(ctx context.Context, sessionKey int) ([]model.DriverInfo, error)
}

// IngestLimits caps how many raw OpenF1 rows of each kind are ingested.
type IngestLimits struct {
	Laps      int
	Positions int
	Pits      int
}

// Service implements the API dependencies for the replay system.
type Service struct {
	mu sync.RWMutex

	store   repository.EventStore
	drivers repository.DriverDirectory
	openf1  OpenF1Source

	deduper    dedupe.Deduper
	eventQueue *eventqueue.InMemoryQueue
	workerPool *workerpool.Pool

	workerCount      int
	queueSize        int
	dedupeSize       int
	defaultSessionID string
	limits           IngestLimits

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithEventStore sets the event store every operation reads and writes.
// A store that also implements repository.DriverDirectory is used for
// driver metadata unless WithDriverDirectory overrides it.
func WithEventStore(store repository.EventStore) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithDriverDirectory sets where driver metadata is kept.
func WithDriverDirectory(d repository.DriverDirectory) Option {
	return func(s *Service) {
		s.drivers = d
	}
}

// WithOpenF1Client sets the OpenF1 data source.
func WithOpenF1Client(c OpenF1Source) Option {
	return func(s *Service) {
		s.openf1 = c
	}
}

// WithWorkerCount sets the number of append workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the submission queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many submission ids are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithDefaultSessionID sets the session used when a request names none.
func WithDefaultSessionID(id string) Option {
	return func(s *Service) {
		if id != "" {
			s.defaultSessionID = id
		}
	}
}

// WithIngestLimits sets the default OpenF1 row limits. Non-positive fields
// keep their defaults.
func WithIngestLimits(l IngestLimits) Option {
	return func(s *Service) {
		if l.Laps > 0 {
			s.limits.Laps = l.Laps
		}
		if l.Positions > 0 {
			s.limits.Positions = l.Positions
		}
		if l.Pits > 0 {
			s.limits.Pits = l.Pits
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service. Read operations work immediately; the
// submission pipeline runs only between Start and Stop.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:      runtime.NumCPU(),
		queueSize:        defaultQueueSize,
		dedupeSize:       defaultDedupeSize,
		defaultSessionID: defaultSessionID,
		limits: IngestLimits{
			Laps:      defaultLimitLaps,
			Positions: defaultLimitPositions,
			Pits:      defaultLimitPits,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.drivers == nil {
		if d, ok := s.store.(repository.DriverDirectory); ok {
			s.drivers = d
		}
	}
	if s.logger == nil {
		s.logger = logger.Named("service")
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	return s
}

// DefaultSessionID returns the session used when a request names none.
func (s *Service) DefaultSessionID() string {
	return s.defaultSessionID
}

// Start launches the submission queue and worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.store == nil {
		return fmt.Errorf("%w: event store", ErrNotConfigured)
	}

	s.logger.Info(ctx, "starting replay service...")

	s.eventQueue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.workerPool = workerpool.NewPool(s.workerCount, s.eventQueue, s.store,
		workerpool.WithFailureHandler(s.onAppendFailure),
	)
	// Workers outlive the start context and drain the queue on Stop.
	s.workerPool.Start(context.WithoutCancel(ctx))

	s.started = true
	s.logger.Info(ctx, "replay service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop closes the queue and waits for workers to drain it.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping replay service...")

	_ = s.eventQueue.Close()

	waitCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()
	if err := s.workerPool.Wait(waitCtx); err != nil {
		s.logger.Warn(ctx, "worker pool did not drain", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "replay service stopped")
}

// onAppendFailure forgets a submission id so the client can retry it.
func (s *Service) onAppendFailure(ctx context.Context, item model.Submission, err error) { //nolint:gocritic // hugeParam: matches worker callback
	s.deduper.Unrecord(ctx, item.EventID)
	s.logger.Warn(ctx, "submission dropped after append failure",
		logger.String("event_id", item.EventID),
		logger.String("session_id", item.SessionID),
		logger.Error(err),
	)
}

// SeenAndRecord reports whether a submission id was already accepted and
// records it if not.
func (s *Service) SeenAndRecord(ctx context.Context, id string) bool {
	seen := s.deduper.SeenAndRecord(ctx, id)
	if seen {
		metrics.RecordEventDuplicate()
	}
	return seen
}

// Unrecord forgets a submission id.
func (s *Service) Unrecord(ctx context.Context, id string) {
	s.deduper.Unrecord(ctx, id)
}

// Size returns how many submission ids are remembered.
func (s *Service) Size() int64 {
	return s.deduper.Size()
}

// Enqueue hands a validated submission to the append workers. It returns
// ErrBackpressure when the queue is full and ErrNotStarted outside Start/Stop.
func (s *Service) Enqueue(ctx context.Context, sub model.Submission) error { //nolint:gocritic // hugeParam: value semantics
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := ValidateSessionID(sub.SessionID); err != nil {
		return err
	}
	if !s.started {
		return ErrNotStarted
	}
	if err := s.eventQueue.Enqueue(ctx, sub); err != nil {
		if errors.Is(err, eventqueue.ErrFull) {
			return fmt.Errorf("%w: %w", ErrBackpressure, err)
		}
		return fmt.Errorf("enqueue submission: %w", err)
	}
	s.logger.Debug(ctx, "submission enqueued",
		logger.String("event_id", sub.EventID),
		logger.String("session_id", sub.SessionID),
	)
	return nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":          s.started,
		"workerCount":      s.workerCount,
		"queueSize":        s.queueSize,
		"dedupeSize":       s.dedupeSize,
		"dedupeEntries":    s.deduper.Size(),
		"defaultSessionId": s.defaultSessionID,
	}
	if s.started {
		queueLen := s.eventQueue.Len()
		stats["queueLength"] = queueLen
		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateWorkerCount(s.workerPool.Size())
	}
	return stats
}
