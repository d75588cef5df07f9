// Package worker drains accepted event submissions into the event store.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/gridreplay/internal/domain/model"
	"github.com/okian/gridreplay/pkg/logger"
	"github.com/okian/gridreplay/pkg/metrics"
)

const nanosPerMillisecond = 1e6

// Item is what workers read off the queue.
type Item = model.Submission

// Appender persists events for a session.
type Appender interface {
	Append(ctx context.Context, sessionID string, events []model.NewEvent) (int, error)
}

// Source delivers queued items and is told when one has been taken.
type Source interface {
	Dequeue() <-chan Item
	Done()
}

// FailureHandler is called when an item could not be appended.
type FailureHandler func(ctx context.Context, item Item, err error)

// InMemoryWorker appends queued submissions one at a time.
type InMemoryWorker struct {
	source    Source
	appender  Appender
	onFailure FailureHandler
	name      string
	logger    logger.Logger

	done chan struct{}
}

// NewInMemoryWorker creates a worker reading from source.
func NewInMemoryWorker(source Source, appender Appender, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		source:   source,
		appender: appender,
		name:     "worker",
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Named("worker")
	}
	w.logger = w.logger.With(logger.String("worker", w.name))
	return w
}

// Run processes items until the source is closed and drained or ctx ends.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	items := w.source.Dequeue()
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-items:
			if !ok {
				return
			}
			w.source.Done()
			if err := w.process(ctx, item); err != nil {
				w.logger.Error(ctx, "error processing submission", logger.Error(err))
			}
		}
	}
}

// Done is closed once Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} {
	return w.done
}

func (w *InMemoryWorker) process(ctx context.Context, item Item) error { //nolint:gocritic // hugeParam: channel semantics
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Nanoseconds()) / nanosPerMillisecond)
	}()

	if _, err := w.appender.Append(ctx, item.SessionID, []model.NewEvent{item.Event}); err != nil {
		metrics.RecordWorkerError()
		if w.onFailure != nil {
			w.onFailure(ctx, item, err)
		}
		return fmt.Errorf("append event %s: %w", item.EventID, err)
	}

	w.logger.Debug(ctx, "event appended",
		logger.String("event_id", item.EventID),
		logger.String("session_id", item.SessionID),
		logger.String("type", string(item.Event.Type)),
	)
	return nil
}

// Pool runs a fixed set of workers over one source.
type Pool struct {
	workers []*InMemoryWorker
	logger  logger.Logger
	wg      sync.WaitGroup
}

// NewPool creates workerCount workers. A count below 1 uses one per CPU.
func NewPool(workerCount int, source Source, appender Appender, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		logger:  logger.Named("worker-pool"),
	}
	for i := range p.workers {
		workerOpts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		p.workers[i] = NewInMemoryWorker(source, appender, workerOpts...)
	}

	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Start launches every worker.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *InMemoryWorker) {
			defer p.wg.Done()
			w.Run(ctx)
		}(w)
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Wait blocks until every worker has returned or ctx ends. The source must
// be closed first for workers to return on their own.
func (p *Pool) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		metrics.UpdateWorkerCount(0)
		return nil
	case <-ctx.Done():
		p.logger.Warn(ctx, "worker pool shutdown timed out")
		return fmt.Errorf("worker pool shutdown: %w", ctx.Err())
	}
}
