package service_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/okian/gridreplay/internal/adapters/repository"
	service "github.com/okian/gridreplay/internal/app"
	"github.com/okian/gridreplay/internal/domain/model"
	"github.com/okian/gridreplay/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

// mockStore counts every call so tests can assert the store was untouched.
type mockStore struct {
	mu       sync.Mutex
	calls    int
	readErr  error
	appended map[string][]model.NewEvent
	active   []string
	latest   map[string]model.PositionObservation
}

func newMockStore() *mockStore {
	return &mockStore{appended: map[string][]model.NewEvent{}, latest: map[string]model.PositionObservation{}}
}

func (m *mockStore) touch() {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
}

func (m *mockStore) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockStore) ReadView(ctx context.Context, fn func(repository.View) error) error {
	m.touch()
	if m.readErr != nil {
		return m.readErr
	}
	return fn(m)
}

func (m *mockStore) ActiveDrivers(context.Context, string, float64) ([]string, error) {
	return m.active, nil
}

func (m *mockStore) LatestPositions(context.Context, string, float64) (map[string]model.PositionObservation, error) {
	return m.latest, nil
}

func (m *mockStore) Append(_ context.Context, sessionID string, events []model.NewEvent) (int, error) {
	m.touch()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appended[sessionID] = append(m.appended[sessionID], events...)
	return len(events), nil
}

func (m *mockStore) appendedCount(sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.appended[sessionID])
}

func (m *mockStore) LoadEvents(context.Context, string, *float64) ([]model.Event, error) {
	m.touch()
	return nil, nil
}

func (m *mockStore) DeleteSession(context.Context, string) (int64, error) {
	m.touch()
	return 0, nil
}

func (m *mockStore) Sessions(context.Context) ([]model.SessionSummary, error) {
	m.touch()
	return nil, nil
}

func (m *mockStore) Close() error { return nil }

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then it should have sensible defaults", func() {
			So(svc, ShouldNotBeNil)
			So(svc.DefaultSessionID(), ShouldEqual, "bahrain_demo")
			So(svc.DefaultIngestLimits(), ShouldResemble, service.IngestLimits{Laps: 500, Positions: 2000, Pits: 2000})
		})
	})

	Convey("Given a new service with custom options", t, func() {
		svc := service.New(
			service.WithWorkerCount(8),
			service.WithQueueSize(50_000),
			service.WithDedupeSize(25_000),
			service.WithDefaultSessionID("monza"),
			service.WithIngestLimits(service.IngestLimits{Laps: 10}),
		)

		Convey("Then the options are applied", func() {
			So(svc.DefaultSessionID(), ShouldEqual, "monza")
			So(svc.DefaultIngestLimits().Laps, ShouldEqual, 10)
			So(svc.DefaultIngestLimits().Pits, ShouldEqual, 2000)
			stats := svc.GetStats()
			So(stats["workerCount"], ShouldEqual, 8)
			So(stats["queueSize"], ShouldEqual, 50_000)
		})
	})
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a service without a store", t, func() {
		svc := service.New()

		Convey("Then Start fails", func() {
			err := svc.Start(context.Background())
			So(errors.Is(err, service.ErrNotConfigured), ShouldBeTrue)
		})
	})

	Convey("Given a started service", t, func() {
		svc := service.New(service.WithEventStore(newMockStore()), service.WithWorkerCount(2))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)

		Convey("Then it reports as started", func() {
			So(svc.GetStats()["started"], ShouldEqual, true)
			So(svc.GetStats()["queueLength"], ShouldEqual, 0)
		})

		Convey("And a second Start is a no-op", func() {
			So(svc.Start(ctx), ShouldBeNil)
		})

		Convey("When stopping the service", func() {
			svc.Stop()

			Convey("Then it should be marked as stopped", func() {
				So(svc.GetStats()["started"], ShouldEqual, false)
			})

			Convey("And stopping again is safe", func() {
				So(func() { svc.Stop() }, ShouldNotPanic)
			})
		})

		Reset(func() { svc.Stop() })
	})
}

func TestService_InvalidInputNeverReachesStore(t *testing.T) {
	Convey("Given a service over a counting store", t, func() {
		store := newMockStore()
		svc := service.New(service.WithEventStore(store))
		ctx := context.Background()

		cases := []struct {
			name    string
			session string
			cutoff  float64
		}{
			{"negative time", "s1", -1},
			{"NaN time", "s1", math.NaN()},
			{"infinite time", "s1", math.Inf(1)},
			{"negative infinite time", "s1", math.Inf(-1)},
			{"empty session", "", 100},
			{"blank session", "   ", 100},
		}

		for _, c := range cases {
			Convey(fmt.Sprintf("When computing a leaderboard with %s", c.name), func() {
				_, _, err := svc.ComputeLeaderboard(ctx, c.session, c.cutoff)

				Convey("Then ErrInvalidInput is returned without a store call", func() {
					So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)
					So(store.Calls(), ShouldEqual, 0)
				})
			})

			Convey(fmt.Sprintf("When reading state with %s", c.name), func() {
				_, err := svc.State(ctx, c.session, c.cutoff, "")

				Convey("Then ErrInvalidInput is returned without a store call", func() {
					So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)
					So(store.Calls(), ShouldEqual, 0)
				})
			})
		}
	})
}

func TestService_ComputeLeaderboardErrors(t *testing.T) {
	Convey("Given a store that fails", t, func() {
		store := newMockStore()
		store.readErr = fmt.Errorf("%w: begin read view: disk I/O error", repository.ErrStoreUnavailable)
		svc := service.New(service.WithEventStore(store))

		_, _, err := svc.ComputeLeaderboard(context.Background(), "s1", 10)

		Convey("Then the store failure is propagated", func() {
			So(errors.Is(err, service.ErrStoreUnavailable), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "disk I/O error")
		})
	})

	Convey("Given a store with no active drivers", t, func() {
		svc := service.New(service.WithEventStore(newMockStore()))

		_, _, err := svc.ComputeLeaderboard(context.Background(), "s1", 10)

		Convey("Then ErrEmptyResult is returned", func() {
			So(errors.Is(err, service.ErrEmptyResult), ShouldBeTrue)
		})
	})

	Convey("Given a service without a store", t, func() {
		_, _, err := service.New().ComputeLeaderboard(context.Background(), "s1", 10)

		Convey("Then ErrNotConfigured is returned", func() {
			So(errors.Is(err, service.ErrNotConfigured), ShouldBeTrue)
		})
	})
}

func TestService_Submissions(t *testing.T) {
	Convey("Given a service that is not started", t, func() {
		svc := service.New(service.WithEventStore(newMockStore()))

		Convey("Then Enqueue fails", func() {
			err := svc.Enqueue(context.Background(), model.Submission{EventID: "e1", SessionID: "s1"})
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		})
	})

	Convey("Given a started service", t, func() {
		store := newMockStore()
		svc := service.New(service.WithEventStore(store), service.WithWorkerCount(2), service.WithQueueSize(10))
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)

		Convey("When the same id is recorded twice", func() {
			first := svc.SeenAndRecord(ctx, "e1")
			second := svc.SeenAndRecord(ctx, "e1")

			Convey("Then the second is a duplicate", func() {
				So(first, ShouldBeFalse)
				So(second, ShouldBeTrue)
				So(svc.Size(), ShouldEqual, 1)
			})

			Convey("And unrecording allows a retry", func() {
				svc.Unrecord(ctx, "e1")
				So(svc.SeenAndRecord(ctx, "e1"), ShouldBeFalse)
			})
		})

		Convey("When a submission names a padded session", func() {
			err := svc.Enqueue(ctx, model.Submission{
				EventID:   "padded",
				SessionID: " s1",
				Event:     model.NewEvent{Type: model.EventLap, Driver: "VER", TimeSec: 1},
			})

			Convey("Then it is rejected before reaching the queue", func() {
				So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)
				So(store.appendedCount(" s1"), ShouldEqual, 0)
			})
		})

		Convey("When submissions are enqueued and the service stops", func() {
			for i := 0; i < 5; i++ {
				err := svc.Enqueue(ctx, model.Submission{
					EventID:   fmt.Sprintf("e%d", i),
					SessionID: "s1",
					Event:     model.NewEvent{Type: model.EventLap, Driver: "VER", TimeSec: float64(i)},
				})
				So(err, ShouldBeNil)
			}
			svc.Stop()

			Convey("Then every submission was appended", func() {
				So(store.appendedCount("s1"), ShouldEqual, 5)
			})
		})

		Reset(func() { svc.Stop() })
	})
}
