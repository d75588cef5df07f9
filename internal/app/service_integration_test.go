package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/gridreplay/internal/adapters/repository"
	service "github.com/okian/gridreplay/internal/app"
	"github.com/okian/gridreplay/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func openStore(t *testing.T) *repository.SQLiteStore {
	t.Helper()
	store, err := repository.Open(context.Background(), filepath.Join(t.TempDir(), "replay.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func appendEvents(store *repository.SQLiteStore, session string, events ...model.NewEvent) {
	_, err := store.Append(context.Background(), session, events)
	So(err, ShouldBeNil)
}

func lap(driver string, t float64, n int) model.NewEvent {
	return model.NewEvent{Type: model.EventLap, Driver: driver, TimeSec: t, Payload: json.RawMessage(`{"lap":` + itoa(n) + `}`)}
}

func pos(driver string, t float64, p string) model.NewEvent {
	return model.NewEvent{Type: model.EventPosition, Driver: driver, TimeSec: t, Payload: json.RawMessage(`{"position":` + p + `}`)}
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestServiceIntegration_Leaderboard(t *testing.T) {
	Convey("Given a session where A reports P2 and B only laps", t, func() {
		store := openStore(t)
		svc := service.New(service.WithEventStore(store))
		ctx := context.Background()

		appendEvents(store, "s1",
			lap("A", 50, 1),
			pos("A", 100, "2"),
			lap("B", 60, 1),
		)

		Convey("When querying at 150", func() {
			lb, diag, err := svc.ComputeLeaderboard(ctx, "s1", 150)

			Convey("Then B is inferred as leader", func() {
				So(err, ShouldBeNil)
				So(len(lb.Entries), ShouldEqual, 2)
				So(lb.Entries[0].Driver, ShouldEqual, "B")
				So(lb.Entries[0].Position.Is(1), ShouldBeTrue)
				So(lb.Entries[0].Inferred, ShouldBeTrue)
				So(lb.Entries[1].Driver, ShouldEqual, "A")
				So(lb.Entries[1].Position.Is(2), ShouldBeTrue)
				So(diag.InferredDriver, ShouldEqual, "B")
			})

			Convey("And the JSON shape carries nulls for unknown times", func() {
				body, err := json.Marshal(lb)
				So(err, ShouldBeNil)
				So(string(body), ShouldContainSubstring, `"observed_time_sec":null`)
				So(string(body), ShouldContainSubstring, `"as_of_time_sec":150`)
			})
		})

		Convey("When B later reports P5", func() {
			appendEvents(store, "s1", pos("B", 120, "5"))
			lb, _, err := svc.ComputeLeaderboard(ctx, "s1", 150)

			Convey("Then nothing is inferred", func() {
				So(err, ShouldBeNil)
				So(lb.Entries[0].Driver, ShouldEqual, "A")
				So(lb.Entries[1].Driver, ShouldEqual, "B")
				So(lb.Entries[1].Position.Is(5), ShouldBeTrue)
				So(lb.Entries[1].Inferred, ShouldBeFalse)
			})

			Convey("And an earlier cutoff is unaffected by the later event", func() {
				before, _, err := svc.ComputeLeaderboard(ctx, "s1", 110)
				So(err, ShouldBeNil)
				So(before.Entries[0].Driver, ShouldEqual, "B")
				So(before.Entries[0].Inferred, ShouldBeTrue)
			})
		})

		Convey("When querying before any event", func() {
			_, _, err := svc.ComputeLeaderboard(ctx, "s1", 40)

			Convey("Then the result is empty", func() {
				So(errors.Is(err, service.ErrEmptyResult), ShouldBeTrue)
			})
		})

		Convey("When driver metadata exists", func() {
			_, err := store.UpsertDrivers(ctx, "s1", []model.DriverInfo{{Driver: "A", Code: "AAA", Name: "Driver A"}})
			So(err, ShouldBeNil)
			lb, _, err := svc.ComputeLeaderboard(ctx, "s1", 150)

			Convey("Then entries are labelled", func() {
				So(err, ShouldBeNil)
				So(lb.Entries[1].Code, ShouldEqual, "AAA")
				So(lb.Entries[1].Name, ShouldEqual, "Driver A")
				So(lb.Entries[0].Code, ShouldEqual, "")
			})
		})

		Convey("When the same query runs twice", func() {
			first, _, err1 := svc.ComputeLeaderboard(ctx, "s1", 150)
			second, _, err2 := svc.ComputeLeaderboard(ctx, "s1", 150)

			Convey("Then the results are identical", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(second, ShouldResemble, first)
			})
		})
	})
}

func TestServiceIntegration_SessionOperations(t *testing.T) {
	Convey("Given a seeded demo session", t, func() {
		store := openStore(t)
		svc := service.New(service.WithEventStore(store))
		ctx := context.Background()

		n, err := svc.Seed(ctx, "demo")
		So(err, ShouldBeNil)
		So(n, ShouldEqual, 4)

		Convey("Then the state replays laps, pits and positions", func() {
			state, err := svc.State(ctx, "demo", 100, "")
			So(err, ShouldBeNil)
			So(state["VER"].Lap, ShouldEqual, 1)
			So(state["VER"].Pits, ShouldEqual, 1)
			So(state["VER"].Position.Is(1), ShouldBeTrue)
			So(state["LEC"].Lap, ShouldEqual, 1)
		})

		Convey("And a driver filter returns a zero state for unknown drivers", func() {
			state, err := svc.State(ctx, "demo", 100, "HAM")
			So(err, ShouldBeNil)
			So(len(state), ShouldEqual, 1)
			So(state["HAM"].Lap, ShouldEqual, 0)
			So(state["HAM"].Position.IsKnown(), ShouldBeFalse)
		})

		Convey("And the leaderboard ranks VER first without inference", func() {
			lb, _, err := svc.ComputeLeaderboard(ctx, "demo", 100)
			So(err, ShouldBeNil)
			So(lb.Entries[0].Driver, ShouldEqual, "VER")
			So(lb.Entries[0].Inferred, ShouldBeFalse)
			So(lb.Entries[1].Position.IsKnown(), ShouldBeFalse)
		})

		Convey("And events and sessions are listed", func() {
			until := 25.0
			events, err := svc.Events(ctx, "demo", &until)
			So(err, ShouldBeNil)
			So(len(events), ShouldEqual, 2)

			sessions, err := svc.Sessions(ctx)
			So(err, ShouldBeNil)
			So(sessions, ShouldResemble, []model.SessionSummary{{SessionID: "demo", EventCount: 4, TimeRange: [2]float64{10, 40}}})
		})

		Convey("When the session is reset", func() {
			deleted, err := svc.Reset(ctx, "demo")
			So(err, ShouldBeNil)
			So(deleted, ShouldEqual, 4)

			Convey("Then state reports an empty result", func() {
				_, err := svc.State(ctx, "demo", 100, "")
				So(errors.Is(err, service.ErrEmptyResult), ShouldBeTrue)
			})
		})
	})
}

func TestServiceIntegration_SessionIDsAreExact(t *testing.T) {
	Convey("Given a session id with surrounding whitespace", t, func() {
		store := openStore(t)
		svc := service.New(service.WithEventStore(store))
		ctx := context.Background()
		padded := " s1 "

		Convey("Then every operation rejects it as invalid input", func() {
			_, err := svc.Seed(ctx, padded)
			So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)

			_, _, err = svc.ComputeLeaderboard(ctx, padded, 100)
			So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)

			_, err = svc.State(ctx, padded, 100, "")
			So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)

			_, err = svc.Events(ctx, padded, nil)
			So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)

			_, err = svc.Reset(ctx, padded)
			So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)

			_, err = svc.IngestOpenF1(ctx, padded, 9158, svc.DefaultIngestLimits())
			So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)
		})

		Convey("And nothing was written to the store", func() {
			_, _ = svc.Seed(ctx, padded)
			sessions, err := svc.Sessions(ctx)
			So(err, ShouldBeNil)
			So(sessions, ShouldBeEmpty)
		})
	})

	Convey("Given events appended directly under a padded id", t, func() {
		store := openStore(t)
		svc := service.New(service.WithEventStore(store))
		ctx := context.Background()
		appendEvents(store, " s1 ", lap("A", 10, 1))

		Convey("Then the store keeps the id verbatim and the trimmed id stays empty", func() {
			sessions, err := svc.Sessions(ctx)
			So(err, ShouldBeNil)
			So(len(sessions), ShouldEqual, 1)
			So(sessions[0].SessionID, ShouldEqual, " s1 ")

			_, _, err = svc.ComputeLeaderboard(ctx, "s1", 100)
			So(errors.Is(err, service.ErrEmptyResult), ShouldBeTrue)
		})
	})
}

type fakeOpenF1 struct {
	start   time.Time
	err     error
	drivers []model.DriverInfo
	pits    []model.NewEvent
}

func (f *fakeOpenF1) SessionStart(context.Context, int) (time.Time, error) { return f.start, f.err }

func (f *fakeOpenF1) Laps(_ context.Context, _ int, _ time.Time, limit int) ([]model.NewEvent, error) {
	return limited([]model.NewEvent{lap("1", 10, 1), lap("16", 12, 1), lap("1", 100, 2)}, limit), nil
}

func (f *fakeOpenF1) Positions(_ context.Context, _ int, _ time.Time, limit int) ([]model.NewEvent, error) {
	return limited([]model.NewEvent{pos("16", 20, "2")}, limit), nil
}

func (f *fakeOpenF1) Pits(_ context.Context, _ int, _ time.Time, limit int) ([]model.NewEvent, error) {
	return limited(f.pits, limit), nil
}

func (f *fakeOpenF1) Drivers(context.Context, int) ([]model.DriverInfo, error) {
	return f.drivers, nil
}

func limited(events []model.NewEvent, limit int) []model.NewEvent {
	if limit > 0 && len(events) > limit {
		return events[:limit]
	}
	return events
}

func TestServiceIntegration_OpenF1(t *testing.T) {
	Convey("Given a service with an OpenF1 source", t, func() {
		store := openStore(t)
		src := &fakeOpenF1{
			start:   time.Date(2024, 3, 2, 15, 0, 0, 0, time.UTC),
			drivers: []model.DriverInfo{{Driver: "1", Code: "VER", Name: "Max Verstappen"}},
		}
		svc := service.New(service.WithEventStore(store), service.WithOpenF1Client(src))
		ctx := context.Background()

		Convey("When ingesting a session with a lap limit", func() {
			res, err := svc.IngestOpenF1(ctx, "bahrain", 9999, service.IngestLimits{Laps: 2})

			Convey("Then counts per kind are reported", func() {
				So(err, ShouldBeNil)
				So(res.Inserted.Laps, ShouldEqual, 2)
				So(res.Inserted.Positions, ShouldEqual, 1)
				So(res.Inserted.Pits, ShouldEqual, 0)
				So(res.InsertedTotal, ShouldEqual, 3)
			})

			Convey("And the leaderboard infers driver 1 as leader", func() {
				_, err := svc.IngestOpenF1Drivers(ctx, "bahrain", 9999)
				So(err, ShouldBeNil)

				lb, _, err := svc.ComputeLeaderboard(ctx, "bahrain", 50)
				So(err, ShouldBeNil)
				So(lb.Entries[0].Driver, ShouldEqual, "1")
				So(lb.Entries[0].Code, ShouldEqual, "VER")
				So(lb.Entries[0].Inferred, ShouldBeTrue)
			})
		})

		Convey("When one fetched event cannot be stored", func() {
			src.pits = []model.NewEvent{{Driver: "16", TimeSec: 30}}
			_, err := svc.IngestOpenF1(ctx, "bahrain", 9999, service.IngestLimits{})

			Convey("Then the ingest fails and no laps or positions are kept", func() {
				So(errors.Is(err, repository.ErrInvalidEvent), ShouldBeTrue)
				sessions, err := svc.Sessions(ctx)
				So(err, ShouldBeNil)
				So(sessions, ShouldBeEmpty)
			})
		})

		Convey("When the upstream session is missing", func() {
			src.err = errors.New("session not found")
			_, err := svc.IngestOpenF1(ctx, "bahrain", 1, service.IngestLimits{})

			Convey("Then the error is returned", func() {
				So(err, ShouldNotBeNil)
			})
		})

		Convey("When the session key is invalid", func() {
			_, err := svc.IngestOpenF1(ctx, "bahrain", 0, service.IngestLimits{})

			Convey("Then ErrInvalidInput is returned", func() {
				So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)
			})
		})

		Convey("When no drivers come back", func() {
			src.drivers = nil
			_, err := svc.IngestOpenF1Drivers(ctx, "bahrain", 9999)

			Convey("Then ErrNothingIngested is returned", func() {
				So(errors.Is(err, service.ErrNothingIngested), ShouldBeTrue)
			})
		})
	})
}
