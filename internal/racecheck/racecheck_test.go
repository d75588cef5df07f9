package racecheck

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/gridreplay/internal/adapters/http/api"
	"github.com/okian/gridreplay/internal/adapters/repository"
	service "github.com/okian/gridreplay/internal/app"
	"github.com/okian/gridreplay/internal/domain/model"
	"github.com/okian/gridreplay/internal/domain/standings"
	"github.com/okian/gridreplay/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func testConfig(baseURL string) *Config {
	return &Config{
		BaseURL:       baseURL,
		SessionID:     "racecheck_test",
		Drivers:       5,
		Laps:          4,
		LapTime:       90 * time.Second,
		PitChance:     0.2,
		Malformed:     2,
		Duplicates:    3,
		Checkpoints:   6,
		Seed:          7,
		Workers:       3,
		Timeout:       5 * time.Second,
		SettleTimeout: 5 * time.Second,
		PollInterval:  10 * time.Millisecond,
	}
}

func TestConfigValidate(t *testing.T) {
	Convey("Given a valid race check config", t, func() {
		cfg := testConfig("http://localhost:9080")
		So(cfg.Validate(), ShouldBeNil)

		Convey("When the grid is larger than the known driver codes", func() {
			cfg.Drivers = len(gridCodes) + 1

			Convey("Then validation fails", func() {
				So(errors.Is(cfg.Validate(), ErrInvalidConfig), ShouldBeTrue)
			})
		})

		Convey("When the pit chance is out of range", func() {
			cfg.PitChance = 1.5

			Convey("Then validation fails", func() {
				So(errors.Is(cfg.Validate(), ErrInvalidConfig), ShouldBeTrue)
			})
		})
	})
}

func TestGenerateRace(t *testing.T) {
	Convey("Given a seeded race", t, func() {
		cfg := testConfig("")
		race := generateRace(cfg)

		Convey("Then the same seed produces the same race apart from event ids", func() {
			again := generateRace(cfg)
			So(len(again.Events), ShouldEqual, len(race.Events))
			So(again.Grid, ShouldResemble, race.Grid)
			for i := range race.Events {
				So(again.Events[i].Driver, ShouldEqual, race.Events[i].Driver)
				So(again.Events[i].TimeSec, ShouldEqual, race.Events[i].TimeSec)
			}
		})

		Convey("And the leader never reports a position", func() {
			for i := range race.Events {
				if race.Events[i].Driver == race.Leader {
					So(race.Events[i].Type, ShouldNotEqual, typePosition)
				}
			}
		})

		Convey("And every event id is unique", func() {
			seen := make(map[string]bool, len(race.Events))
			for _, e := range race.Events {
				So(seen[e.EventID], ShouldBeFalse)
				seen[e.EventID] = true
			}
		})

		Convey("And the configured number of positions are unusable", func() {
			bad := 0
			for i := range race.Events {
				if race.Events[i].Type != typePosition {
					continue
				}
				if _, ok := positionOf(&race.Events[i]); !ok {
					bad++
				}
			}
			So(bad, ShouldEqual, cfg.Malformed)
		})

		Convey("And drivers first appear in grid order", func() {
			first := map[string]float64{}
			for _, e := range race.Events {
				if _, ok := first[e.Driver]; !ok || e.TimeSec < first[e.Driver] {
					first[e.Driver] = e.TimeSec
				}
			}
			for i := 1; i < len(race.Grid); i++ {
				So(first[race.Grid[i-1]], ShouldBeLessThan, first[race.Grid[i]])
			}
		})
	})
}

func TestExpectedLeaderboard(t *testing.T) {
	events := []Event{
		{Type: typeLap, Driver: "A", TimeSec: 50, Lap: 1},
		{Type: typePosition, Driver: "A", TimeSec: 100, Position: 2},
		{Type: typeLap, Driver: "B", TimeSec: 60, Lap: 1},
		{Type: typePosition, Driver: "A", TimeSec: 110, Position: "P?"},
	}

	Convey("Given A at P2 with a later unusable report and B without reports", t, func() {
		lb, err := expectedLeaderboard("s1", events, 150)

		Convey("Then B is inferred leader and A keeps P2", func() {
			So(err, ShouldBeNil)
			So(len(lb.Entries), ShouldEqual, 2)
			So(lb.Entries[0].Driver, ShouldEqual, "B")
			So(lb.Entries[0].Inferred, ShouldBeTrue)
			So(lb.Entries[1].Position.Is(2), ShouldBeTrue)
		})
	})

	Convey("Given a cutoff before every event", t, func() {
		_, err := expectedLeaderboard("s1", events, 10)

		Convey("Then the result is empty", func() {
			So(errors.Is(err, standings.ErrEmptyResult), ShouldBeTrue)
		})
	})
}

func TestCompareLeaderboards(t *testing.T) {
	Convey("Given two leaderboards", t, func() {
		want := model.Leaderboard{Entries: []model.Entry{
			{Driver: "B", Position: model.KnownPosition(1), Inferred: true},
			{Driver: "A", Position: model.KnownPosition(2)},
		}}

		Convey("When they agree", func() {
			got := model.Leaderboard{Entries: append([]model.Entry(nil), want.Entries...)}

			Convey("Then no mismatch is reported", func() {
				So(compareLeaderboards(want, got), ShouldBeNil)
			})
		})

		Convey("When the inference flag differs", func() {
			got := model.Leaderboard{Entries: append([]model.Entry(nil), want.Entries...)}
			got.Entries[0].Inferred = false

			Convey("Then a mismatch is reported", func() {
				So(errors.Is(compareLeaderboards(want, got), ErrMismatch), ShouldBeTrue)
			})
		})

		Convey("When a position is unknown", func() {
			got := model.Leaderboard{Entries: append([]model.Entry(nil), want.Entries...)}
			got.Entries[1].Position = model.UnknownPosition()

			Convey("Then a mismatch is reported", func() {
				err := compareLeaderboards(want, got)
				So(errors.Is(err, ErrMismatch), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "unknown")
			})
		})
	})
}

func TestRunAgainstService(t *testing.T) {
	Convey("Given a running replay service", t, func() {
		store, err := repository.Open(context.Background(), filepath.Join(t.TempDir(), "racecheck.db"))
		So(err, ShouldBeNil)
		defer store.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		svc := service.New(service.WithEventStore(store), service.WithWorkerCount(2), service.WithQueueSize(64))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		mux := http.NewServeMux()
		api.NewServer(svc, svc).Register(ctx, mux)
		srv := httptest.NewServer(mux)
		defer srv.Close()

		Convey("When the race check runs a short race", func() {
			cfg := testConfig(srv.URL)
			stats, err := Run(ctx, cfg)

			Convey("Then every checkpoint matches", func() {
				So(err, ShouldBeNil)
				So(stats.CheckpointsFailed, ShouldEqual, 0)
				So(stats.CheckpointsVerified, ShouldEqual, cfg.Checkpoints+1)
			})

			Convey("And resent events are reported as duplicates", func() {
				So(stats.EventsDuplicate, ShouldEqual, cfg.Duplicates)
				So(stats.EventsAccepted, ShouldEqual, stats.EventsGenerated)
				So(stats.EventsStored, ShouldEqual, stats.EventsGenerated)
			})
		})
	})
}
