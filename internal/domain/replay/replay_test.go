package replay_test

import (
	"encoding/json"
	"testing"

	"github.com/okian/gridreplay/internal/domain/model"
	"github.com/okian/gridreplay/internal/domain/replay"
	. "github.com/smartystreets/goconvey/convey"
)

func ev(id int64, driver string, typ model.EventType, t float64, payload string) model.Event {
	return model.Event{ID: id, SessionID: "s", Driver: driver, Type: typ, TimeSec: t, Payload: json.RawMessage(payload)}
}

func TestReplay(t *testing.T) {
	Convey("Given the demo session events", t, func() {
		events := []model.Event{
			ev(4, "VER", model.EventPosition, 40, `{"position":1}`),
			ev(1, "VER", model.EventLap, 10, `{"lap":1}`),
			ev(2, "LEC", model.EventLap, 25, `{"lap":1}`),
			ev(3, "VER", model.EventPit, 30, `{"pit_count":1}`),
		}

		Convey("When replaying to the end", func() {
			state := replay.Replay(events, 100)

			Convey("Then every driver is rebuilt", func() {
				So(len(state), ShouldEqual, 2)
				So(state["VER"].Lap, ShouldEqual, 1)
				So(state["VER"].Pits, ShouldEqual, 1)
				So(state["VER"].Position.Is(1), ShouldBeTrue)
				So(state["LEC"].Lap, ShouldEqual, 1)
				So(state["LEC"].Position.IsKnown(), ShouldBeFalse)
			})
		})

		Convey("When replaying to a cutoff before the position event", func() {
			state := replay.Replay(events, 30)

			Convey("Then later events are not applied", func() {
				So(state["VER"].Pits, ShouldEqual, 1)
				So(state["VER"].Position.IsKnown(), ShouldBeFalse)
			})
		})

		Convey("When replaying to a cutoff before every event", func() {
			state := replay.Replay(events, 5)

			Convey("Then state is empty", func() {
				So(len(state), ShouldEqual, 0)
			})
		})
	})

	Convey("Given pit events without a running count", t, func() {
		events := []model.Event{
			ev(1, "HAM", model.EventPit, 10, `{}`),
			ev(2, "HAM", model.EventPit, 20, `{}`),
			ev(3, "HAM", model.EventPit, 30, `{"pit_count":null}`),
		}
		state := replay.Replay(events, 25)

		Convey("Then each stop increments the count", func() {
			So(state["HAM"].Pits, ShouldEqual, 2)
		})

		Convey("And a null running count resets to zero", func() {
			So(replay.Replay(events, 30)["HAM"].Pits, ShouldEqual, 0)
		})
	})

	Convey("Given two position events at the same time", t, func() {
		events := []model.Event{
			ev(9, "NOR", model.EventPosition, 50, `{"position":4}`),
			ev(8, "NOR", model.EventPosition, 50, `{"position":7}`),
		}

		Convey("Then the later sequence is applied last", func() {
			So(replay.Replay(events, 50)["NOR"].Position.Is(4), ShouldBeTrue)
		})
	})

	Convey("Given a malformed position event after a valid one", t, func() {
		events := []model.Event{
			ev(1, "PIA", model.EventPosition, 10, `{"position":3}`),
			ev(2, "PIA", model.EventPosition, 20, `{"position":"P2"}`),
		}

		Convey("Then the valid position is kept", func() {
			So(replay.Replay(events, 30)["PIA"].Position.Is(3), ShouldBeTrue)
		})
	})
}

func TestPositionFromPayload(t *testing.T) {
	Convey("Given position payloads", t, func() {
		cases := []struct {
			payload string
			want    int
			ok      bool
		}{
			{`{"position":2}`, 2, true},
			{`{"position":2.0}`, 2, true},
			{`{"position":"7"}`, 7, true},
			{`{"position":2.5}`, 0, false},
			{`{"position":0}`, 0, false},
			{`{"position":-3}`, 0, false},
			{`{"position":null}`, 0, false},
			{`{"position":"leader"}`, 0, false},
			{`{"position":true}`, 0, false},
			{`{}`, 0, false},
			{`not json`, 0, false},
			{``, 0, false},
		}

		for _, c := range cases {
			got, ok := replay.PositionFromPayload([]byte(c.payload))
			So(ok, ShouldEqual, c.ok)
			So(got, ShouldEqual, c.want)
		}
	})
}
