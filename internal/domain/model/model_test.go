package model_test

import (
	"errors"
	"testing"

	"github.com/okian/duel/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestStatus(t *testing.T) {
	convey.Convey("Given the phase sequence", t, func() {
		all := model.Statuses()

		convey.Convey("Then Next walks it in order and stops at finished", func() {
			st := model.StatusWaiting
			for i := 1; i < len(all); i++ {
				next, ok := st.Next()
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(next, convey.ShouldEqual, all[i])
				convey.So(st.Before(next), convey.ShouldBeTrue)
				convey.So(next.Before(st), convey.ShouldBeFalse)
				st = next
			}
			_, ok := model.StatusFinished.Next()
			convey.So(ok, convey.ShouldBeFalse)
		})

		convey.Convey("Then phase predicates classify every status", func() {
			convey.So(model.StatusRound1Intro.IsIntro(), convey.ShouldBeTrue)
			convey.So(model.StatusRound2Countdown.IsCountdown(), convey.ShouldBeTrue)
			convey.So(model.StatusRound2Active.IsActive(), convey.ShouldBeTrue)
			convey.So(model.StatusWaiting.IsActive(), convey.ShouldBeFalse)
			convey.So(model.StatusRound1Active.RoundIndex(), convey.ShouldEqual, 0)
			convey.So(model.StatusRound2Intro.RoundIndex(), convey.ShouldEqual, 1)
			convey.So(model.StatusFinished.RoundIndex(), convey.ShouldEqual, -1)
		})

		convey.Convey("Then ParseStatus rejects unknown phases", func() {
			st, err := model.ParseStatus("round2_active")
			convey.So(err, convey.ShouldBeNil)
			convey.So(st, convey.ShouldEqual, model.StatusRound2Active)

			_, err = model.ParseStatus("halftime")
			convey.So(errors.Is(err, model.ErrUnknownStatus), convey.ShouldBeTrue)
			convey.So(model.Status("halftime").Before(model.StatusFinished), convey.ShouldBeFalse)
		})
	})
}

func TestBandsAndWinners(t *testing.T) {
	convey.Convey("Given band identifiers", t, func() {
		convey.Convey("Then telemetry ids strip the band prefix", func() {
			convey.So(model.Band010.TelemetryID(), convey.ShouldEqual, "010")
			convey.So(model.Band020.TelemetryID(), convey.ShouldEqual, "020")

			b, ok := model.BandFromTelemetryID("020")
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(b, convey.ShouldEqual, model.Band020)

			_, ok = model.BandFromTelemetryID("030")
			convey.So(ok, convey.ShouldBeFalse)
		})

		convey.Convey("Then winners map back to bands except tie", func() {
			b, ok := model.WinnerBand010.Band()
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(b, convey.ShouldEqual, model.Band010)

			_, ok = model.WinnerTie.Band()
			convey.So(ok, convey.ShouldBeFalse)
			convey.So(model.WinnerNone.Decided(), convey.ShouldBeFalse)
			convey.So(model.WinnerTie.Decided(), convey.ShouldBeTrue)
		})

		convey.Convey("Then axes parse case-insensitively", func() {
			a, err := model.ParseAxis(" y ")
			convey.So(err, convey.ShouldBeNil)
			convey.So(a, convey.ShouldEqual, model.AxisY)

			_, err = model.ParseAxis("W")
			convey.So(errors.Is(err, model.ErrUnknownAxis), convey.ShouldBeTrue)
		})

		convey.Convey("Then a missing axis reads as zero", func() {
			snap := model.BandScoreSnapshot{model.AxisX: -12.4}
			convey.So(snap.Value(model.AxisX), convey.ShouldEqual, -12.4)
			convey.So(snap.Value(model.AxisZ), convey.ShouldEqual, 0)
		})
	})
}

func TestMetric(t *testing.T) {
	convey.Convey("Given leaderboard metrics", t, func() {
		m, err := model.ParseMetric("")
		convey.So(err, convey.ShouldBeNil)
		convey.So(m, convey.ShouldEqual, model.MetricPoints)
		convey.So(m.Other(), convey.ShouldEqual, model.MetricVictories)
		convey.So(m.Other().Other(), convey.ShouldEqual, model.MetricPoints)

		_, err = model.ParseMetric("goals")
		convey.So(errors.Is(err, model.ErrUnknownMetric), convey.ShouldBeTrue)
	})
}

func TestGameEvent(t *testing.T) {
	convey.Convey("Given a game event with bound bands", t, func() {
		ev := &model.GameEvent{
			ID:     "m1",
			Status: model.StatusRound1Active,
			Rounds: [model.RoundCount]model.Round{
				{Movement: "jump", Axis: model.AxisY, Duration: 30},
				{Movement: "spin", Axis: model.AxisZ, Duration: 20},
			},
			Bands: map[model.BandID]model.BandAssignment{
				model.Band010: {UserID: "u1", UserName: "Ana"},
				model.Band020: {},
			},
		}

		convey.Convey("When it is cloned", func() {
			cp := ev.Clone()
			cp.Bands[model.Band010] = model.BandAssignment{UserID: "other"}
			cp.Rounds[0].Winner = model.WinnerTie

			convey.Convey("Then the original is untouched", func() {
				convey.So(ev.Bands[model.Band010].UserID, convey.ShouldEqual, "u1")
				convey.So(ev.Rounds[0].Winner, convey.ShouldEqual, model.WinnerNone)
			})
		})

		convey.Convey("Then Round follows CurrentRound", func() {
			convey.So(ev.Round().Movement, convey.ShouldEqual, "jump")
			ev.CurrentRound = 1
			convey.So(ev.Round().Axis, convey.ShouldEqual, model.AxisZ)
		})

		convey.Convey("Then an empty assignment is not bound", func() {
			_, ok := ev.Assignment(model.Band010)
			convey.So(ok, convey.ShouldBeTrue)
			_, ok = ev.Assignment(model.Band020)
			convey.So(ok, convey.ShouldBeFalse)
		})

		convey.Convey("Then a nil event clones to nil", func() {
			var nilEv *model.GameEvent
			convey.So(nilEv.Clone(), convey.ShouldBeNil)
		})
	})
}

func TestNewMatchValidate(t *testing.T) {
	convey.Convey("Given a new match request", t, func() {
		m := model.NewMatch{
			Rounds: [model.RoundCount]model.Round{
				{Movement: "jump", Axis: model.AxisY, Duration: 30},
				{Movement: "spin", Axis: model.AxisZ, Duration: 20},
			},
			Bands: map[model.BandID]model.BandAssignment{model.Band010: {UserID: "u1"}},
		}

		convey.So(m.Validate(), convey.ShouldBeNil)

		convey.Convey("When a round has no duration", func() {
			m.Rounds[1].Duration = 0
			err := m.Validate()

			convey.So(errors.Is(err, model.ErrInvalidMatch), convey.ShouldBeTrue)
			var fe *model.FieldError
			convey.So(errors.As(err, &fe), convey.ShouldBeTrue)
			convey.So(fe.Field, convey.ShouldEqual, "rounds[1].duration")
		})

		convey.Convey("When an axis is unknown", func() {
			m.Rounds[0].Axis = "Q"
			convey.So(errors.Is(m.Validate(), model.ErrUnknownAxis), convey.ShouldBeTrue)
		})

		convey.Convey("When a band key is unknown", func() {
			m.Bands["band030"] = model.BandAssignment{UserID: "u3"}
			convey.So(errors.Is(m.Validate(), model.ErrUnknownBand), convey.ShouldBeTrue)
		})
	})
}
