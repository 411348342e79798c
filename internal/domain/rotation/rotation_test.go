package rotation_test

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/duel/internal/domain/model"
	"github.com/okian/duel/internal/domain/rotation"
	. "github.com/smartystreets/goconvey/convey"
)

type stubSource struct {
	rows  []model.LeaderboardEntry
	err   error
	calls []string
}

func (s *stubSource) TopByPoints(_ context.Context, n int) ([]model.LeaderboardEntry, error) {
	s.calls = append(s.calls, "points")
	return s.rows, s.err
}

func (s *stubSource) TopByVictories(_ context.Context, n int) ([]model.LeaderboardEntry, error) {
	s.calls = append(s.calls, "victories")
	return s.rows, s.err
}

func users(v *rotation.View) []string {
	out := make([]string, len(v.Entries))
	for i, e := range v.Entries {
		out[i] = e.UserID
	}
	return out
}

func TestRotator(t *testing.T) {
	Convey("Given a ledger with points and victories that disagree", t, func() {
		ctx := context.Background()
		src := &stubSource{rows: []model.LeaderboardEntry{
			{UserID: "ana", Points: 120, Victories: 1},
			{UserID: "bia", Points: 300, Victories: 0},
			{UserID: "caio", Points: 120, Victories: 3},
			{UserID: "duda", Points: 90, Victories: 3},
		}}
		r := rotation.New(src, 10)

		_, shown := r.Current()
		So(shown, ShouldBeFalse)

		Convey("When the rotation starts", func() {
			v, err := r.Start(ctx)

			Convey("Then points are shown descending with ties in source order", func() {
				So(err, ShouldBeNil)
				So(v.Metric, ShouldEqual, model.MetricPoints)
				So(users(&v), ShouldResemble, []string{"bia", "ana", "caio", "duda"})
				for i, e := range v.Entries {
					So(e.Rank, ShouldEqual, i+1)
				}
			})

			Convey("And then it rotates", func() {
				v, err := r.Rotate(ctx)

				Convey("Then it re-reads and re-sorts by victories", func() {
					So(err, ShouldBeNil)
					So(v.Metric, ShouldEqual, model.MetricVictories)
					So(users(&v), ShouldResemble, []string{"caio", "duda", "ana", "bia"})
					So(v.Entries[0].Rank, ShouldEqual, 1)
					So(v.Entries[3].Rank, ShouldEqual, 4)
					So(src.calls, ShouldResemble, []string{"points", "victories"})
				})

				Convey("Then the next rotation returns to points", func() {
					v, _ := r.Rotate(ctx)
					So(v.Metric, ShouldEqual, model.MetricPoints)
				})
			})

			Convey("And then the ledger fails", func() {
				src.err = errors.New("db down")
				v, err := r.Rotate(ctx)

				Convey("Then the previous view stays and the cadence advances", func() {
					So(err, ShouldNotBeNil)
					So(v.Metric, ShouldEqual, model.MetricPoints)
					src.err = nil
					v, _ = r.Rotate(ctx)
					So(v.Metric, ShouldEqual, model.MetricPoints)
				})
			})

			Convey("And then it stops", func() {
				r.Stop()
				_, shown := r.Current()
				So(shown, ShouldBeFalse)
			})
		})
	})
}

func TestLoad(t *testing.T) {
	Convey("Given more rows than requested", t, func() {
		src := &stubSource{rows: []model.LeaderboardEntry{
			{UserID: "a", Points: 1}, {UserID: "b", Points: 2}, {UserID: "c", Points: 3},
		}}

		rows, err := rotation.Load(context.Background(), src, model.MetricPoints, 2)

		So(err, ShouldBeNil)
		So(len(rows), ShouldEqual, 2)
		So(rows[0].UserID, ShouldEqual, "c")
		So(rows[1].Rank, ShouldEqual, 2)
		So(src.rows[0].Rank, ShouldEqual, 0)
	})

	Convey("Given an unknown metric", t, func() {
		_, err := rotation.Load(context.Background(), &stubSource{}, "goals", 10)
		So(errors.Is(err, model.ErrUnknownMetric), ShouldBeTrue)
	})
}
