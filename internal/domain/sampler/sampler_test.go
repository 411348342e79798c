package sampler_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/okian/duel/internal/domain/model"
	"github.com/okian/duel/internal/domain/sampler"
	. "github.com/smartystreets/goconvey/convey"
)

type stubReader struct {
	snaps map[string]model.BandScoreSnapshot
	err   error
	calls []string
}

func (r *stubReader) ReadScores(_ context.Context, id string) (model.BandScoreSnapshot, error) {
	r.calls = append(r.calls, id)
	if r.err != nil {
		return nil, r.err
	}
	return r.snaps[id], nil
}

func TestMagnitude(t *testing.T) {
	Convey("Given signed axis readings", t, func() {
		snap := model.BandScoreSnapshot{model.AxisX: -12.6, model.AxisY: 7.4, model.AxisZ: math.NaN()}

		So(sampler.Magnitude(snap, model.AxisX), ShouldEqual, 13)
		So(sampler.Magnitude(snap, model.AxisY), ShouldEqual, 7)
		So(sampler.Magnitude(snap, model.AxisZ), ShouldEqual, 0)
		So(sampler.Magnitude(model.BandScoreSnapshot{}, model.AxisX), ShouldEqual, 0)
		So(sampler.Magnitude(nil, model.AxisX), ShouldEqual, 0)
	})
}

func TestSampler(t *testing.T) {
	Convey("Given a sampler over a telemetry reader", t, func() {
		ctx := context.Background()
		reader := &stubReader{snaps: map[string]model.BandScoreSnapshot{
			"010": {model.AxisX: -200.2},
			"020": {model.AxisX: 149.5},
		}}
		s := sampler.New(reader)

		Convey("When both bands are read", func() {
			a := s.Sample(ctx, model.Band010, model.AxisX)
			b := s.Sample(ctx, model.Band020, model.AxisX)

			Convey("Then magnitudes are returned and telemetry ids are used", func() {
				So(a, ShouldEqual, 200)
				So(b, ShouldEqual, 150)
				So(reader.calls, ShouldResemble, []string{"010", "020"})
				So(s.Last(model.Band010), ShouldEqual, 200)
			})

			Convey("And then the reader starts failing", func() {
				reader.err = errors.New("timeout")

				Convey("Then the last known value is returned", func() {
					So(s.Sample(ctx, model.Band010, model.AxisX), ShouldEqual, 200)
					So(s.Sample(ctx, model.Band020, model.AxisX), ShouldEqual, 150)
				})
			})

			Convey("And then the sampler is reset before a failure", func() {
				s.Reset()
				reader.err = errors.New("timeout")

				Convey("Then the fallback is zero", func() {
					So(s.Sample(ctx, model.Band010, model.AxisX), ShouldEqual, 0)
				})
			})
		})

		Convey("When the first read fails", func() {
			reader.err = errors.New("offline")

			Convey("Then zero is returned", func() {
				So(s.Sample(ctx, model.Band020, model.AxisY), ShouldEqual, 0)
			})
		})

		Convey("When the axis is absent from the snapshot", func() {
			So(s.Sample(ctx, model.Band010, model.AxisZ), ShouldEqual, 0)
		})
	})
}

func TestSamplerWithoutReader(t *testing.T) {
	Convey("Given a sampler built without a telemetry reader", t, func() {
		s := sampler.New(nil)

		Convey("Then every sample falls back to zero without panicking", func() {
			So(func() { s.Sample(context.Background(), model.Band010, model.AxisX) }, ShouldNotPanic)
			So(s.Sample(context.Background(), model.Band020, model.AxisZ), ShouldEqual, 0)
			So(s.Last(model.Band010), ShouldEqual, 0)
		})
	})
}
