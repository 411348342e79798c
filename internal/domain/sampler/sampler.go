// Package sampler reduces band telemetry snapshots to round scores.
package sampler

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/okian/duel/internal/domain/model"
	"github.com/okian/duel/pkg/logger"
	"github.com/okian/duel/pkg/metrics"
)

// ErrNoReader is reported for samples taken without a telemetry reader.
var ErrNoReader = errors.New("no telemetry reader")

// Reader fetches the latest snapshot reported under a telemetry id.
type Reader interface {
	ReadScores(ctx context.Context, telemetryID string) (model.BandScoreSnapshot, error)
}

// Option configures a Sampler.
type Option func(*Sampler)

// WithLogger sets the logger used for read failures.
func WithLogger(l logger.Logger) Option {
	return func(s *Sampler) {
		if l != nil {
			s.log = l
		}
	}
}

// Sampler turns snapshots into integer magnitudes and remembers the last
// good value per band. It is owned by a single goroutine.
type Sampler struct {
	reader Reader
	log    logger.Logger
	last   map[model.BandID]int
}

// New creates a Sampler over reader.
func New(reader Reader, opts ...Option) *Sampler {
	s := &Sampler{
		reader: reader,
		log:    logger.Nop(),
		last:   make(map[model.BandID]int, len(model.Bands)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sample returns round(|snapshot[axis]|) for band. A failed read, or a
// Sampler built without a reader, returns the last known value for the band,
// 0 if there is none.
func (s *Sampler) Sample(ctx context.Context, band model.BandID, axis model.Axis) int {
	snap, err := s.read(ctx, band)
	if err != nil {
		metrics.RecordTelemetryError("read")
		prev := s.last[band]
		s.log.Warn(ctx, "score read failed, using last value",
			logger.String("band", string(band)),
			logger.Int("last", prev),
			logger.Error(err),
		)
		return prev
	}

	v := Magnitude(snap, axis)
	s.last[band] = v
	metrics.UpdateSampleValue(string(band), v)
	return v
}

func (s *Sampler) read(ctx context.Context, band model.BandID) (model.BandScoreSnapshot, error) {
	if s.reader == nil {
		return nil, ErrNoReader
	}
	start := time.Now()
	snap, err := s.reader.ReadScores(ctx, band.TelemetryID())
	metrics.RecordTelemetryLatency("read", float64(time.Since(start).Milliseconds()))
	return snap, err
}

// Last returns the last good value for band.
func (s *Sampler) Last(band model.BandID) int {
	return s.last[band]
}

// Reset forgets every last known value.
func (s *Sampler) Reset() {
	clear(s.last)
}

// Magnitude is the rounded absolute value of the axis reading, 0 if absent.
func Magnitude(snap model.BandScoreSnapshot, axis model.Axis) int {
	v := snap.Value(axis)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return int(math.Round(math.Abs(v)))
}
