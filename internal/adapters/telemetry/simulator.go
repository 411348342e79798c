package telemetry

import (
	"context"
	"math/rand"
	"sync"

	"github.com/pkg/errors"

	"github.com/okian/duel/internal/domain/model"
)

// SimOption configures a Simulator.
type SimOption func(*Simulator)

// WithStep sets the largest increment per read.
func WithStep(step float64) SimOption {
	return func(s *Simulator) {
		if step > 0 {
			s.step = step
		}
	}
}

// WithCeiling bounds the absolute value of every axis.
func WithCeiling(ceiling float64) SimOption {
	return func(s *Simulator) {
		if ceiling > 0 {
			s.ceiling = ceiling
		}
	}
}

// Simulator stands in for real bands. While a band captures, every read
// moves each axis away from zero by a random step, up to the ceiling.
// Axis signs are random per capture.
type Simulator struct {
	mu        sync.Mutex
	rng       *rand.Rand
	step      float64
	ceiling   float64
	capturing map[string]bool
	values    map[string]model.BandScoreSnapshot
	signs     map[string]map[model.Axis]float64
}

// NewSimulator creates a simulator with a deterministic seed.
func NewSimulator(seed int64, opts ...SimOption) *Simulator {
	s := &Simulator{
		rng:       rand.New(rand.NewSource(seed)), //nolint:gosec // simulated readings
		step:      12,
		ceiling:   500,
		capturing: make(map[string]bool),
		values:    make(map[string]model.BandScoreSnapshot),
		signs:     make(map[string]map[model.Axis]float64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Simulator) StartCapture(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.capturing[id] = true
		s.values[id] = model.BandScoreSnapshot{model.AxisX: 0, model.AxisY: 0, model.AxisZ: 0}
		signs := make(map[model.Axis]float64, 3)
		for _, a := range []model.Axis{model.AxisX, model.AxisY, model.AxisZ} {
			signs[a] = 1
			if s.rng.Intn(2) == 0 {
				signs[a] = -1
			}
		}
		s.signs[id] = signs
	}
	return nil
}

func (s *Simulator) StopCapture(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.capturing[id] = false
	}
	return nil
}

// Capturing reports whether id is streaming.
func (s *Simulator) Capturing(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capturing[id]
}

func (s *Simulator) ReadScores(_ context.Context, id string) (model.BandScoreSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.values[id]
	if !ok {
		return nil, errors.Wrapf(ErrNoReading, "band %s", id)
	}
	if s.capturing[id] {
		for axis, v := range cur {
			next := v + s.signs[id][axis]*s.rng.Float64()*s.step
			if next > s.ceiling {
				next = s.ceiling
			} else if next < -s.ceiling {
				next = -s.ceiling
			}
			cur[axis] = next
		}
	}
	out := make(model.BandScoreSnapshot, len(cur))
	for k, v := range cur {
		out[k] = v
	}
	return out, nil
}
