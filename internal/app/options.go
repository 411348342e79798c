package service

import (
	"time"

	"github.com/okian/duel/internal/domain/timer"
	"github.com/okian/duel/pkg/logger"
)

// Timings paces a match.
type Timings struct {
	Unit                time.Duration
	Autostart           time.Duration
	IntroDwell          time.Duration
	CountdownStart      int
	Settle              time.Duration
	FinalSampleDelay    time.Duration
	RoundClockInterval  time.Duration
	SampleInterval      time.Duration
	LeaderboardDelay    time.Duration
	LeaderboardInterval time.Duration
	LeaderboardSize     int
}

// DefaultTimings returns the pacing of the venue show.
func DefaultTimings() Timings {
	return Timings{
		Unit:                time.Second,
		Autostart:           time.Second,
		IntroDwell:          5 * time.Second,
		CountdownStart:      3,
		Settle:              3 * time.Second,
		FinalSampleDelay:    500 * time.Millisecond,
		RoundClockInterval:  100 * time.Millisecond,
		SampleInterval:      time.Second,
		LeaderboardDelay:    8 * time.Second,
		LeaderboardInterval: 8 * time.Second,
		LeaderboardSize:     10,
	}
}

// Option applies a configuration option to the Machine.
type Option func(*Machine)

// WithTimings overrides the match pacing.
func WithTimings(t Timings) Option {
	return func(m *Machine) {
		if t.Unit > 0 {
			m.timings = t
		}
	}
}

// WithClock sets the time source.
func WithClock(c timer.Clock) Option {
	return func(m *Machine) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithLogger sets a custom logger for the machine.
func WithLogger(l logger.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.log = l
		}
	}
}

// WithReasons sets the ledger reasons for points and victories.
func WithReasons(points, victory string) Option {
	return func(m *Machine) {
		if points != "" {
			m.pointsReason = points
		}
		if victory != "" {
			m.victoryReason = victory
		}
	}
}

// WithInboxSize bounds the inbox.
func WithInboxSize(size int) Option {
	return func(m *Machine) {
		if size > 0 {
			m.inboxSize = size
		}
	}
}

// WithGuardSize bounds the one-shot effect guard.
func WithGuardSize(size int) Option {
	return func(m *Machine) {
		if size > 0 {
			m.guardSize = size
		}
	}
}
