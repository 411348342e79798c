package timer

import "time"

// RoundClock tracks the remaining play time of an active round.
type RoundClock struct {
	unit      time.Duration
	duration  int
	anchor    time.Time
	remaining int
	armed     bool
}

// NewRoundClock creates an inert clock counting in unit steps.
func NewRoundClock(unit time.Duration) *RoundClock {
	return &RoundClock{unit: unit}
}

// Anchor starts a round of duration units at now.
func (r *RoundClock) Anchor(now time.Time, duration int) {
	r.anchor = now
	r.duration = duration
	r.remaining = duration
	r.armed = true
}

// Remaining is duration minus the whole units elapsed since the anchor.
// It never increases between anchors and never goes below zero.
func (r *RoundClock) Remaining(now time.Time) int {
	if !r.armed {
		return r.remaining
	}
	elapsed := now.Sub(r.anchor)
	if elapsed < 0 {
		elapsed = 0
	}
	rem := r.duration - int(elapsed/r.unit)
	if rem < 0 {
		rem = 0
	}
	if rem < r.remaining {
		r.remaining = rem
	}
	return r.remaining
}

// Check reports expiry exactly once per anchor.
func (r *RoundClock) Check(now time.Time) (int, bool) {
	if !r.armed {
		return r.remaining, false
	}
	rem := r.Remaining(now)
	if rem > 0 {
		return rem, false
	}
	r.armed = false
	return 0, true
}

// Armed reports whether the clock is anchored and has not expired.
func (r *RoundClock) Armed() bool { return r.armed }

// Disarm makes the clock inert without signalling expiry.
func (r *RoundClock) Disarm() { r.armed = false }
