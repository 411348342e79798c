package timer

import "time"

// Countdown derives its value from the time elapsed since it was reset.
type Countdown struct {
	start  int
	unit   time.Duration
	anchor time.Time
	done   bool
}

// NewCountdown creates a countdown from start, decrementing once per unit.
func NewCountdown(start int, unit time.Duration) *Countdown {
	return &Countdown{start: start, unit: unit, done: true}
}

// Reset puts the countdown back to its start value at now.
func (c *Countdown) Reset(now time.Time) {
	c.anchor = now
	c.done = false
}

// Value is start minus the whole units elapsed, never below zero.
func (c *Countdown) Value(now time.Time) int {
	if c.done {
		return 0
	}
	elapsed := now.Sub(c.anchor)
	if elapsed < 0 {
		elapsed = 0
	}
	v := c.start - int(elapsed/c.unit)
	if v < 0 {
		return 0
	}
	return v
}

// Check returns the current value and reports completion once, the first
// time the value reaches zero after a Reset.
func (c *Countdown) Check(now time.Time) (int, bool) {
	if c.done {
		return 0, false
	}
	v := c.Value(now)
	if v > 0 {
		return v, false
	}
	c.done = true
	return 0, true
}

// Running reports whether the countdown was reset and has not completed.
func (c *Countdown) Running() bool { return !c.done }
