package service

import (
	"time"

	"github.com/okian/duel/internal/domain/model"
	"github.com/okian/duel/internal/domain/result"
	"github.com/okian/duel/internal/domain/rotation"
)

// BandView is one band as shown on screen.
type BandView struct {
	Band      model.BandID `json:"band"`
	UserName  string       `json:"user_name,omitempty"`
	UserEmail string       `json:"user_email,omitempty"`
	Bound     bool         `json:"bound"`
}

// Display is a read-only projection of the match for the screen. It is
// rebuilt from the event record and the machine's timers on every change.
type Display struct {
	MatchID      string                          `json:"match_id,omitempty"`
	Status       model.Status                    `json:"status,omitempty"`
	Round        int                             `json:"round"`
	Movement     string                          `json:"movement,omitempty"`
	Axis         model.Axis                      `json:"axis,omitempty"`
	Countdown    int                             `json:"countdown,omitempty"`
	Remaining    int                             `json:"remaining"`
	LivePoints   result.Scores                   `json:"live_points"`
	RoundWinners [model.RoundCount]model.Winner  `json:"round_winners"`
	Winner       model.Winner                    `json:"winner,omitempty"`
	Totals       *result.Scores                  `json:"totals,omitempty"`
	Bands        []BandView                      `json:"bands,omitempty"`
	Leaderboard  *rotation.View                  `json:"leaderboard,omitempty"`
	UpdatedAt    time.Time                       `json:"updated_at"`
}

// Idle reports whether no match is loaded.
func (d Display) Idle() bool { return d.MatchID == "" }

func (m *Machine) project(now time.Time) Display {
	d := Display{UpdatedAt: now}
	ev := m.event
	if ev == nil {
		return d
	}

	d.MatchID = ev.ID
	d.Status = m.lastStatus
	d.Winner = ev.Winner
	for i := range ev.Rounds {
		d.RoundWinners[i] = ev.Rounds[i].Winner
	}
	for _, b := range model.Bands {
		a := ev.Bands[b]
		d.Bands = append(d.Bands, BandView{Band: b, UserName: a.UserName, UserEmail: a.UserEmail, Bound: a.Bound()})
	}

	if idx := m.lastStatus.RoundIndex(); idx >= 0 {
		r := ev.Rounds[idx]
		d.Round = idx + 1
		d.Movement = r.Movement
		d.Axis = r.Axis
		d.Remaining = r.Duration
	}

	switch {
	case m.lastStatus.IsCountdown():
		d.Countdown = m.countdown.Value(now)
	case m.lastStatus.IsActive():
		d.Remaining = m.roundClock.Remaining(now)
	}

	d.LivePoints = m.live
	if m.match != nil {
		totals := m.match.Totals
		d.Totals = &totals
	}
	if v, ok := m.rotator.Current(); ok {
		d.Leaderboard = &v
	}
	return d
}

// publish stores a fresh projection and hands it to every watcher.
func (m *Machine) publish() {
	d := m.project(m.clock.Now())
	m.display.Store(&d)

	m.watchMu.RLock()
	watchers := make([]func(Display), 0, len(m.watchers))
	for _, fn := range m.watchers {
		watchers = append(watchers, fn)
	}
	m.watchMu.RUnlock()

	for _, fn := range watchers {
		fn(d)
	}
}

// Display returns the latest projection. Safe for concurrent use.
func (m *Machine) Display() Display {
	if d := m.display.Load(); d != nil {
		return *d
	}
	return Display{}
}

// Watch registers fn for every published projection. fn runs on the machine
// goroutine and must not block.
func (m *Machine) Watch(fn func(Display)) (cancel func()) {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()
	m.nextWatch++
	id := m.nextWatch
	m.watchers[id] = fn
	return func() {
		m.watchMu.Lock()
		defer m.watchMu.Unlock()
		delete(m.watchers, id)
	}
}
