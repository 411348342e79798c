// Package service runs the match state machine that drives the duel display.
package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/duel/internal/adapters/mq/queue"
	"github.com/okian/duel/internal/domain/dedupe"
	"github.com/okian/duel/internal/domain/model"
	"github.com/okian/duel/internal/domain/result"
	"github.com/okian/duel/internal/domain/rotation"
	"github.com/okian/duel/internal/domain/sampler"
	"github.com/okian/duel/internal/domain/timer"
	"github.com/okian/duel/pkg/logger"
	"github.com/okian/duel/pkg/metrics"
)

// Timer slots. At most one of each is pending; all are cancelled on every
// phase change.
const (
	kindAutostart   timer.Kind = "autostart"
	kindIntro       timer.Kind = "intro"
	kindCountdown   timer.Kind = "countdown"
	kindRoundClock  timer.Kind = "round_clock"
	kindSample      timer.Kind = "sample"
	kindFinalSample timer.Kind = "final_sample"
	kindSettle      timer.Kind = "settle"
	kindRetry       timer.Kind = "retry"
	kindLeaderboard timer.Kind = "leaderboard"
	kindRotate      timer.Kind = "rotate"
)

const (
	defaultPointsReason  = "Pontos ganhos no Jogo de Movimento"
	defaultVictoryReason = "Vitória no Jogo de Movimento"
	shutdownTimeout      = 2 * time.Second
)

// Machine owns the match phase. All state below the inbox is touched only by
// the goroutine running Run; store notifications and timer callbacks are
// posted to the inbox.
type Machine struct {
	store     EventStore
	telemetry Telemetry
	ledger    Ledger

	clock         timer.Clock
	timings       Timings
	pointsReason  string
	victoryReason string
	inboxSize     int
	guardSize     int
	log           logger.Logger

	inbox   *queue.InMemoryQueue[func()]
	running atomic.Bool

	// loop-owned
	ctx         context.Context
	unsubscribe func()
	timers      *timer.Table
	guard       dedupe.Deduper
	sampler     *sampler.Sampler
	countdown   *timer.Countdown
	roundClock  *timer.RoundClock
	rotator     *rotation.Rotator

	event      *model.GameEvent
	lastStatus model.Status
	capturing  bool
	remaining  int
	live       result.Scores
	round1     *result.RoundResult
	match      *result.MatchResult

	display   atomic.Pointer[Display]
	watchMu   sync.RWMutex
	watchers  map[uint64]func(Display)
	nextWatch uint64
}

// New constructs a Machine over its three collaborators.
func New(store EventStore, telemetry Telemetry, ledger Ledger, opts ...Option) *Machine {
	m := &Machine{
		store:         store,
		telemetry:     telemetry,
		ledger:        ledger,
		clock:         timer.Real(),
		timings:       DefaultTimings(),
		pointsReason:  defaultPointsReason,
		victoryReason: defaultVictoryReason,
		inboxSize:     256,
		guardSize:     1024,
		log:           logger.Nop(),
		watchers:      make(map[uint64]func(Display)),
		ctx:           context.Background(),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.inbox = queue.NewInMemoryQueue[func()](queue.WithCapacity(m.inboxSize))
	m.timers = timer.NewTable(m.clock, m.post)
	m.guard = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(m.guardSize))
	m.sampler = sampler.New(telemetry, sampler.WithLogger(m.log))
	m.countdown = timer.NewCountdown(m.timings.CountdownStart, m.timings.Unit)
	m.roundClock = timer.NewRoundClock(m.timings.Unit)
	m.rotator = rotation.New(ledger, m.timings.LeaderboardSize)

	d := m.project(m.clock.Now())
	m.display.Store(&d)
	return m
}

// Run subscribes to the store and processes the inbox until ctx is done.
// On exit every timer is cancelled and capture is stopped.
func (m *Machine) Run(ctx context.Context) error {
	if m.store == nil {
		return ErrMissingStore
	}
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	m.attach(ctx)
	m.log.Info(ctx, "match machine started")

	items := m.inbox.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return nil
		case fn, ok := <-items:
			if !ok {
				m.shutdown()
				return nil
			}
			fn()
		}
	}
}

// redeliverer is implemented by stores that can replay their current state.
type redeliverer interface {
	Redeliver(ctx context.Context) error
}

// attach subscribes to the store and asks it to replay the live match, so a
// match created before the subscription still reaches the loop.
func (m *Machine) attach(ctx context.Context) {
	m.ctx = ctx
	m.unsubscribe = m.store.Subscribe(m.notify)
	if r, ok := m.store.(redeliverer); ok {
		_ = r.Redeliver(ctx)
	}
}

func (m *Machine) shutdown() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	m.timers.CancelAll()
	m.rotator.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	m.ctx = ctx
	m.stopCapture("shutdown")

	_ = m.inbox.Close()
	m.log.Info(ctx, "match machine stopped")
}

// drain runs queued work on the calling goroutine until the inbox is empty.
func (m *Machine) drain() {
	for {
		fn, ok := m.inbox.TryDequeue()
		if !ok {
			return
		}
		fn()
	}
}

// notify is the store subscription callback. It only enqueues.
func (m *Machine) notify(ev *model.GameEvent) {
	if err := m.post(func() { m.onEvent(ev) }); errors.Is(err, timer.ErrBusy) {
		m.log.Error(context.Background(), "machine inbox full, store notification dropped",
			logger.Int("len", m.inbox.Len(context.Background())))
	}
}

// post queues fn for the loop. A full inbox returns timer.ErrBusy, which the
// timer table answers by retrying the callback.
func (m *Machine) post(fn func()) error {
	if m.inbox.IsClosed() {
		return ErrInboxClosed
	}
	if !m.inbox.Enqueue(context.Background(), fn) {
		return timer.ErrBusy
	}
	return nil
}

// Stats reports counters for monitoring. Safe for concurrent use.
func (m *Machine) Stats() map[string]interface{} {
	d := m.Display()
	return map[string]interface{}{
		"running":     m.running.Load(),
		"matchId":     d.MatchID,
		"status":      d.Status,
		"inboxLength": m.inbox.Len(context.Background()),
		"guardSize":   m.guard.Size(),
	}
}

func (m *Machine) onEvent(ev *model.GameEvent) {
	ctx := m.ctx

	if ev == nil {
		if m.event != nil {
			m.abandon("cleared")
			m.publish()
		}
		return
	}

	if m.event == nil || m.event.ID != ev.ID {
		if m.event != nil {
			m.abandon("replaced")
		}
		m.event = nil
		m.lastStatus = ""
	}

	prev := m.lastStatus
	switch {
	case prev != "" && ev.Status == prev:
		m.event = ev
		metrics.RecordNotificationSuppressed("duplicate")
		m.publish()
		return
	case prev != "" && ev.Status.Before(prev):
		metrics.RecordNotificationSuppressed("out_of_order")
		m.log.Debug(ctx, "ignoring stale status",
			logger.String("match_id", ev.ID),
			logger.String("status", ev.Status.String()),
			logger.String("current", prev.String()),
		)
		return
	}

	if next, _ := prev.Next(); prev != "" && ev.Status != next {
		m.log.Warn(ctx, "status skipped ahead",
			logger.String("match_id", ev.ID),
			logger.String("from", prev.String()),
			logger.String("to", ev.Status.String()),
		)
	}

	m.event = ev
	m.lastStatus = ev.Status
	m.enter(prev, ev.Status)
	m.publish()
}

// enter arms the timers of status after cancelling those of prev.
func (m *Machine) enter(prev, status model.Status) {
	ctx := m.ctx
	m.timers.CancelAll()
	if m.capturing && !status.IsActive() {
		m.stopCapture("left_active")
	}
	if status.IsActive() && prev.IsActive() && prev != status {
		m.stopCapture("round_changed")
	}

	metrics.RecordPhaseTransition(status.String(), status.Ordinal())
	m.log.Info(ctx, "entering phase",
		logger.String("match_id", m.event.ID),
		logger.String("status", status.String()),
		logger.String("from", prev.String()),
	)

	switch {
	case status == model.StatusWaiting:
		if m.once(dedupe.EffectAutostart) {
			m.timers.Once(kindAutostart, m.timings.Autostart, func() {
				m.writeStatus(model.StatusRound1Intro)
			})
		}

	case status.IsIntro():
		idx := status.RoundIndex()
		metrics.UpdateCurrentRound(idx)
		m.timers.Once(kindIntro, m.timings.IntroDwell, func() {
			m.writeStatus(countdownOf(idx))
		})

	case status.IsCountdown():
		idx := status.RoundIndex()
		m.countdown.Reset(m.clock.Now())
		m.timers.Every(kindCountdown, m.timings.Unit, func() {
			_, done := m.countdown.Check(m.clock.Now())
			if done {
				m.timers.Cancel(kindCountdown)
				m.writeStatus(activeOf(idx))
			}
			m.publish()
		})

	case status.IsActive():
		m.startRound(status.RoundIndex())

	case status == model.StatusFinished:
		m.timers.Once(kindLeaderboard, m.timings.LeaderboardDelay, m.showLeaderboard)
	}
}

func (m *Machine) startRound(idx int) {
	round := m.event.Rounds[idx]
	m.sampler.Reset()
	if idx == 0 {
		m.live = result.Scores{}
	}
	m.startCapture(idx)

	m.roundClock.Anchor(m.clock.Now(), round.Duration)
	m.remaining = round.Duration
	m.timers.Every(kindRoundClock, m.timings.RoundClockInterval, m.checkRoundClock)
	m.timers.Every(kindSample, m.timings.SampleInterval, m.sampleLive)
}

func (m *Machine) checkRoundClock() {
	remaining, expired := m.roundClock.Check(m.clock.Now())
	if !expired {
		if remaining != m.remaining {
			m.remaining = remaining
			m.publish()
		}
		return
	}
	m.remaining = 0

	idx := m.lastStatus.RoundIndex()
	m.timers.Cancel(kindRoundClock)
	m.timers.Cancel(kindSample)
	m.stopCapture("round_expired")
	m.log.Info(m.ctx, "round expired", logger.String("match_id", m.event.ID), logger.Int("round", idx+1))

	m.timers.Once(kindFinalSample, m.timings.FinalSampleDelay, func() {
		m.finishRound(idx)
	})
	m.publish()
}

func (m *Machine) sampleLive() {
	axis := m.event.Rounds[m.lastStatus.RoundIndex()].Axis
	m.live = result.Scores{
		Band010: m.sampler.Sample(m.ctx, model.Band010, axis),
		Band020: m.sampler.Sample(m.ctx, model.Band020, axis),
	}
	m.publish()
}

// finishRound freezes the final samples of round idx and moves the match on.
func (m *Machine) finishRound(idx int) {
	effect := dedupe.EffectRound1Result
	if idx == 1 {
		effect = dedupe.EffectMatchResult
	}
	if !m.once(effect) {
		return
	}

	ctx := m.ctx
	axis := m.event.Rounds[idx].Axis
	s010 := m.sampler.Sample(ctx, model.Band010, axis)
	s020 := m.sampler.Sample(ctx, model.Band020, axis)
	rr := result.FinalizeRound(idx, s010, s020)
	metrics.RecordRoundOutcome(roundLabel(idx), string(rr.Winner))

	if idx == 0 {
		m.round1 = &rr
		m.live = rr.Scores
		m.log.Info(ctx, "round finished",
			logger.String("match_id", m.event.ID),
			logger.Int("round", 1),
			logger.Int("band010", s010),
			logger.Int("band020", s020),
			logger.String("winner", string(rr.Winner)),
		)
		m.write("set_round_winner", func() error { return m.store.SetRoundWinner(ctx, 0, rr.Winner) })
		m.timers.Once(kindSettle, m.timings.Settle, func() {
			m.write("update_current_round", func() error { return m.store.UpdateCurrentRound(ctx, 1) })
			m.writeStatus(model.StatusRound2Intro)
		})
		m.publish()
		return
	}

	round1 := result.RoundResult{Index: 0}
	if m.round1 != nil {
		round1 = *m.round1
	} else {
		m.log.Warn(ctx, "round 1 result missing, totalling round 2 only", logger.String("match_id", m.event.ID))
	}
	mr := result.FinalizeMatch(round1, rr)
	m.match = &mr
	m.live = mr.Totals
	metrics.RecordMatchOutcome(string(mr.Winner))
	m.log.Info(ctx, "match finished",
		logger.String("match_id", m.event.ID),
		logger.Int("band010", mr.Totals.Band010),
		logger.Int("band020", mr.Totals.Band020),
		logger.String("round2_winner", string(rr.Winner)),
		logger.String("winner", string(mr.Winner)),
	)

	m.write("set_round_winner", func() error { return m.store.SetRoundWinner(ctx, 1, rr.Winner) })
	m.write("set_game_winner", func() error { return m.store.SetGameWinner(ctx, mr.Winner) })
	m.commit(mr)
	m.writeStatus(model.StatusFinished)
	m.publish()
}

// commit credits the ledger once per match. Failures are logged and lost.
func (m *Machine) commit(mr result.MatchResult) {
	if m.ledger == nil || !m.once(dedupe.EffectLedgerCommit) {
		return
	}
	ctx := m.ctx
	bands := m.event.Bands

	points := result.CommitPoints(ctx, m.ledger, bands, mr.Totals, m.pointsReason)
	m.logCommit("points", points)
	victory := result.CommitVictory(ctx, m.ledger, bands, mr.Winner, m.victoryReason)
	m.logCommit("victory", victory)
}

func (m *Machine) logCommit(kind string, rep result.CommitReport) {
	for _, b := range rep.Skipped {
		m.log.Debug(m.ctx, "no user bound, ledger credit skipped", logger.String("kind", kind), logger.String("band", string(b)))
	}
	for b, err := range rep.Failed {
		metrics.RecordErrorByComponent("ledger", kind)
		m.log.Error(m.ctx, "ledger credit failed",
			logger.String("match_id", m.event.ID),
			logger.String("kind", kind),
			logger.String("band", string(b)),
			logger.Error(err),
		)
	}
}

func (m *Machine) showLeaderboard() {
	if m.ledger == nil {
		return
	}
	if _, err := m.rotator.Start(m.ctx); err != nil {
		m.log.Warn(m.ctx, "leaderboard read failed", logger.Error(err))
	}
	m.timers.Every(kindRotate, m.timings.LeaderboardInterval, func() {
		if _, err := m.rotator.Rotate(m.ctx); err != nil {
			m.log.Warn(m.ctx, "leaderboard read failed", logger.Error(err))
		}
		m.publish()
	})
	m.publish()
}

// abandon tears down a match that was cleared or replaced mid-flight.
func (m *Machine) abandon(reason string) {
	m.log.Info(m.ctx, "match abandoned",
		logger.String("match_id", m.event.ID),
		logger.String("status", m.lastStatus.String()),
		logger.String("reason", reason),
	)
	m.timers.CancelAll()
	m.stopCapture(reason)
	m.rotator.Stop()
	m.roundClock.Disarm()

	m.event = nil
	m.lastStatus = ""
	m.remaining = 0
	m.live = result.Scores{}
	m.round1 = nil
	m.match = nil
}

func (m *Machine) startCapture(idx int) {
	effect := dedupe.EffectCaptureStart1
	if idx == 1 {
		effect = dedupe.EffectCaptureStart2
	}
	if !m.once(effect) {
		return
	}
	m.capturing = true
	if m.telemetry == nil {
		return
	}
	if err := m.telemetry.StartCapture(m.ctx, telemetryIDs()); err != nil {
		metrics.RecordTelemetryError("start")
		m.log.Warn(m.ctx, "start capture failed", logger.Int("round", idx+1), logger.Error(err))
	}
}

// stopCapture stops both bands whenever capture may be on.
func (m *Machine) stopCapture(reason string) {
	if !m.capturing {
		return
	}
	m.capturing = false
	if m.telemetry == nil {
		return
	}
	if err := m.telemetry.StopCapture(m.ctx, telemetryIDs()); err != nil {
		metrics.RecordTelemetryError("stop")
		m.log.Warn(m.ctx, "stop capture failed", logger.String("reason", reason), logger.Error(err))
		return
	}
	m.log.Debug(m.ctx, "capture stopped", logger.String("reason", reason))
}

// writeStatus writes status and retries every unit while the phase holds.
func (m *Machine) writeStatus(status model.Status) {
	err := m.store.UpdateStatus(m.ctx, status)
	if err == nil {
		return
	}
	metrics.RecordErrorByComponent("event_store", "update_status")
	m.log.Warn(m.ctx, "status write failed, retrying",
		logger.String("status", status.String()),
		logger.Duration("retry_in", m.timings.Unit),
		logger.Error(err),
	)
	m.timers.Once(kindRetry, m.timings.Unit, func() { m.writeStatus(status) })
}

func (m *Machine) write(op string, fn func() error) {
	if err := fn(); err != nil {
		metrics.RecordErrorByComponent("event_store", op)
		m.log.Warn(m.ctx, "event store write failed", logger.String("op", op), logger.Error(err))
	}
}

// once reports whether effect has not yet run for the current match, and
// records it.
func (m *Machine) once(effect dedupe.Effect) bool {
	return !m.guard.SeenAndRecord(m.ctx, dedupe.Key(m.event.ID, effect))
}

func telemetryIDs() []string {
	ids := make([]string, len(model.Bands))
	for i, b := range model.Bands {
		ids[i] = b.TelemetryID()
	}
	return ids
}

func countdownOf(idx int) model.Status {
	if idx == 1 {
		return model.StatusRound2Countdown
	}
	return model.StatusRound1Countdown
}

func activeOf(idx int) model.Status {
	if idx == 1 {
		return model.StatusRound2Active
	}
	return model.StatusRound1Active
}

func roundLabel(idx int) string {
	if idx == 1 {
		return "2"
	}
	return "1"
}
