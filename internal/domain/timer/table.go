package timer

import (
	"errors"
	"time"

	"github.com/okian/duel/pkg/metrics"
)

// Kind names a timer slot in a Table.
type Kind string

// ErrBusy is returned by a Dispatch that cannot take work right now. The
// Table retries the callback after DispatchRetry.
var ErrBusy = errors.New("dispatch queue full")

// DispatchRetry is the delay before a busy dispatch is attempted again.
const DispatchRetry = 10 * time.Millisecond

// Dispatch queues f for the goroutine that owns the Table. Any error other
// than ErrBusy discards f.
type Dispatch func(f func()) error

type entry struct {
	id       uint64
	timer    Timer
	anchor   time.Time
	interval time.Duration
	fires    int
	fn       func()
}

// Table holds at most one timer per kind. Every armed timer gets a fresh id;
// callbacks are posted through Dispatch and dropped on arrival when their
// kind was cancelled or re-armed since. All methods must be called from the
// owning goroutine.
type Table struct {
	clock    Clock
	dispatch Dispatch
	nextID   uint64
	entries  map[Kind]*entry
}

// NewTable creates a Table on clock that delivers callbacks through dispatch.
func NewTable(clock Clock, dispatch Dispatch) *Table {
	return &Table{
		clock:    clock,
		dispatch: dispatch,
		entries:  make(map[Kind]*entry),
	}
}

// Once arms kind to run fn after d, replacing any timer of that kind.
func (t *Table) Once(kind Kind, d time.Duration, fn func()) {
	t.arm(kind, &entry{fn: fn}, d)
}

// Every runs fn each interval until cancelled. Deadlines are anchored to the
// arming time so a late callback does not shift the following ones.
func (t *Table) Every(kind Kind, interval time.Duration, fn func()) {
	t.arm(kind, &entry{fn: fn, anchor: t.clock.Now(), interval: interval}, interval)
}

// Active reports whether kind has a pending timer.
func (t *Table) Active(kind Kind) bool {
	_, ok := t.entries[kind]
	return ok
}

// Len is the number of pending timers.
func (t *Table) Len() int { return len(t.entries) }

// Cancel stops the timer of kind.
func (t *Table) Cancel(kind Kind) {
	if e, ok := t.entries[kind]; ok {
		e.timer.Stop()
		delete(t.entries, kind)
	}
}

// CancelAll stops every timer.
func (t *Table) CancelAll() {
	for kind, e := range t.entries {
		e.timer.Stop()
		delete(t.entries, kind)
	}
}

func (t *Table) arm(kind Kind, e *entry, d time.Duration) {
	t.Cancel(kind)
	t.nextID++
	e.id = t.nextID
	t.entries[kind] = e
	t.schedule(kind, e, d)
}

func (t *Table) schedule(kind Kind, e *entry, d time.Duration) {
	id := e.id
	e.timer = t.clock.AfterFunc(d, func() { t.deliver(kind, id) })
}

// deliver runs on the clock's goroutine. A busy dispatcher gets the callback
// again after DispatchRetry; entries are not touched here, so a retry for a
// cancelled timer is still dropped by fire.
func (t *Table) deliver(kind Kind, id uint64) {
	err := t.dispatch(func() { t.fire(kind, id) })
	switch {
	case err == nil:
	case errors.Is(err, ErrBusy):
		metrics.RecordTimerDeferred(string(kind))
		t.clock.AfterFunc(DispatchRetry, func() { t.deliver(kind, id) })
	default:
		metrics.RecordTimerDiscarded(string(kind))
	}
}

func (t *Table) fire(kind Kind, id uint64) {
	e, ok := t.entries[kind]
	if !ok || e.id != id {
		metrics.RecordStaleTimerDrop()
		return
	}
	metrics.RecordTimerFire(string(kind))

	if e.interval <= 0 {
		delete(t.entries, kind)
		e.fn()
		return
	}

	e.fires++
	next := e.anchor.Add(time.Duration(e.fires+1) * e.interval)
	d := next.Sub(t.clock.Now())
	if d < 0 {
		d = 0
	}
	t.schedule(kind, e, d)
	e.fn()
}
