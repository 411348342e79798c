// Package dedupe guards one-shot match effects against redelivered notifications.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"

	"github.com/okian/duel/pkg/metrics"
)

// Effect names a side effect that must run at most once per match.
type Effect string

// One-shot effects of a match.
const (
	EffectAutostart     Effect = "autostart"
	EffectCaptureStart1 Effect = "capture_start_1"
	EffectCaptureStart2 Effect = "capture_start_2"
	EffectRound1Result  Effect = "round1_result"
	EffectMatchResult   Effect = "match_result"
	EffectLedgerCommit  Effect = "ledger_commit"
)

// Key builds the guard key of effect for a match.
func Key(matchID string, effect Effect) string {
	return matchID + ":" + string(effect)
}

// Deduper records seen keys to ensure at-most-once execution.
type Deduper interface {
	// SeenAndRecord reports whether key was already recorded and records it if not.
	SeenAndRecord(ctx context.Context, key string) bool

	Size() int64
}

// inMemoryDeduper keeps keys in insertion order and evicts the oldest once
// maxSize is reached. maxSize <= 0 disables eviction.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List
	maxSize int
	size    atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: 1024,
		seen:    make(map[string]*list.Element),
		order:   list.New(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[key]; ok {
		return true
	}
	if d.maxSize > 0 && d.order.Len() >= d.maxSize {
		d.evictOldest()
	}
	d.seen[key] = d.order.PushBack(key)
	d.size.Store(int64(d.order.Len()))
	metrics.UpdateGuardEntries(d.size.Load())
	return false
}

// evictOldest must be called with d.mu held.
func (d *inMemoryDeduper) evictOldest() {
	front := d.order.Front()
	if front == nil {
		return
	}
	d.order.Remove(front)
	delete(d.seen, front.Value.(string))
}

func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
