// Package eventstore holds the live match record and pushes every change to
// its subscribers.
package eventstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/duel/internal/domain/model"
	"github.com/okian/duel/pkg/logger"
)

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(s *MemoryStore) {
		if l != nil {
			s.log = l
		}
	}
}

// WithNow overrides the creation timestamp source.
func WithNow(now func() time.Time) Option {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// MemoryStore keeps a single GameEvent in memory. Every write, including
// Clear, is delivered to every subscriber as a copy, in write order.
// Subscribers must not write back to the store from the callback.
type MemoryStore struct {
	mu      sync.Mutex
	current *model.GameEvent
	subs    map[uint64]func(*model.GameEvent)
	nextSub uint64

	// notifyMu keeps deliveries in write order.
	notifyMu sync.Mutex

	now func() time.Time
	log logger.Logger
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		subs: make(map[uint64]func(*model.GameEvent)),
		now:  time.Now,
		log:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers fn for every change. A nil event means the match was cleared.
func (s *MemoryStore) Subscribe(fn func(*model.GameEvent)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSub++
	id := s.nextSub
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Current returns a copy of the live match.
func (s *MemoryStore) Current() (*model.GameEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, false
	}
	return s.current.Clone(), true
}

// Create replaces the live match with a new one in waiting.
func (s *MemoryStore) Create(ctx context.Context, in model.NewMatch) (*model.GameEvent, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	ev := &model.GameEvent{
		ID:        uuid.NewString(),
		Status:    model.StatusWaiting,
		Rounds:    in.Rounds,
		Bands:     make(map[model.BandID]model.BandAssignment, len(in.Bands)),
		CreatedAt: s.now(),
	}
	for i := range ev.Rounds {
		ev.Rounds[i].Winner = model.WinnerNone
		// Validate accepted the axis, so it parses.
		ev.Rounds[i].Axis, _ = model.ParseAxis(string(ev.Rounds[i].Axis))
	}
	for b, a := range in.Bands {
		ev.Bands[b] = a
	}

	err := s.write(func() (*model.GameEvent, error) {
		if s.current != nil {
			s.log.Info(ctx, "replacing match", logger.String("previous", s.current.ID), logger.String("status", s.current.Status.String()))
		}
		s.current = ev
		return ev.Clone(), nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "match created", logger.String("match_id", ev.ID))
	return ev.Clone(), nil
}

// Clear removes the live match.
func (s *MemoryStore) Clear(ctx context.Context) error {
	return s.write(func() (*model.GameEvent, error) {
		if s.current == nil {
			return nil, ErrNoMatch
		}
		s.log.Info(ctx, "match cleared", logger.String("match_id", s.current.ID))
		s.current = nil
		return nil, nil
	})
}

// Redeliver pushes the current state to every subscriber again.
func (s *MemoryStore) Redeliver(_ context.Context) error {
	return s.write(func() (*model.GameEvent, error) {
		if s.current == nil {
			return nil, ErrNoMatch
		}
		return s.current.Clone(), nil
	})
}

// UpdateStatus moves the match forward. Writing the current status again is
// allowed and redelivered; moving backwards or entering an active phase
// without its countdown is rejected.
func (s *MemoryStore) UpdateStatus(_ context.Context, status model.Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", model.ErrUnknownStatus, status)
	}
	return s.mutate(func(ev *model.GameEvent) error {
		from := ev.Status
		if status.Before(from) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, status)
		}
		if status.IsActive() && from != status {
			if prev := statusBefore(status); from != prev {
				return fmt.Errorf("%w: %s -> %s skips %s", ErrInvalidTransition, from, status, prev)
			}
		}
		ev.Status = status
		return nil
	})
}

// UpdateCurrentRound selects the active round.
func (s *MemoryStore) UpdateCurrentRound(_ context.Context, index int) error {
	if index < 0 || index >= model.RoundCount {
		return fmt.Errorf("%w: %d", ErrInvalidRound, index)
	}
	return s.mutate(func(ev *model.GameEvent) error {
		ev.CurrentRound = index
		return nil
	})
}

// SetRoundWinner records the winner of round index.
func (s *MemoryStore) SetRoundWinner(_ context.Context, index int, winner model.Winner) error {
	if index < 0 || index >= model.RoundCount {
		return fmt.Errorf("%w: %d", ErrInvalidRound, index)
	}
	if !validWinner(winner) {
		return fmt.Errorf("%w: %q", ErrInvalidWinner, winner)
	}
	return s.mutate(func(ev *model.GameEvent) error {
		ev.Rounds[index].Winner = winner
		return nil
	})
}

// SetGameWinner records the match winner.
func (s *MemoryStore) SetGameWinner(_ context.Context, winner model.Winner) error {
	if !validWinner(winner) {
		return fmt.Errorf("%w: %q", ErrInvalidWinner, winner)
	}
	return s.mutate(func(ev *model.GameEvent) error {
		ev.Winner = winner
		return nil
	})
}

func (s *MemoryStore) mutate(fn func(*model.GameEvent) error) error {
	return s.write(func() (*model.GameEvent, error) {
		if s.current == nil {
			return nil, ErrNoMatch
		}
		if err := fn(s.current); err != nil {
			return nil, err
		}
		return s.current.Clone(), nil
	})
}

// write applies fn under the lock and delivers its result to subscribers.
func (s *MemoryStore) write(fn func() (*model.GameEvent, error)) error {
	s.mu.Lock()
	snapshot, err := fn()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	subs := make([]func(*model.GameEvent), 0, len(s.subs))
	for id := uint64(1); id <= s.nextSub; id++ {
		if fn, ok := s.subs[id]; ok {
			subs = append(subs, fn)
		}
	}
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	for _, sub := range subs {
		sub(snapshot.Clone())
	}
	return nil
}

func statusBefore(st model.Status) model.Status {
	statuses := model.Statuses()
	if i := st.Ordinal(); i > 0 {
		return statuses[i-1]
	}
	return st
}

func validWinner(w model.Winner) bool {
	_, band := w.Band()
	return band || w == model.WinnerTie
}
