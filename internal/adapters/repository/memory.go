package repository

import (
	"context"
	"sync"
	"time"

	"github.com/okian/duel/internal/domain/model"
	"github.com/okian/duel/pkg/logger"
	"github.com/okian/duel/pkg/metrics"
)

type account struct {
	seq       uint64
	userID    string
	userName  string
	points    int
	victories int
}

// MemoryLedger keeps the ledger in process memory.
type MemoryLedger struct {
	mu        sync.RWMutex
	bySeq     map[uint64]*account
	byUser    map[string]*account
	nextSeq   uint64
	points    rankIndex
	victories rankIndex
	closed    bool
	log       logger.Logger
}

// MemoryOption configures a MemoryLedger.
type MemoryOption func(*MemoryLedger)

// WithMemoryLogger sets the ledger logger.
func WithMemoryLogger(l logger.Logger) MemoryOption {
	return func(m *MemoryLedger) {
		if l != nil {
			m.log = l
		}
	}
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger(opts ...MemoryOption) *MemoryLedger {
	m := &MemoryLedger{
		bySeq:  make(map[uint64]*account),
		byUser: make(map[string]*account),
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryLedger) AddPoints(ctx context.Context, band model.BandID, user model.BandAssignment, points int, reason string) error {
	if err := validateCredit(user, points); err != nil {
		return err
	}
	return m.credit(ctx, band, user, reason, points, 0)
}

func (m *MemoryLedger) AddVictory(ctx context.Context, band model.BandID, user model.BandAssignment, reason string) error {
	if err := validateCredit(user, 1); err != nil {
		return err
	}
	return m.credit(ctx, band, user, reason, 0, 1)
}

func (m *MemoryLedger) credit(ctx context.Context, band model.BandID, user model.BandAssignment, reason string, points, victories int) error {
	start := time.Now()
	defer func() {
		metrics.RecordLedgerLatency(float64(time.Since(start).Milliseconds()))
	}()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	acc, existed := m.byUser[user.UserID]
	if !existed {
		m.nextSeq++
		acc = &account{seq: m.nextSeq, userID: user.UserID}
		m.byUser[user.UserID] = acc
		m.bySeq[acc.seq] = acc
	}
	if user.UserName != "" {
		acc.userName = user.UserName
	}

	if points != 0 || !existed {
		m.points.update(acc.seq, acc.points, acc.points+points, existed)
		acc.points += points
	}
	if victories != 0 || !existed {
		m.victories.update(acc.seq, acc.victories, acc.victories+victories, existed)
		acc.victories += victories
	}

	m.log.Debug(ctx, "ledger credited",
		logger.String("band", string(band)),
		logger.String("user_id", user.UserID),
		logger.Int("points", points),
		logger.Int("victories", victories),
		logger.String("reason", reason),
	)
	return nil
}

func (m *MemoryLedger) TopByPoints(_ context.Context, n int) ([]model.LeaderboardEntry, error) {
	return m.top(&m.points, n)
}

func (m *MemoryLedger) TopByVictories(_ context.Context, n int) ([]model.LeaderboardEntry, error) {
	return m.top(&m.victories, n)
}

func (m *MemoryLedger) top(idx *rankIndex, n int) ([]model.LeaderboardEntry, error) {
	if err := validateLimit(n); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	seqs := idx.top(n)
	out := make([]model.LeaderboardEntry, 0, len(seqs))
	for i, seq := range seqs {
		acc := m.bySeq[seq]
		out = append(out, model.LeaderboardEntry{
			Rank:      i + 1,
			UserID:    acc.userID,
			UserName:  acc.userName,
			Points:    acc.points,
			Victories: acc.victories,
		})
	}
	return out, nil
}

func (m *MemoryLedger) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byUser), nil
}

func (m *MemoryLedger) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
