package repository

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/glebarez/go-sqlite" // registers the "sqlite" driver
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/okian/duel/internal/domain/model"
	"github.com/okian/duel/pkg/logger"
	"github.com/okian/duel/pkg/metrics"
)

// LedgerUser is a user's running totals.
type LedgerUser struct {
	bun.BaseModel `bun:"table:ledger_users,alias:lu"`

	ID        int64     `bun:"id,pk,autoincrement"`
	UserID    string    `bun:"user_id,notnull,unique"`
	UserName  string    `bun:"user_name"`
	Points    int       `bun:"points,notnull,default:0"`
	Victories int       `bun:"victories,notnull,default:0"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// LedgerCredit is one audit row per credit.
type LedgerCredit struct {
	bun.BaseModel `bun:"table:ledger_credits,alias:lc"`

	ID        string    `bun:"id,pk"`
	UserID    string    `bun:"user_id,notnull"`
	Band      string    `bun:"band,notnull"`
	Kind      string    `bun:"kind,notnull"`
	Amount    int       `bun:"amount,notnull"`
	Reason    string    `bun:"reason"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

// SQLLedger stores the ledger in SQLite through bun.
type SQLLedger struct {
	db  *bun.DB
	log logger.Logger
	now func() time.Time
}

// SQLOption configures an SQLLedger.
type SQLOption func(*SQLLedger)

// WithSQLLogger sets the ledger logger.
func WithSQLLogger(l logger.Logger) SQLOption {
	return func(s *SQLLedger) {
		if l != nil {
			s.log = l
		}
	}
}

// OpenSQLLedger opens dsn with the sqlite driver and creates the tables.
func OpenSQLLedger(ctx context.Context, dsn string, opts ...SQLOption) (*SQLLedger, error) {
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open ledger database")
	}
	// SQLite serializes writers; one connection keeps in-memory DSNs on a single database.
	sqldb.SetMaxOpenConns(1)

	s := &SQLLedger{
		db:  bun.NewDB(sqldb, sqlitedialect.New()),
		log: logger.Nop(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(ctx); err != nil {
		_ = s.db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLLedger) migrate(ctx context.Context) error {
	for _, m := range []interface{}{(*LedgerUser)(nil), (*LedgerCredit)(nil)} {
		if _, err := s.db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return errors.Wrap(err, "create ledger table")
		}
	}
	return nil
}

func (s *SQLLedger) AddPoints(ctx context.Context, band model.BandID, user model.BandAssignment, points int, reason string) error {
	if err := validateCredit(user, points); err != nil {
		return err
	}
	return s.credit(ctx, band, user, "points", points, reason)
}

func (s *SQLLedger) AddVictory(ctx context.Context, band model.BandID, user model.BandAssignment, reason string) error {
	if err := validateCredit(user, 1); err != nil {
		return err
	}
	return s.credit(ctx, band, user, "victory", 1, reason)
}

func (s *SQLLedger) credit(ctx context.Context, band model.BandID, user model.BandAssignment, kind string, amount int, reason string) error {
	start := time.Now()
	defer func() {
		metrics.RecordLedgerLatency(float64(time.Since(start).Milliseconds()))
	}()

	now := s.now().UTC()
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		acc := new(LedgerUser)
		err := tx.NewSelect().Model(acc).Where("user_id = ?", user.UserID).Limit(1).Scan(ctx)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			acc = &LedgerUser{UserID: user.UserID, UserName: user.UserName, CreatedAt: now, UpdatedAt: now}
			applyCredit(acc, kind, amount)
			if _, err := tx.NewInsert().Model(acc).Exec(ctx); err != nil {
				return errors.Wrap(err, "insert ledger user")
			}
		case err != nil:
			return errors.Wrap(err, "select ledger user")
		default:
			applyCredit(acc, kind, amount)
			if user.UserName != "" {
				acc.UserName = user.UserName
			}
			acc.UpdatedAt = now
			if _, err := tx.NewUpdate().Model(acc).
				Column("points", "victories", "user_name", "updated_at").
				WherePK().Exec(ctx); err != nil {
				return errors.Wrap(err, "update ledger user")
			}
		}

		row := &LedgerCredit{
			ID:        uuid.NewString(),
			UserID:    user.UserID,
			Band:      string(band),
			Kind:      kind,
			Amount:    amount,
			Reason:    reason,
			CreatedAt: now,
		}
		if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
			return errors.Wrap(err, "insert ledger credit")
		}
		return nil
	})
	if err != nil {
		metrics.RecordErrorByComponent("ledger", "commit_failed")
		return err
	}
	s.log.Debug(ctx, "ledger credited",
		logger.String("band", string(band)),
		logger.String("user_id", user.UserID),
		logger.String("kind", kind),
		logger.Int("amount", amount),
	)
	return nil
}

func applyCredit(acc *LedgerUser, kind string, amount int) {
	if kind == "victory" {
		acc.Victories += amount
		return
	}
	acc.Points += amount
}

func (s *SQLLedger) TopByPoints(ctx context.Context, n int) ([]model.LeaderboardEntry, error) {
	return s.top(ctx, "lu.points DESC", n)
}

func (s *SQLLedger) TopByVictories(ctx context.Context, n int) ([]model.LeaderboardEntry, error) {
	return s.top(ctx, "lu.victories DESC", n)
}

func (s *SQLLedger) top(ctx context.Context, order string, n int) ([]model.LeaderboardEntry, error) {
	if err := validateLimit(n); err != nil {
		return nil, err
	}
	var rows []LedgerUser
	if err := s.db.NewSelect().Model(&rows).
		OrderExpr(order).
		OrderExpr("lu.id ASC").
		Limit(n).
		Scan(ctx); err != nil {
		return nil, errors.Wrap(err, "select leaderboard")
	}

	out := make([]model.LeaderboardEntry, len(rows))
	for i, r := range rows {
		out[i] = model.LeaderboardEntry{
			Rank:      i + 1,
			UserID:    r.UserID,
			UserName:  r.UserName,
			Points:    r.Points,
			Victories: r.Victories,
		}
	}
	return out, nil
}

// Credits returns the audit rows of a user, oldest first.
func (s *SQLLedger) Credits(ctx context.Context, userID string) ([]LedgerCredit, error) {
	var rows []LedgerCredit
	if err := s.db.NewSelect().Model(&rows).
		Where("user_id = ?", userID).
		OrderExpr("lc.created_at ASC").
		Scan(ctx); err != nil {
		return nil, errors.Wrap(err, "select ledger credits")
	}
	return rows, nil
}

func (s *SQLLedger) Count(ctx context.Context) (int, error) {
	n, err := s.db.NewSelect().Model((*LedgerUser)(nil)).Count(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "count ledger users")
	}
	return n, nil
}

func (s *SQLLedger) Close() error {
	return s.db.Close()
}
