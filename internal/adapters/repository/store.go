// Package repository persists the points and victories ledger.
package repository

import (
	"context"

	"github.com/okian/duel/internal/domain/model"
)

// Ledger accumulates points and victories per user and ranks them.
type Ledger interface {
	// AddPoints credits points to the user bound to band.
	AddPoints(ctx context.Context, band model.BandID, user model.BandAssignment, points int, reason string) error

	// AddVictory credits one victory to the user bound to band.
	AddVictory(ctx context.Context, band model.BandID, user model.BandAssignment, reason string) error

	// TopByPoints returns the top-n users ordered by points desc, ties in first-credit order.
	TopByPoints(ctx context.Context, n int) ([]model.LeaderboardEntry, error)

	// TopByVictories returns the top-n users ordered by victories desc, ties in first-credit order.
	TopByVictories(ctx context.Context, n int) ([]model.LeaderboardEntry, error)

	// Count returns the number of users in the ledger.
	Count(ctx context.Context) (int, error)

	Close() error
}

func validateCredit(user model.BandAssignment, n int) error {
	if !user.Bound() {
		return ErrMissingUser
	}
	if n < 0 {
		return ErrNegativeCredit
	}
	return nil
}

func validateLimit(n int) error {
	if n <= 0 {
		return ErrInvalidLimit
	}
	return nil
}
