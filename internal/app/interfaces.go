package service

import (
	"context"

	"github.com/okian/duel/internal/domain/model"
)

// EventStore is the authoritative match record. Every write is pushed back
// to every subscriber, the writer included.
type EventStore interface {
	Subscribe(fn func(*model.GameEvent)) (unsubscribe func())
	UpdateStatus(ctx context.Context, status model.Status) error
	UpdateCurrentRound(ctx context.Context, index int) error
	SetRoundWinner(ctx context.Context, index int, winner model.Winner) error
	SetGameWinner(ctx context.Context, winner model.Winner) error
}

// Telemetry controls the bands and reads their scores by telemetry id.
type Telemetry interface {
	StartCapture(ctx context.Context, ids []string) error
	StopCapture(ctx context.Context, ids []string) error
	ReadScores(ctx context.Context, id string) (model.BandScoreSnapshot, error)
}

// Ledger accumulates points and victories across matches.
type Ledger interface {
	AddPoints(ctx context.Context, band model.BandID, user model.BandAssignment, points int, reason string) error
	AddVictory(ctx context.Context, band model.BandID, user model.BandAssignment, reason string) error
	TopByPoints(ctx context.Context, n int) ([]model.LeaderboardEntry, error)
	TopByVictories(ctx context.Context, n int) ([]model.LeaderboardEntry, error)
}
