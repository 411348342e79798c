// Package result resolves round and match winners and credits the ledger.
package result

import (
	"context"
	"errors"
	"time"

	"github.com/okian/duel/internal/domain/model"
	"github.com/okian/duel/pkg/metrics"
)

// Scores holds one integer magnitude per band.
type Scores struct {
	Band010 int `json:"band010"`
	Band020 int `json:"band020"`
}

// Of returns the score of band.
func (s Scores) Of(band model.BandID) int {
	if band == model.Band020 {
		return s.Band020
	}
	return s.Band010
}

// Plus sums two score pairs per band.
func (s Scores) Plus(o Scores) Scores {
	return Scores{Band010: s.Band010 + o.Band010, Band020: s.Band020 + o.Band020}
}

// RoundResult is the frozen outcome of one round.
type RoundResult struct {
	Index  int          `json:"index"`
	Scores Scores       `json:"scores"`
	Winner model.Winner `json:"winner"`
}

// MatchResult is the outcome of both rounds.
type MatchResult struct {
	Rounds [model.RoundCount]RoundResult `json:"rounds"`
	Totals Scores                        `json:"totals"`
	Winner model.Winner                  `json:"winner"`
}

// ResolveWinner returns the band with the strictly greater score, or tie.
func ResolveWinner(s010, s020 int) model.Winner {
	switch {
	case s010 > s020:
		return model.WinnerBand010
	case s020 > s010:
		return model.WinnerBand020
	default:
		return model.WinnerTie
	}
}

// FinalizeRound freezes the scores of a round and resolves its winner.
func FinalizeRound(index, s010, s020 int) RoundResult {
	return RoundResult{
		Index:  index,
		Scores: Scores{Band010: s010, Band020: s020},
		Winner: ResolveWinner(s010, s020),
	}
}

// FinalizeMatch sums both rounds per band and resolves the match winner on the totals.
func FinalizeMatch(round1, round2 RoundResult) MatchResult {
	totals := round1.Scores.Plus(round2.Scores)
	return MatchResult{
		Rounds: [model.RoundCount]RoundResult{round1, round2},
		Totals: totals,
		Winner: ResolveWinner(totals.Band010, totals.Band020),
	}
}

// PointsLedger accepts point credits.
type PointsLedger interface {
	AddPoints(ctx context.Context, band model.BandID, user model.BandAssignment, points int, reason string) error
}

// VictoryLedger accepts victory credits.
type VictoryLedger interface {
	AddVictory(ctx context.Context, band model.BandID, user model.BandAssignment, reason string) error
}

// CommitReport lists what happened to each band during a ledger commit.
type CommitReport struct {
	Credited []model.BandID
	Skipped  []model.BandID
	Failed   map[model.BandID]error
}

// Err joins every failure, nil when all bound bands were credited.
func (r CommitReport) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for _, b := range model.Bands {
		if err, ok := r.Failed[b]; ok {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CommitPoints credits totals to every band with a bound user.
// Calling it twice credits twice.
func CommitPoints(ctx context.Context, ledger PointsLedger, bands map[model.BandID]model.BandAssignment, totals Scores, reason string) CommitReport {
	return commit(ctx, "points", bands, model.Bands, func(ctx context.Context, b model.BandID, u model.BandAssignment) error {
		return ledger.AddPoints(ctx, b, u, totals.Of(b), reason)
	})
}

// CommitVictory credits one victory to the winning band's user. A tie credits nobody.
func CommitVictory(ctx context.Context, ledger VictoryLedger, bands map[model.BandID]model.BandAssignment, winner model.Winner, reason string) CommitReport {
	band, ok := winner.Band()
	if !ok {
		return CommitReport{}
	}
	return commit(ctx, "victory", bands, []model.BandID{band}, func(ctx context.Context, b model.BandID, u model.BandAssignment) error {
		return ledger.AddVictory(ctx, b, u, reason)
	})
}

func commit(ctx context.Context, kind string, bands map[model.BandID]model.BandAssignment, order []model.BandID,
	credit func(context.Context, model.BandID, model.BandAssignment) error,
) CommitReport {
	var rep CommitReport
	for _, b := range order {
		user, ok := bands[b]
		if !ok || !user.Bound() {
			rep.Skipped = append(rep.Skipped, b)
			metrics.RecordLedgerCommit(kind, "skipped")
			continue
		}

		start := time.Now()
		err := credit(ctx, b, user)
		metrics.RecordLedgerLatency(float64(time.Since(start).Milliseconds()))
		if err != nil {
			if rep.Failed == nil {
				rep.Failed = make(map[model.BandID]error)
			}
			rep.Failed[b] = err
			metrics.RecordLedgerCommit(kind, "failed")
			continue
		}
		rep.Credited = append(rep.Credited, b)
		metrics.RecordLedgerCommit(kind, "credited")
	}
	return rep
}
