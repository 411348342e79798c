// Package rotation alternates the post-match leaderboard between metrics.
package rotation

import (
	"context"
	"fmt"
	"sort"

	"github.com/okian/duel/internal/domain/model"
	"github.com/okian/duel/pkg/metrics"
)

// Source reads ranked ledger rows.
type Source interface {
	TopByPoints(ctx context.Context, n int) ([]model.LeaderboardEntry, error)
	TopByVictories(ctx context.Context, n int) ([]model.LeaderboardEntry, error)
}

// View is the leaderboard currently on screen.
type View struct {
	Metric  model.Metric             `json:"metric"`
	Entries []model.LeaderboardEntry `json:"entries"`
}

// Rotator holds the displayed view. It is owned by a single goroutine; the
// caller schedules Start and Rotate.
type Rotator struct {
	source Source
	size   int
	next   model.Metric
	view   *View
}

// New creates a Rotator reading the top size rows from source.
func New(source Source, size int) *Rotator {
	return &Rotator{source: source, size: size, next: model.MetricPoints}
}

// Start shows the points ranking.
func (r *Rotator) Start(ctx context.Context) (View, error) {
	r.next = model.MetricPoints
	return r.Rotate(ctx)
}

// Rotate loads the next metric and flips the one after it. On a read error
// the previous view stays on screen and the cadence continues.
func (r *Rotator) Rotate(ctx context.Context) (View, error) {
	metric := r.next
	r.next = metric.Other()

	entries, err := Load(ctx, r.source, metric, r.size)
	if err != nil {
		if r.view != nil {
			return *r.view, err
		}
		return View{}, err
	}
	metrics.RecordLeaderboardRotation(string(metric))
	r.view = &View{Metric: metric, Entries: entries}
	return *r.view, nil
}

// Stop hides the leaderboard.
func (r *Rotator) Stop() {
	r.view = nil
	r.next = model.MetricPoints
}

// Current returns the view on screen, false when hidden.
func (r *Rotator) Current() (View, bool) {
	if r.view == nil {
		return View{}, false
	}
	return *r.view, true
}

// Load reads the top n rows for metric, sorted descending with ties in
// source order, and ranks them 1..len.
func Load(ctx context.Context, source Source, metric model.Metric, n int) ([]model.LeaderboardEntry, error) {
	var (
		rows []model.LeaderboardEntry
		err  error
	)
	switch metric {
	case model.MetricPoints:
		rows, err = source.TopByPoints(ctx, n)
	case model.MetricVictories:
		rows, err = source.TopByVictories(ctx, n)
	default:
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownMetric, metric)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s leaderboard: %w", metric, err)
	}

	out := make([]model.LeaderboardEntry, len(rows))
	copy(out, rows)
	sort.SliceStable(out, func(i, j int) bool {
		return value(out[i], metric) > value(out[j], metric)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out, nil
}

func value(e model.LeaderboardEntry, metric model.Metric) int {
	if metric == model.MetricVictories {
		return e.Victories
	}
	return e.Points
}
