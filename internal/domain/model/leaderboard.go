package model

import (
	"fmt"
	"strings"
)

// Metric selects the leaderboard ranking.
type Metric string

const (
	MetricPoints    Metric = "points"
	MetricVictories Metric = "victories"
)

// ParseMetric accepts points or victories; empty defaults to points.
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return MetricPoints, nil
	case MetricPoints, MetricVictories:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMetric, s)
	}
}

// Other returns the metric the rotation switches to.
func (m Metric) Other() Metric {
	if m == MetricPoints {
		return MetricVictories
	}
	return MetricPoints
}

// LeaderboardEntry is one ranked ledger row.
type LeaderboardEntry struct {
	Rank      int    `json:"rank"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name,omitempty"`
	Points    int    `json:"points"`
	Victories int    `json:"victories"`
}
