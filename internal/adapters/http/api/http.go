// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/duel/internal/domain/rotation"
)

// Dependencies bundles what the handlers read and write.
type Dependencies struct {
	Store       MatchStore
	Display     DisplaySource
	Leaderboard rotation.Source
	Stats       StatsProvider

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int
}

// Server wires HTTP routes for the display API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	gameHandler        *GameHandler
	leaderboardHandler *LeaderboardHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(deps.Stats),
		gameHandler:        NewGameHandler(deps.Store, deps.Display),
		leaderboardHandler: NewLeaderboardHandler(deps.Leaderboard, deps.MaxLeaderboardLimit),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", MetricsMiddleware(s.healthHandler.HandleHealth, "metrics"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/game", MetricsMiddleware(s.gameHandler.HandleGame, "game"))
	mux.HandleFunc("/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
