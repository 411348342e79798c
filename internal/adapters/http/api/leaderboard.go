package api

import (
	"net/http"
	"strconv"

	"github.com/okian/duel/internal/domain/model"
	"github.com/okian/duel/internal/domain/rotation"
)

const defaultLeaderboardLimit = 10

// LeaderboardHandler handles leaderboard requests
type LeaderboardHandler struct {
	source   rotation.Source
	maxLimit int
}

// NewLeaderboardHandler creates a new leaderboard handler
func NewLeaderboardHandler(source rotation.Source, maxLimit int) *LeaderboardHandler {
	return &LeaderboardHandler{
		source:   source,
		maxLimit: maxLimit,
	}
}

// HandleGetLeaderboard handles GET /leaderboard?metric=points|victories&limit=N requests
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	q := r.URL.Query()
	metric, err := model.ParseMetric(q.Get("metric"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	n := defaultLeaderboardLimit
	if raw := q.Get("limit"); raw != "" {
		n, err = strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
	}
	if n > h.maxLimit {
		writeError(w, http.StatusBadRequest, "limit_exceeded", NewKind(op, ErrBadRequest))
		return
	}

	entries, err := rotation.Load(r.Context(), h.source, metric, n)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, rotation.View{Metric: metric, Entries: entries})
}
