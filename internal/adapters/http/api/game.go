package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/okian/duel/internal/adapters/eventstore"
	service "github.com/okian/duel/internal/app"
	"github.com/okian/duel/internal/domain/model"
)

// MatchStore creates and clears the live match.
type MatchStore interface {
	Create(ctx context.Context, in model.NewMatch) (*model.GameEvent, error)
	Clear(ctx context.Context) error
}

// DisplaySource exposes the latest screen projection.
type DisplaySource interface {
	Display() service.Display
}

// GameHandler serves /game.
type GameHandler struct {
	store   MatchStore
	display DisplaySource
}

// NewGameHandler creates a new game handler.
func NewGameHandler(store MatchStore, display DisplaySource) *GameHandler {
	return &GameHandler{store: store, display: display}
}

// HandleGame dispatches GET, POST and DELETE /game.
func (h *GameHandler) HandleGame(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.display.Display())
	case http.MethodPost:
		h.create(w, r)
	case http.MethodDelete:
		h.clear(w, r)
	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
	}
}

func (h *GameHandler) create(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_game"
	var req createGameRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	in, err := req.toMatch()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_match", WrapKind(op, ErrBadRequest, err))
		return
	}

	ev, err := h.store.Create(r.Context(), in)
	if err != nil {
		var fe *model.FieldError
		if errors.As(err, &fe) {
			writeError(w, http.StatusBadRequest, "invalid_match", WrapKind(op, ErrBadRequest, err))
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (h *GameHandler) clear(w http.ResponseWriter, r *http.Request) {
	const op = "api.clear_game"
	if err := h.store.Clear(r.Context()); err != nil {
		if errors.Is(err, eventstore.ErrNoMatch) {
			writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type roundRequest struct {
	Movement string `json:"movement"`
	Axis     string `json:"axis"`
	Duration int    `json:"duration"`
}

type bandRequest struct {
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	UserEmail string `json:"user_email"`
}

// createGameRequest mirrors the OpenAPI schema for POST /game. Band keys
// may be slot names ("band010") or telemetry ids ("010").
type createGameRequest struct {
	Rounds []roundRequest          `json:"rounds"`
	Bands  map[string]bandRequest `json:"bands"`
}

func (req createGameRequest) toMatch() (model.NewMatch, error) {
	var in model.NewMatch
	if len(req.Rounds) != model.RoundCount {
		return in, &model.FieldError{
			Field: "rounds",
			Err:   fmt.Errorf("%w: want %d rounds, got %d", model.ErrInvalidMatch, model.RoundCount, len(req.Rounds)),
		}
	}
	for i, rr := range req.Rounds {
		axis, err := model.ParseAxis(rr.Axis)
		if err != nil {
			return in, &model.FieldError{Field: fmt.Sprintf("rounds[%d].axis", i), Err: err}
		}
		in.Rounds[i] = model.Round{Movement: strings.TrimSpace(rr.Movement), Axis: axis, Duration: rr.Duration}
	}

	in.Bands = make(map[model.BandID]model.BandAssignment, len(req.Bands))
	for key, b := range req.Bands {
		band := model.BandID(strings.ToLower(strings.TrimSpace(key)))
		if !band.Valid() {
			var ok bool
			if band, ok = model.BandFromTelemetryID(key); !ok {
				return in, &model.FieldError{Field: "bands." + key, Err: model.ErrUnknownBand}
			}
		}
		in.Bands[band] = model.BandAssignment{
			UserID:    strings.TrimSpace(b.UserID),
			UserName:  b.UserName,
			UserEmail: b.UserEmail,
		}
	}
	return in, in.Validate()
}
