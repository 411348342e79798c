// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"time"
)

// RoundCount is the number of rounds in a match.
const RoundCount = 2

// Round is one scripted mini-game.
type Round struct {
	Movement string `json:"movement"`
	Axis     Axis   `json:"axis"`
	Duration int    `json:"duration"` // whole seconds of active play
	Winner   Winner `json:"winner,omitempty"`
}

// GameEvent is the single live match record.
type GameEvent struct {
	ID           string                    `json:"id"`
	Status       Status                    `json:"status"`
	CurrentRound int                       `json:"current_round"`
	Rounds       [RoundCount]Round         `json:"rounds"`
	Bands        map[BandID]BandAssignment `json:"bands"`
	Winner       Winner                    `json:"winner,omitempty"`
	CreatedAt    time.Time                 `json:"created_at"`
}

// Clone returns a deep copy safe to hand to another goroutine.
func (e *GameEvent) Clone() *GameEvent {
	if e == nil {
		return nil
	}
	out := *e
	if e.Bands != nil {
		out.Bands = make(map[BandID]BandAssignment, len(e.Bands))
		for k, v := range e.Bands {
			out.Bands[k] = v
		}
	}
	return &out
}

// Round returns the round at the current index.
func (e *GameEvent) Round() Round {
	if e.CurrentRound < 0 || e.CurrentRound >= RoundCount {
		return Round{}
	}
	return e.Rounds[e.CurrentRound]
}

// Assignment returns the user bound to band, if any.
func (e *GameEvent) Assignment(band BandID) (BandAssignment, bool) {
	a, ok := e.Bands[band]
	return a, ok && a.Bound()
}

// NewMatch is the input for creating a match.
type NewMatch struct {
	Rounds [RoundCount]Round         `json:"rounds"`
	Bands  map[BandID]BandAssignment `json:"bands"`
}

// Validate checks the rounds and band keys of a new match.
func (m NewMatch) Validate() error {
	for i, r := range m.Rounds {
		if r.Duration <= 0 {
			return &FieldError{Field: roundField(i, "duration"), Err: ErrInvalidMatch}
		}
		if _, err := ParseAxis(string(r.Axis)); err != nil {
			return &FieldError{Field: roundField(i, "axis"), Err: err}
		}
	}
	for b := range m.Bands {
		if !b.Valid() {
			return &FieldError{Field: "bands." + string(b), Err: ErrUnknownBand}
		}
	}
	return nil
}

func roundField(i int, name string) string {
	return fmt.Sprintf("rounds[%d].%s", i, name)
}
