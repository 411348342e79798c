package eventstore

import "errors"

var (
	ErrNoMatch           = errors.New("no match")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidRound      = errors.New("invalid round index")
	ErrInvalidWinner     = errors.New("invalid winner")
)
