package model

import "fmt"

// Status is the match phase shown on the display.
type Status string

// Match phases in their only legal order.
const (
	StatusWaiting         Status = "waiting"
	StatusRound1Intro     Status = "round1_intro"
	StatusRound1Countdown Status = "round1_countdown"
	StatusRound1Active    Status = "round1_active"
	StatusRound2Intro     Status = "round2_intro"
	StatusRound2Countdown Status = "round2_countdown"
	StatusRound2Active    Status = "round2_active"
	StatusFinished        Status = "finished"
)

var statusOrder = []Status{
	StatusWaiting,
	StatusRound1Intro,
	StatusRound1Countdown,
	StatusRound1Active,
	StatusRound2Intro,
	StatusRound2Countdown,
	StatusRound2Active,
	StatusFinished,
}

// Statuses returns the phases in order.
func Statuses() []Status {
	out := make([]Status, len(statusOrder))
	copy(out, statusOrder)
	return out
}

// ParseStatus validates s as a known phase.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if st.Ordinal() < 0 {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return st, nil
}

// Ordinal is the position of s in the phase sequence, or -1 when unknown.
func (s Status) Ordinal() int {
	for i, st := range statusOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known phase.
func (s Status) Valid() bool { return s.Ordinal() >= 0 }

// Next returns the following phase. Finished and unknown phases return themselves and false.
func (s Status) Next() (Status, bool) {
	i := s.Ordinal()
	if i < 0 || i == len(statusOrder)-1 {
		return s, false
	}
	return statusOrder[i+1], true
}

// Before reports whether s comes strictly earlier than other.
func (s Status) Before(other Status) bool {
	a, b := s.Ordinal(), other.Ordinal()
	return a >= 0 && b >= 0 && a < b
}

func (s Status) IsIntro() bool {
	return s == StatusRound1Intro || s == StatusRound2Intro
}

func (s Status) IsCountdown() bool {
	return s == StatusRound1Countdown || s == StatusRound2Countdown
}

func (s Status) IsActive() bool {
	return s == StatusRound1Active || s == StatusRound2Active
}

// RoundIndex is 0 for round 1 phases, 1 for round 2 phases and -1 otherwise.
func (s Status) RoundIndex() int {
	switch s {
	case StatusRound1Intro, StatusRound1Countdown, StatusRound1Active:
		return 0
	case StatusRound2Intro, StatusRound2Countdown, StatusRound2Active:
		return 1
	default:
		return -1
	}
}

func (s Status) String() string { return string(s) }
