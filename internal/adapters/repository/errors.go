package repository

import "errors"

// Sentinel kinds for ledger errors.
var (
	ErrMissingUser    = errors.New("band has no bound user")
	ErrNegativeCredit = errors.New("negative credit")
	ErrInvalidLimit   = errors.New("invalid leaderboard limit")
	ErrClosed         = errors.New("ledger closed")
)
