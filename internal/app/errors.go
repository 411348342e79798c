package service

import "errors"

var (
	ErrAlreadyRunning = errors.New("machine already running")
	ErrMissingStore   = errors.New("event store is required")
	ErrInboxClosed    = errors.New("machine inbox closed")
)
