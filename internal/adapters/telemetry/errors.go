package telemetry

import "errors"

var (
	ErrNoReading    = errors.New("no reading for band")
	ErrNotConnected = errors.New("telemetry not connected")
	ErrBadPayload   = errors.New("malformed telemetry payload")
)
