package model

import "errors"

var (
	ErrUnknownStatus = errors.New("unknown status")
	ErrUnknownAxis   = errors.New("unknown axis")
	ErrUnknownBand   = errors.New("unknown band")
	ErrUnknownMetric = errors.New("unknown metric")
	ErrInvalidMatch  = errors.New("invalid match")
)

// FieldError ties a validation failure to the offending field.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string { return e.Field + ": " + e.Err.Error() }

func (e *FieldError) Unwrap() error { return e.Err }
