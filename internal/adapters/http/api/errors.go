package api

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
	ErrNotFound   = errors.New("not found")
)

// NewKind tags a sentinel kind with the operation that produced it.
func NewKind(op string, kind error) error {
	return errors.Wrap(kind, op)
}

// Wrap tags err with op.
func Wrap(op string, err error) error {
	return errors.Wrap(err, op)
}

// WrapKind tags err with op and a sentinel kind so errors.Is matches both.
func WrapKind(op string, kind, err error) error {
	return errors.Wrap(fmt.Errorf("%w: %w", kind, err), op)
}
