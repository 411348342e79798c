package bandsim

import "errors"

var (
	ErrUnhealthy    = errors.New("display service is not healthy")
	ErrReplaced     = errors.New("match was replaced or cleared")
	ErrDeadline     = errors.New("match did not finish in time")
	ErrVerification = errors.New("result verification failed")
)
