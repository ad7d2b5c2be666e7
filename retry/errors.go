package retry

import "errors"

var (
	// ErrInvalidMaxAttempts is returned when MaxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrInvalidPolicy is returned for negative delays, a multiplier below 1 or jitter outside [0, 1].
	ErrInvalidPolicy = errors.New("invalid retry policy")
)
