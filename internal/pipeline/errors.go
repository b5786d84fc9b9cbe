package pipeline

import "errors"

var (
	// ErrHostNotAllowed means the source URL points at a host outside the
	// trusted allow-list. Never retried.
	ErrHostNotAllowed = errors.New("host not in allow-list")

	// ErrDimensionMismatch means the inference service returned a vector of
	// the wrong length. Treated as retryable like any transient failure.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
