package scoring

import "errors"

var (
	// ErrNoEmbedding is returned when the query or fragment has no usable vector.
	ErrNoEmbedding = errors.New("embedding unavailable")

	// ErrDimensionMismatch is returned when query and fragment vectors differ in length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrStrategyPanic wraps a recovered panic from a strategy.
	ErrStrategyPanic = errors.New("scoring strategy panicked")
)
