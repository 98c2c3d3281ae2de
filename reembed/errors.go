package reembed

import "errors"

var (
	ErrLibraryRequired   = errors.New("library required")
	ErrFragmentsRequired = errors.New("fragment repository required")
	ErrEmbedderRequired  = errors.New("embedder required")

	// ErrInvalidConfig wraps every rejected Config field.
	ErrInvalidConfig = errors.New("invalid reembed config")

	// ErrInvalidMaxAttempts is returned by retry helpers given fewer than one attempt.
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")
)
