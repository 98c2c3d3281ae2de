package concept

import "errors"

var (
	// ErrLibraryRequired is returned when a library reader is not provided.
	ErrLibraryRequired = errors.New("library reader required")

	// ErrNoConcepts is returned when model output contains no usable concepts.
	ErrNoConcepts = errors.New("no concepts in response")
)
