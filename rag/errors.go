package rag

import "errors"

var (
	// ErrSearcherRequired is returned when no searcher is provided.
	ErrSearcherRequired = errors.New("searcher required")

	// ErrEmptyAnswer is returned when the model produced no usable text.
	ErrEmptyAnswer = errors.New("empty answer")
)
