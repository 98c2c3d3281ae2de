package cache

import "errors"

var (
	// ErrRepositoryRequired is returned when a cache repository is not provided.
	ErrRepositoryRequired = errors.New("cache repository required")

	// ErrClosed is returned by operations on a closed cache.
	ErrClosed = errors.New("cache closed")
)
