package storage

import (
	"context"
	"time"

	"github.com/poiesic/marginalia/core"
)

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// WithTransaction executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Close closes the repository and releases resources.
	Close() error
}

// LibraryReader is read-only access to a user's library. The query engine
// only ever reads; writes belong to the surrounding application.
type LibraryReader interface {
	// GetDocument retrieves a single document by ID.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id core.ID) (*core.Document, error)

	// GetDocuments retrieves multiple documents by their IDs.
	// Returns only the documents that exist (no error for missing documents).
	GetDocuments(ctx context.Context, ids ...core.ID) ([]*core.Document, error)

	// ListDocuments returns every document owned by userID, ordered by ID.
	ListDocuments(ctx context.Context, userID string) ([]*core.Document, error)

	// ListAllDocuments returns every document in the store, ordered by ID.
	ListAllDocuments(ctx context.Context) ([]*core.Document, error)

	// ListAnnotations returns a user's annotations. A zero documentID
	// returns annotations across all documents.
	ListAnnotations(ctx context.Context, userID string, documentID core.ID) ([]*core.Annotation, error)

	// ListMemories returns a user's memory records.
	ListMemories(ctx context.Context, userID string) ([]*core.Memory, error)
}

// LibraryRepository adds write access to LibraryReader.
type LibraryRepository interface {
	Repository
	LibraryReader

	// PutDocuments inserts or replaces documents.
	// Documents with ID=0 get an ID derived from user, title, and author.
	// Sets UpdatedAt to now.
	PutDocuments(ctx context.Context, docs ...*core.Document) ([]*core.Document, error)

	// DeleteDocuments removes documents and their annotations.
	// Returns ErrNotFound if any document doesn't exist.
	DeleteDocuments(ctx context.Context, ids ...core.ID) error

	// PutAnnotations inserts or replaces annotations.
	// Annotations with ID=0 get a content-derived ID.
	PutAnnotations(ctx context.Context, annotations ...*core.Annotation) ([]*core.Annotation, error)

	// PutMemories inserts or replaces memory records.
	// Memories with ID=0 get a content-derived ID.
	PutMemories(ctx context.Context, memories ...*core.Memory) ([]*core.Memory, error)
}

// FragmentRepository stores precomputed, embedded fragments per document.
type FragmentRepository interface {
	Repository

	// PutFragments replaces the fragments stored for documentID.
	// version is the document's UpdatedAt at the time the fragments were built.
	PutFragments(ctx context.Context, documentID core.ID, version time.Time, fragments []core.ContentFragment) error

	// GetFragments returns the stored fragments and their version.
	// Returns ErrNotFound if none are stored.
	GetFragments(ctx context.Context, documentID core.ID) ([]core.ContentFragment, time.Time, error)

	// DeleteFragments removes the fragments for documentID. Missing entries are not an error.
	DeleteFragments(ctx context.Context, documentID core.ID) error
}

// CacheRepository persists query cache entries keyed by query hash.
// Implementations must be thread-safe. Access bookkeeping (TouchEntry)
// must not lose increments under light concurrency.
type CacheRepository interface {
	// GetEntry retrieves an entry with its results.
	// Returns ErrNotFound if no entry has that hash.
	GetEntry(ctx context.Context, queryHash string) (*core.CacheEntry, error)

	// PutEntry inserts an entry, replacing any entry with the same hash.
	PutEntry(ctx context.Context, entry *core.CacheEntry) error

	// TouchEntry increments the access count and sets the last-accessed time.
	// Returns ErrNotFound if no entry has that hash.
	TouchEntry(ctx context.Context, queryHash string, at time.Time) error

	// RecentEntries returns up to limit entries for userID, most recently
	// accessed first.
	RecentEntries(ctx context.Context, userID string, limit int) ([]core.CacheEntryInfo, error)

	// ListEntryInfo returns every entry without results.
	ListEntryInfo(ctx context.Context) ([]core.CacheEntryInfo, error)

	// DeleteEntries removes entries by hash and returns how many existed.
	DeleteEntries(ctx context.Context, queryHashes ...string) (int, error)

	// CountEntries returns the number of stored entries.
	CountEntries(ctx context.Context) (int, error)

	// Close releases resources.
	Close() error
}

// CheckpointRepository provides operations for processor checkpoints.
type CheckpointRepository interface {
	// SaveCheckpoint persists a checkpoint for a processor type.
	SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error

	// LoadCheckpoint retrieves the checkpoint for a processor type.
	// Returns nil, nil if no checkpoint exists.
	LoadCheckpoint(ctx context.Context, processorType string) (*core.Checkpoint, error)

	// DeleteCheckpoint removes the checkpoint for a processor type.
	DeleteCheckpoint(ctx context.Context, processorType string) error
}
