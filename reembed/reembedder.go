// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package reembed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/marginalia/ai"
	"github.com/poiesic/marginalia/core"
	"github.com/poiesic/marginalia/search"
	"github.com/poiesic/marginalia/storage"
)

// ProcessorType identifies reembedding checkpoints.
const ProcessorType = "fragment-embedding"

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of documents to process in each batch
	BatchSize int

	// EmbeddingBatchSize is the number of fragments per embedding call
	EmbeddingBatchSize int

	// FragmentSize is the target fragment length; it must match the search engine's
	FragmentSize int

	// ReportInterval is how often to report progress (number of documents)
	ReportInterval int

	// MaxRetries is the maximum number of retry attempts for failed operations
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// Force re-embeds documents whose stored fragments are current
	Force bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:          DefaultBatchSize,
		EmbeddingBatchSize: DefaultEmbeddingBatchSize,
		FragmentSize:       search.DefaultFragmentSize,
		ReportInterval:     DefaultBatchSize,
		MaxRetries:         3,
		RetryDelay:         1 * time.Second,
	}
}

// Validate rejects negative sizes and a retry count below one. Zero sizes
// fall back to defaults.
func (c *Config) Validate() error {
	switch {
	case c.BatchSize < 0:
		return fmt.Errorf("%w: batch size %d", ErrInvalidConfig, c.BatchSize)
	case c.EmbeddingBatchSize < 0:
		return fmt.Errorf("%w: embedding batch size %d", ErrInvalidConfig, c.EmbeddingBatchSize)
	case c.FragmentSize < 0:
		return fmt.Errorf("%w: fragment size %d", ErrInvalidConfig, c.FragmentSize)
	case c.ReportInterval < 0:
		return fmt.Errorf("%w: report interval %d", ErrInvalidConfig, c.ReportInterval)
	case c.MaxRetries < 1:
		return fmt.Errorf("%w: max retries %d", ErrInvalidConfig, c.MaxRetries)
	case c.RetryDelay < 0:
		return fmt.Errorf("%w: retry delay %s", ErrInvalidConfig, c.RetryDelay)
	}
	return nil
}

// Stats summarizes a run.
type Stats struct {
	Documents int
	Skipped   int
	Fragments int
	Resumed   bool
	Elapsed   time.Duration
}

// Reembedder precomputes embedded fragments for every library document.
type Reembedder struct {
	library     storage.LibraryReader
	checkpoints storage.CheckpointRepository
	config      *Config
	progress    io.Writer
	processor   *BatchProcessor
	logger      *slog.Logger
}

// NewReembedder creates a new reembedder. checkpoints may be nil, in which
// case runs always start from the first document.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(library storage.LibraryReader, fragments storage.FragmentRepository, checkpoints storage.CheckpointRepository, embedder ai.Embedder, config *Config, progress io.Writer) (*Reembedder, error) {
	if library == nil {
		return nil, ErrLibraryRequired
	}
	if fragments == nil {
		return nil, ErrFragmentsRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if progress == nil {
		progress = io.Discard
	}
	fragmentSize := config.FragmentSize
	if fragmentSize <= 0 {
		fragmentSize = search.DefaultFragmentSize
	}

	processor := NewBatchProcessor(fragments, embedder, search.NewSplitter(fragmentSize), config.MaxRetries, config.RetryDelay)
	if config.EmbeddingBatchSize > 0 {
		processor.embedBatch = config.EmbeddingBatchSize
	}
	processor.force = config.Force

	return &Reembedder{
		library:     library,
		checkpoints: checkpoints,
		config:      config,
		progress:    progress,
		processor:   processor,
		logger:      slog.Default().With("component", "reembed"),
	}, nil
}

// Run embeds every document after the last checkpoint.
// Progress is reported to the configured writer. The checkpoint is removed
// once every document has been processed.
func (r *Reembedder) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	iterator := NewDocumentIterator(r.library, r.config.BatchSize)

	checkpoint, err := r.loadCheckpoint(ctx)
	if err != nil {
		return stats, err
	}
	if checkpoint != nil && !r.config.Force {
		iterator.After(checkpoint.LastID)
		stats.Resumed = true
		r.logger.Info("resuming from checkpoint", "last_id", checkpoint.LastID, "processed", checkpoint.Processed)
	}

	remaining, err := iterator.Remaining(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to list documents: %w", err)
	}
	total := len(remaining)
	if total == 0 {
		fmt.Fprintf(r.progress, "No documents to embed (0 documents)\n")
		return stats, r.clearCheckpoint(ctx)
	}

	fmt.Fprintf(r.progress, "Embedding fragments for %d documents (batch size: %d)\n", total, r.config.BatchSize)

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	processed := 0
	if checkpoint != nil && stats.Resumed {
		processed = checkpoint.Processed
	}
	err = iterator.ForEach(ctx, func(docs []*core.Document) error {
		batch, err := r.processor.Process(ctx, docs)
		stats.Documents += batch.Documents
		stats.Skipped += batch.Skipped
		stats.Fragments += batch.Fragments
		if err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}

		processed += len(docs)
		tracker.Add(len(docs), batch.Fragments, batch.Skipped)
		return r.saveCheckpoint(ctx, docs[len(docs)-1].ID, processed)
	})
	if err != nil {
		return stats, err
	}

	tracker.Finish()
	stats.Elapsed = tracker.Elapsed()
	fmt.Fprintf(r.progress, "Embedding complete. %d documents (%d skipped), %d fragments in %v\n",
		stats.Documents, stats.Skipped, stats.Fragments, stats.Elapsed.Round(time.Millisecond))

	return stats, r.clearCheckpoint(ctx)
}

func (r *Reembedder) loadCheckpoint(ctx context.Context) (*core.Checkpoint, error) {
	if r.checkpoints == nil {
		return nil, nil
	}
	cp, err := r.checkpoints.LoadCheckpoint(ctx, ProcessorType)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return cp, nil
}

func (r *Reembedder) saveCheckpoint(ctx context.Context, lastID core.ID, processed int) error {
	if r.checkpoints == nil {
		return nil
	}
	err := r.checkpoints.SaveCheckpoint(ctx, &core.Checkpoint{
		ProcessorType: ProcessorType,
		LastID:        lastID,
		Processed:     processed,
		UpdatedAt:     time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

func (r *Reembedder) clearCheckpoint(ctx context.Context) error {
	if r.checkpoints == nil {
		return nil
	}
	if err := r.checkpoints.DeleteCheckpoint(ctx, ProcessorType); err != nil {
		return fmt.Errorf("failed to clear checkpoint: %w", err)
	}
	return nil
}
