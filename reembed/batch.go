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
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/poiesic/marginalia/ai"
	"github.com/poiesic/marginalia/core"
	"github.com/poiesic/marginalia/scoring"
	"github.com/poiesic/marginalia/search"
	"github.com/poiesic/marginalia/storage"
)

// DefaultEmbeddingBatchSize is how many fragments go into one embedding call.
const DefaultEmbeddingBatchSize = 32

// BatchStats counts what one batch did.
type BatchStats struct {
	Documents int
	Skipped   int
	Fragments int
}

// BatchProcessor fragments and embeds batches of documents.
type BatchProcessor struct {
	fragments      storage.FragmentRepository
	embedder       ai.Embedder
	splitter       *search.Splitter
	embedBatch     int
	maxRetries     int
	retryBaseDelay time.Duration
	force          bool
}

// NewBatchProcessor creates a new batch processor.
// maxRetries: maximum number of attempts for each embedding call
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(fragments storage.FragmentRepository, embedder ai.Embedder, splitter *search.Splitter, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	return &BatchProcessor{
		fragments:      fragments,
		embedder:       embedder,
		splitter:       splitter,
		embedBatch:     DefaultEmbeddingBatchSize,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
	}
}

// upToDate reports whether stored fragments for doc are embedded and stamped
// with its current version.
func (bp *BatchProcessor) upToDate(ctx context.Context, doc *core.Document) (bool, error) {
	stored, version, err := bp.fragments.GetFragments(ctx, doc.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !version.Equal(doc.UpdatedAt) {
		return false, nil
	}
	for _, f := range stored {
		if len(f.Embedding) == 0 {
			return false, nil
		}
	}
	return true, nil
}

// Process fragments each document, embeds the fragments, and stores them.
// Vectors are normalized after embedding to ensure compatibility with cosine similarity.
// Documents whose stored fragments are current are skipped unless forced.
func (bp *BatchProcessor) Process(ctx context.Context, docs []*core.Document) (BatchStats, error) {
	var stats BatchStats
	if len(docs) == 0 {
		return stats, nil
	}

	type pending struct {
		doc   *core.Document
		frags []core.ContentFragment
	}
	var work []pending
	var texts []string
	for _, doc := range docs {
		if !bp.force {
			current, err := bp.upToDate(ctx, doc)
			if err != nil {
				return stats, fmt.Errorf("failed to read fragments for document %d: %w", doc.ID, err)
			}
			if current {
				stats.Skipped++
				continue
			}
		}
		frags := bp.splitter.SplitDocument(doc)
		for _, f := range frags {
			texts = append(texts, f.Text)
		}
		work = append(work, pending{doc: doc, frags: frags})
	}

	embeddings := make([][]float32, 0, len(texts))
	for chunk := range slices.Chunk(texts, bp.embedBatch) {
		var vectors [][]float32
		err := RetryWithBackoff(ctx, func() error {
			var err error
			vectors, err = bp.embedder.EmbedTexts(ctx, chunk)
			if err == nil && len(vectors) != len(chunk) {
				return Permanent(fmt.Errorf("embedding count mismatch: expected %d, got %d", len(chunk), len(vectors)))
			}
			return err
		}, bp.maxRetries, bp.retryBaseDelay)
		if err != nil {
			return stats, fmt.Errorf("failed to generate embeddings: %w", err)
		}
		embeddings = append(embeddings, vectors...)
	}

	next := 0
	for _, w := range work {
		for i := range w.frags {
			w.frags[i].Embedding = scoring.Normalize(embeddings[next])
			next++
		}
		if err := bp.fragments.PutFragments(ctx, w.doc.ID, w.doc.UpdatedAt, w.frags); err != nil {
			return stats, fmt.Errorf("failed to store fragments for document %d: %w", w.doc.ID, err)
		}
		stats.Documents++
		stats.Fragments += len(w.frags)
	}
	return stats, nil
}
