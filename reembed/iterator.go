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
	"cmp"
	"context"
	"slices"

	"github.com/poiesic/marginalia/core"
	"github.com/poiesic/marginalia/storage"
)

const (
	// DefaultBatchSize is the default number of documents in each batch
	DefaultBatchSize = 20
)

// DocumentIterator iterates over library documents in ID order, in batches.
type DocumentIterator struct {
	library   storage.LibraryReader
	batchSize int
	after     core.ID
}

// NewDocumentIterator creates a new document iterator.
// batchSize: number of documents in each batch (defaults when <= 0)
func NewDocumentIterator(library storage.LibraryReader, batchSize int) *DocumentIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &DocumentIterator{
		library:   library,
		batchSize: batchSize,
	}
}

// After skips documents with an ID at or below id.
func (it *DocumentIterator) After(id core.ID) *DocumentIterator {
	it.after = id
	return it
}

// Remaining returns the documents the iterator will visit.
func (it *DocumentIterator) Remaining(ctx context.Context) ([]*core.Document, error) {
	docs, err := it.library.ListAllDocuments(ctx)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(docs, func(a, b *core.Document) int { return cmp.Compare(a.ID, b.ID) })
	start := 0
	if it.after > 0 {
		start = slices.IndexFunc(docs, func(d *core.Document) bool { return d.ID > it.after })
		if start < 0 {
			return nil, nil
		}
	}
	return docs[start:], nil
}

// ForEach calls fn for each batch of documents.
// Iteration stops on first error from fn or when all documents are processed.
// Context cancellation is checked between batches.
func (it *DocumentIterator) ForEach(ctx context.Context, fn func([]*core.Document) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	docs, err := it.Remaining(ctx)
	if err != nil {
		return err
	}

	for batch := range slices.Chunk(docs, it.batchSize) {
		if err := fn(batch); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}
