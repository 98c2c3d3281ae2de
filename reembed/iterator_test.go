package reembed

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/poiesic/marginalia/core"
	"github.com/poiesic/marginalia/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRepos(t *testing.T) *badger.Repositories {
	t.Helper()
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })
	return repos
}

// addDocuments stores n documents with IDs 1..n.
func addDocuments(t *testing.T, repos *badger.Repositories, n int) []*core.Document {
	t.Helper()
	docs := make([]*core.Document, n)
	for i := range docs {
		docs[i] = &core.Document{
			ID:      core.ID(i + 1),
			UserID:  "u1",
			Title:   fmt.Sprintf("Document %d", i+1),
			Content: fmt.Sprintf("Document %d opens with a storm. The keeper lights the lamp.", i+1),
		}
	}
	stored, err := repos.Library.PutDocuments(context.Background(), docs...)
	require.NoError(t, err)
	return stored
}

func collectIDs(t *testing.T, it *DocumentIterator) [][]core.ID {
	t.Helper()
	var batches [][]core.ID
	err := it.ForEach(context.Background(), func(docs []*core.Document) error {
		ids := make([]core.ID, len(docs))
		for i, d := range docs {
			ids[i] = d.ID
		}
		batches = append(batches, ids)
		return nil
	})
	require.NoError(t, err)
	return batches
}

func TestDocumentIterator_Batches(t *testing.T) {
	repos := setupTestRepos(t)
	addDocuments(t, repos, 5)

	batches := collectIDs(t, NewDocumentIterator(repos.Library, 2))
	assert.Equal(t, [][]core.ID{{1, 2}, {3, 4}, {5}}, batches)
}

func TestDocumentIterator_Empty(t *testing.T) {
	repos := setupTestRepos(t)
	assert.Empty(t, collectIDs(t, NewDocumentIterator(repos.Library, 2)))
}

func TestDocumentIterator_DefaultBatchSize(t *testing.T) {
	repos := setupTestRepos(t)
	it := NewDocumentIterator(repos.Library, 0)
	assert.Equal(t, DefaultBatchSize, it.batchSize)
}

func TestDocumentIterator_After(t *testing.T) {
	repos := setupTestRepos(t)
	addDocuments(t, repos, 5)

	assert.Equal(t, [][]core.ID{{4, 5}}, collectIDs(t, NewDocumentIterator(repos.Library, 10).After(3)))
	assert.Empty(t, collectIDs(t, NewDocumentIterator(repos.Library, 10).After(5)))
}

func TestDocumentIterator_StopsOnError(t *testing.T) {
	repos := setupTestRepos(t)
	addDocuments(t, repos, 5)

	boom := errors.New("boom")
	calls := 0
	err := NewDocumentIterator(repos.Library, 2).ForEach(context.Background(), func([]*core.Document) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestDocumentIterator_ContextCanceled(t *testing.T) {
	repos := setupTestRepos(t)
	addDocuments(t, repos, 5)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := NewDocumentIterator(repos.Library, 2).ForEach(ctx, func([]*core.Document) error {
		calls++
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
