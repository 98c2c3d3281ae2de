package badger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/marginalia/core"
	"github.com/poiesic/marginalia/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepos(t *testing.T) *Repositories {
	t.Helper()
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })
	return repos
}

func TestLibrary_PutAndGetDocument(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	doc := &core.Document{UserID: "u1", Title: "Walden", Author: "Thoreau", Content: "I went to the woods."}
	put, err := repos.Library.PutDocuments(ctx, doc)
	require.NoError(t, err)
	require.Len(t, put, 1)
	assert.NotZero(t, put[0].ID)
	assert.False(t, put[0].UpdatedAt.IsZero())

	got, err := repos.Library.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Walden", got.Title)
	assert.Equal(t, "I went to the woods.", got.Content)

	_, err = repos.Library.GetDocument(ctx, 12345)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestLibrary_PutDocuments_Validates(t *testing.T) {
	repos := newTestRepos(t)

	_, err := repos.Library.PutDocuments(context.Background(), &core.Document{Title: "no owner"})
	assert.True(t, errors.Is(err, core.ErrInvalidDocument))
}

func TestLibrary_PutDocuments_SameTitleDifferentText(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	first := &core.Document{UserID: "u1", Title: "Notes", Author: "Anon", Content: "The first notebook."}
	second := &core.Document{UserID: "u1", Title: "Notes", Author: "Anon", Content: "A different notebook."}
	_, err := repos.Library.PutDocuments(ctx, first)
	require.NoError(t, err)
	_, err = repos.Library.PutDocuments(ctx, second)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	docs, err := repos.Library.ListDocuments(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, docs, 2)

	got, err := repos.Library.GetDocument(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "The first notebook.", got.Content)

	// Same text under the same title is the same document.
	again := &core.Document{UserID: "u1", Title: "Notes", Author: "Anon", Content: "The first notebook."}
	_, err = repos.Library.PutDocuments(ctx, again)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
}

func TestLibrary_ListDocuments(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	_, err := repos.Library.PutDocuments(ctx,
		&core.Document{ID: 3, UserID: "u1", Title: "C"},
		&core.Document{ID: 1, UserID: "u1", Title: "A"},
		&core.Document{ID: 2, UserID: "u2", Title: "B"},
	)
	require.NoError(t, err)

	mine, err := repos.Library.ListDocuments(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, core.ID(1), mine[0].ID)
	assert.Equal(t, core.ID(3), mine[1].ID)

	all, err := repos.Library.ListAllDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []core.ID{1, 2, 3}, []core.ID{all[0].ID, all[1].ID, all[2].ID})

	some, err := repos.Library.GetDocuments(ctx, 2, 99, 3)
	require.NoError(t, err)
	assert.Len(t, some, 2)
}

func TestLibrary_ReassignOwner(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	_, err := repos.Library.PutDocuments(ctx, &core.Document{ID: 1, UserID: "u1", Title: "A"})
	require.NoError(t, err)
	_, err = repos.Library.PutDocuments(ctx, &core.Document{ID: 1, UserID: "u2", Title: "A"})
	require.NoError(t, err)

	u1, err := repos.Library.ListDocuments(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, u1)
	u2, err := repos.Library.ListDocuments(ctx, "u2")
	require.NoError(t, err)
	assert.Len(t, u2, 1)
}

func TestLibrary_Annotations(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	_, err := repos.Library.PutAnnotations(ctx,
		&core.Annotation{UserID: "u1", DocumentID: 1, Highlight: "first"},
		&core.Annotation{UserID: "u1", DocumentID: 2, Highlight: "second", Note: "why?"},
		&core.Annotation{UserID: "u2", DocumentID: 1, Highlight: "other user"},
	)
	require.NoError(t, err)

	all, err := repos.Library.ListAnnotations(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	doc1, err := repos.Library.ListAnnotations(ctx, "u1", 1)
	require.NoError(t, err)
	require.Len(t, doc1, 1)
	assert.Equal(t, "first", doc1[0].Highlight)
	assert.False(t, doc1[0].CreatedAt.IsZero())

	// The same highlight in another document is a separate annotation.
	_, err = repos.Library.PutAnnotations(ctx, &core.Annotation{UserID: "u1", DocumentID: 2, Highlight: "first"})
	require.NoError(t, err)
	doc1, err = repos.Library.ListAnnotations(ctx, "u1", 1)
	require.NoError(t, err)
	assert.Len(t, doc1, 1)
	all, err = repos.Library.ListAnnotations(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestLibrary_Memories(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	_, err := repos.Library.PutMemories(ctx,
		&core.Memory{UserID: "u1", Content: "Reminded me of my grandfather's farm."},
		&core.Memory{UserID: "u2", Content: "Someone else's memory."},
	)
	require.NoError(t, err)

	mems, err := repos.Library.ListMemories(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, mems, 1)
	assert.Contains(t, mems[0].Content, "grandfather")
}

func TestLibrary_DeleteDocuments(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	_, err := repos.Library.PutDocuments(ctx, &core.Document{ID: 1, UserID: "u1", Title: "A", Content: "text"})
	require.NoError(t, err)
	_, err = repos.Library.PutAnnotations(ctx, &core.Annotation{UserID: "u1", DocumentID: 1, Highlight: "h"})
	require.NoError(t, err)
	require.NoError(t, repos.Fragments.PutFragments(ctx, 1, time.Now(), []core.ContentFragment{{Text: "text"}}))

	require.NoError(t, repos.Library.DeleteDocuments(ctx, 1))

	_, err = repos.Library.GetDocument(ctx, 1)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
	anns, err := repos.Library.ListAnnotations(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Empty(t, anns)
	_, _, err = repos.Fragments.GetFragments(ctx, 1)
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	err = repos.Library.DeleteDocuments(ctx, 1)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}
