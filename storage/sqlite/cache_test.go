package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/marginalia/core"
	"github.com/poiesic/marginalia/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *CacheRepository {
	t.Helper()
	repo, err := OpenCacheRepository(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testEntry(hash, user string, doc core.ID, accessed time.Time) *core.CacheEntry {
	return &core.CacheEntry{
		ID:              "id-" + hash,
		QueryHash:       hash,
		QueryText:       "What is " + hash + "?",
		NormalizedQuery: "what is " + hash + "?",
		UserID:          user,
		DocumentID:      doc,
		Chapter:         "3",
		Results: []core.ScoredResult{{
			Fragment: core.ContentFragment{Text: "fragment", Source: core.SourceRef{Type: core.SourceDocument, ID: doc}},
			Score:    0.8,
			Metadata: map[string]string{core.MetaSection: core.SectionCurrent},
		}},
		Metadata:       core.CacheMetadata{Truncated: true, TotalResults: 14, Answer: "answer"},
		AccessCount:    1,
		CreatedAt:      accessed,
		LastAccessedAt: accessed,
	}
}

func TestOpen_InMemory(t *testing.T) {
	repo, err := OpenCacheRepository(MemoryPath)
	require.NoError(t, err)
	defer repo.Close()

	ctx := context.Background()
	require.NoError(t, repo.PutEntry(ctx, testEntry("h1", "u1", 1, time.Now())))
	count, err := repo.CountEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestOpen_MigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	repo, err := OpenCacheRepository(path)
	require.NoError(t, err)
	require.NoError(t, repo.PutEntry(ctx, testEntry("h1", "u1", 1, time.Now())))
	require.NoError(t, repo.Close())

	repo, err = OpenCacheRepository(path)
	require.NoError(t, err)
	defer repo.Close()

	count, err := repo.CountEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCache_PutGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// Document IDs use the full uint64 range.
	in := testEntry("h1", "u1", core.ID(^uint64(0)-5), now)
	require.NoError(t, repo.PutEntry(ctx, in))

	got, err := repo.GetEntry(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, in.ID, got.ID)
	assert.Equal(t, in.QueryText, got.QueryText)
	assert.Equal(t, in.DocumentID, got.DocumentID)
	assert.Equal(t, in.Results, got.Results)
	assert.Equal(t, in.Metadata, got.Metadata)
	assert.True(t, now.Equal(got.LastAccessedAt))

	_, err = repo.GetEntry(ctx, "missing")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestCache_PutReplacesByHash(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.PutEntry(ctx, testEntry("h1", "u1", 1, now)))
	replacement := testEntry("h1", "u1", 1, now)
	replacement.ID = "other-id"
	replacement.Metadata.Answer = "new answer"
	require.NoError(t, repo.PutEntry(ctx, replacement))

	count, err := repo.CountEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := repo.GetEntry(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "new answer", got.Metadata.Answer)
	assert.Equal(t, "other-id", got.ID)
}

func TestCache_TouchEntry(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.PutEntry(ctx, testEntry("h1", "u1", 1, now)))
	later := now.Add(time.Minute)
	require.NoError(t, repo.TouchEntry(ctx, "h1", later))

	got, err := repo.GetEntry(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.AccessCount)
	assert.True(t, later.Equal(got.LastAccessedAt))

	// An older touch still counts but does not move the timestamp back.
	require.NoError(t, repo.TouchEntry(ctx, "h1", now))
	got, err = repo.GetEntry(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.AccessCount)
	assert.True(t, later.Equal(got.LastAccessedAt))

	err = repo.TouchEntry(ctx, "missing", now)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestCache_ConcurrentTouch(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, repo.PutEntry(ctx, testEntry("h1", "u1", 1, now)))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, repo.TouchEntry(ctx, "h1", time.Now()))
		}()
	}
	wg.Wait()

	got, err := repo.GetEntry(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, int64(9), got.AccessCount)
}

func TestCache_RecentEntries(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, repo.PutEntry(ctx, testEntry("old", "u1", 1, base)))
	require.NoError(t, repo.PutEntry(ctx, testEntry("mid", "u1", 1, base.Add(time.Minute))))
	require.NoError(t, repo.PutEntry(ctx, testEntry("new", "u1", 2, base.Add(2*time.Minute))))
	require.NoError(t, repo.PutEntry(ctx, testEntry("other", "u2", 1, base.Add(3*time.Minute))))

	recent, err := repo.RecentEntries(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "new", recent[0].QueryHash)
	assert.Equal(t, "mid", recent[1].QueryHash)

	all, err := repo.RecentEntries(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestCache_ListAndDelete(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now()

	for _, h := range []string{"a", "b", "c"} {
		require.NoError(t, repo.PutEntry(ctx, testEntry(h, "u1", 1, now)))
	}

	infos, err := repo.ListEntryInfo(ctx)
	require.NoError(t, err)
	assert.Len(t, infos, 3)

	deleted, err := repo.DeleteEntries(ctx, "a", "c", "missing")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	count, err := repo.CountEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	deleted, err = repo.DeleteEntries(ctx)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}
