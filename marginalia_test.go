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

package marginalia

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/marginalia/ai"
	"github.com/poiesic/marginalia/ai/mock"
	"github.com/poiesic/marginalia/config"
	"github.com/poiesic/marginalia/core"
	"github.com/poiesic/marginalia/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	question = "What happens during the storm in chapter 3?"
	answer   = "According to the passage, the narrator keeps the lamp burning through the storm in chapter 3."
)

func lighthouse() *core.Document {
	return &core.Document{
		ID:     42,
		UserID: "u1",
		Title:  "The Keeper",
		Chapters: []core.Chapter{
			{ID: "1", Title: "Arrival", Content: "The narrator arrives on the island in spring."},
			{ID: "3", Title: "The Storm", Content: "During the storm the narrator climbs the lighthouse and keeps the lamp burning."},
		},
	}
}

// testProvider embeds every text identically and always answers.
func testProvider() *mock.MockProvider {
	unit := mock.Vector("lamp")
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(context.Context, string) ([]float32, error) { return unit, nil }
	embedder.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i := range out {
			out[i] = unit
		}
		return out, nil
	}
	completer := mock.NewMockCompleter()
	completer.CompleteFunc = func(context.Context, string, ai.Requirements) (string, error) {
		return answer, nil
	}
	return mock.NewMockProviderWithServices(embedder, completer)
}

func openTestDatabase(t *testing.T, opts ...Option) (*Database, *mock.MockProvider) {
	t.Helper()
	provider := testProvider()
	opts = append([]Option{WithInMemory(), WithProvider(provider)}, opts...)
	db, err := Open("", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Library().PutDocuments(context.Background(), lighthouse())
	require.NoError(t, err)
	return db, provider
}

func TestOpen(t *testing.T) {
	t.Run("creates data directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "data")
		db, err := Open(dir, WithProvider(testProvider()), WithCacheBackend("sqlite"))
		require.NoError(t, err)
		require.NoError(t, db.Close())

		assert.DirExists(t, filepath.Join(dir, "library"))
		assert.FileExists(t, filepath.Join(dir, "cache.db"))
	})

	t.Run("error with file path", func(t *testing.T) {
		tmpFile := filepath.Join(t.TempDir(), "not_a_dir")
		require.NoError(t, os.WriteFile(tmpFile, []byte("test"), 0o644))

		db, err := Open(tmpFile, WithProvider(testProvider()))
		assert.Error(t, err)
		assert.Nil(t, db)
	})

	t.Run("error without directory", func(t *testing.T) {
		_, err := Open("", WithProvider(testProvider()))
		assert.Error(t, err)
	})

	t.Run("rejects bad options", func(t *testing.T) {
		_, err := Open("", WithInMemory(), WithCacheBackend("redis"))
		assert.Error(t, err)

		_, err = Open("", WithInMemory(), WithProvider(nil))
		assert.Error(t, err)

		_, err = Open("", WithInMemory(), WithConfig(nil))
		assert.Error(t, err)
	})

	t.Run("caller keeps provider ownership", func(t *testing.T) {
		provider := testProvider()
		db, err := Open("", WithInMemory(), WithProvider(provider))
		require.NoError(t, err)
		require.NoError(t, db.Close())
		assert.False(t, provider.Closed())
	})

	t.Run("without cache", func(t *testing.T) {
		db, err := Open("", WithInMemory(), WithProvider(testProvider()), WithoutCache())
		require.NoError(t, err)
		defer db.Close()
		assert.Nil(t, db.Cache())
	})
}

func TestDatabase_Persistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, err := Open(dir, WithProvider(testProvider()))
	require.NoError(t, err)
	_, err = db.Library().PutDocuments(ctx, lighthouse())
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(dir, WithProvider(testProvider()))
	require.NoError(t, err)
	defer db.Close()

	doc, err := db.Library().GetDocument(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "The Keeper", doc.Title)
}

func TestDatabase_Ask(t *testing.T) {
	for _, backend := range []string{config.CacheBackendBadger, config.CacheBackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			db, provider := openTestDatabase(t, WithCacheBackend(backend))
			ctx := context.Background()
			qc := core.QueryContext{UserID: "u1", DocumentID: 42}

			first := db.Ask(ctx, question, qc, core.SearchParams{})
			require.NotNil(t, first)
			assert.Equal(t, core.ResultFresh, first.Source)
			assert.NotEmpty(t, first.Sources)
			assert.Contains(t, first.Answer, "lamp burning")
			assert.Equal(t, 1, provider.GetMockCompleter().CallCount())

			second := db.Ask(ctx, question, qc, core.SearchParams{})
			assert.Equal(t, core.ResultCache, second.Source)
			assert.Equal(t, first.Answer, second.Answer)
			assert.Equal(t, first.QueryHash, second.QueryHash)
			assert.Equal(t, 1, provider.GetMockCompleter().CallCount(), "cached answers do not call the completer")

			stats, err := db.Cache().Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, stats.Entries)
		})
	}
}

func TestDatabase_AskInvalid(t *testing.T) {
	db, _ := openTestDatabase(t)

	resp := db.Ask(context.Background(), "   ", core.QueryContext{UserID: "u1"}, core.SearchParams{})
	require.NotNil(t, resp)
	assert.Equal(t, core.ResultMinimal, resp.Source)
}

func TestDatabase_Search(t *testing.T) {
	db, provider := openTestDatabase(t)
	ctx := context.Background()

	results, err := db.Search(ctx, question, core.QueryContext{UserID: "u1", DocumentID: 42}, core.SearchParams{Limit: 3})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.LessOrEqual(t, len(results), 3)
	assert.Equal(t, core.ID(42), results[0].Fragment.Source.DocumentID)
	assert.Zero(t, provider.GetMockCompleter().CallCount())

	_, err = db.Search(ctx, question, core.QueryContext{}, core.SearchParams{})
	assert.ErrorIs(t, err, core.ErrEmptyUserID)
}

func TestDatabase_DocumentChanged(t *testing.T) {
	db, provider := openTestDatabase(t)
	ctx := context.Background()
	qc := core.QueryContext{UserID: "u1", DocumentID: 42}

	_, err := db.Reembed(ctx, false, nil)
	require.NoError(t, err)
	db.Ask(ctx, question, qc, core.SearchParams{})
	require.Equal(t, 1, provider.GetMockCompleter().CallCount())

	require.NoError(t, db.DocumentChanged(ctx, "u1", 42))

	_, _, err = db.fragments.GetFragments(ctx, 42)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	resp := db.Ask(ctx, question, qc, core.SearchParams{})
	assert.Equal(t, core.ResultFresh, resp.Source)
	assert.Equal(t, 2, provider.GetMockCompleter().CallCount())

	assert.Error(t, db.DocumentChanged(ctx, "u1", 0))
}

func TestDatabase_Reembed(t *testing.T) {
	db, _ := openTestDatabase(t)
	ctx := context.Background()
	var out bytes.Buffer

	stats, err := db.Reembed(ctx, false, &out)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Documents)
	assert.Positive(t, stats.Fragments)
	assert.Contains(t, out.String(), "Embedding complete")

	frags, _, err := db.fragments.GetFragments(ctx, 42)
	require.NoError(t, err)
	assert.Len(t, frags, stats.Fragments)

	again, err := db.Reembed(ctx, false, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Skipped)

	forced, err := db.Reembed(ctx, true, nil)
	require.NoError(t, err)
	assert.Zero(t, forced.Skipped)
}

func TestDatabase_RebuildConceptIndex(t *testing.T) {
	db, _ := openTestDatabase(t)

	stats, err := db.RebuildConceptIndex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Documents)
	// The test completer does not reply with concepts.
	assert.Equal(t, 1, stats.Heuristic)
	assert.NotEmpty(t, db.Concepts().Concepts(42))
}

func TestDatabase_WithConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.CacheBackend = config.CacheBackendSQLite
	cfg.Cache.MaxEntries = 5
	cfg.Search.FragmentSize = 200

	db, err := Open("", WithInMemory(), WithConfig(cfg), WithProvider(testProvider()))
	require.NoError(t, err)
	defer db.Close()

	assert.NotNil(t, db.Cache())
	assert.Equal(t, 200, db.reembed.FragmentSize)
}
