package concept

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/marginalia/ai"
	"github.com/poiesic/marginalia/ai/mock"
	"github.com/poiesic/marginalia/core"
	"github.com/poiesic/marginalia/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLibrary(t *testing.T, docs ...*core.Document) *badger.Repositories {
	t.Helper()
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })
	if len(docs) > 0 {
		_, err = repos.Library.PutDocuments(context.Background(), docs...)
		require.NoError(t, err)
	}
	return repos
}

// conceptsByTitle answers extraction prompts based on the document title.
func conceptsByTitle(replies map[string]string) func(context.Context, string, ai.Requirements) (string, error) {
	return func(_ context.Context, prompt string, _ ai.Requirements) (string, error) {
		for title, reply := range replies {
			if strings.Contains(prompt, "Title: "+title+"\n") {
				return reply, nil
			}
		}
		return "", errors.New("unexpected prompt")
	}
}

func TestNewIndexer(t *testing.T) {
	repos := newLibrary(t)

	t.Run("valid configuration", func(t *testing.T) {
		ix, err := NewIndexer(repos.Library, mock.NewMockCompleter())
		require.NoError(t, err)
		assert.Equal(t, Stats{}, ix.Stats())
		assert.Empty(t, ix.Lookup([]string{"anything"}))
	})

	t.Run("nil library", func(t *testing.T) {
		_, err := NewIndexer(nil, nil)
		assert.Equal(t, ErrLibraryRequired, err)
	})

	t.Run("invalid concurrency", func(t *testing.T) {
		_, err := NewIndexer(repos.Library, nil, WithConcurrency(0))
		assert.Error(t, err)
	})

	t.Run("invalid prefix length", func(t *testing.T) {
		_, err := NewIndexer(repos.Library, nil, WithPrefixLength(-1))
		assert.Error(t, err)
	})

	t.Run("invalid extraction settings", func(t *testing.T) {
		_, err := NewIndexer(repos.Library, nil, WithExtractionAttempts(0))
		assert.Error(t, err)
		_, err = NewIndexer(repos.Library, nil, WithExtractionTimeout(0))
		assert.Error(t, err)
	})

	t.Run("nil logger falls back to default", func(t *testing.T) {
		_, err := NewIndexer(repos.Library, nil, WithLogger(nil))
		require.NoError(t, err)
	})
}

func TestBuild_WithModel(t *testing.T) {
	docs := []*core.Document{
		{ID: 1, UserID: "u1", Title: "Moonwalking with Einstein", Content: "Memory champions use the method of loci."},
		{ID: 2, UserID: "u1", Title: "Make It Stick", Content: "Retrieval practice beats rereading."},
		{ID: 3, UserID: "u2", Title: "Thinking, Fast and Slow", Content: "Two systems drive the way we think."},
	}
	repos := newLibrary(t, docs...)

	completer := mock.NewMockCompleter()
	completer.CompleteFunc = conceptsByTitle(map[string]string{
		"Moonwalking with Einstein": `{"concepts": ["Memory Palace", "method of loci", "memory", "Memory"]}`,
		"Make It Stick":             "```json\n[\"retrieval practice\", \"memory\", \"spacing\"]\n```",
		"Thinking, Fast and Slow":   `Here you go: {"concepts": ["heuristics", "biases", "two systems"]}`,
	})

	ix, err := NewIndexer(repos.Library, completer, WithConcurrency(2))
	require.NoError(t, err)

	stats, err := ix.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Documents)
	assert.Zero(t, stats.Heuristic)
	assert.Equal(t, 3, completer.CallCount())

	assert.Equal(t, []core.ID{1, 2}, ix.Lookup([]string{"memory"}))
	assert.Equal(t, []core.ID{1}, ix.Lookup([]string{"MEMORY PALACE "}))
	assert.Equal(t, []core.ID{1, 2, 3}, ix.Lookup([]string{"memory", "biases"}))
	assert.Empty(t, ix.Lookup([]string{"cooking"}))
	assert.Equal(t, []string{"memory", "memory palace", "method of loci"}, ix.Concepts(1))

	s := ix.Stats()
	assert.Equal(t, 3, s.Documents)
	assert.Equal(t, stats.Concepts, s.Concepts)
	assert.False(t, s.BuiltAt.IsZero())
}

func TestBuild_FallsBackToHeuristic(t *testing.T) {
	docs := []*core.Document{
		{ID: 1, UserID: "u1", Title: "The Knowledge Machine", Content: "How science became a method for building knowledge."},
	}
	repos := newLibrary(t, docs...)

	tests := []struct {
		name      string
		completer ai.Completer
	}{
		{"no completer", nil},
		{"prose reply", mock.NewMockCompleter()},
		{"completer error", &mock.MockCompleter{CompleteFunc: func(context.Context, string, ai.Requirements) (string, error) {
			return "", core.ErrTransientProvider
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ix, err := NewIndexer(repos.Library, tt.completer)
			require.NoError(t, err)

			stats, err := ix.Build(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 1, stats.Heuristic)
			assert.Equal(t, []string{"knowledge", "machine", "method", "science"}, ix.Concepts(1))
		})
	}
}

func TestBuild_RetriesExtraction(t *testing.T) {
	doc := &core.Document{ID: 1, UserID: "u1", Title: "The Knowledge Machine", Content: "How science became a method for building knowledge."}
	repos := newLibrary(t, doc)

	t.Run("malformed reply retried until it parses", func(t *testing.T) {
		var calls atomic.Int32
		completer := &mock.MockCompleter{CompleteFunc: func(context.Context, string, ai.Requirements) (string, error) {
			if calls.Add(1) < 3 {
				return "I think this book is about science.", nil
			}
			return `{"concepts": ["scientific method", "iron rule"]}`, nil
		}}
		ix, err := NewIndexer(repos.Library, completer)
		require.NoError(t, err)

		stats, err := ix.Build(context.Background())
		require.NoError(t, err)
		assert.Zero(t, stats.Heuristic)
		assert.Equal(t, 3, completer.CallCount())
		assert.Equal(t, []string{"iron rule", "scientific method"}, ix.Concepts(1))
	})

	t.Run("attempts are bounded", func(t *testing.T) {
		completer := mock.NewMockCompleter() // prose only
		ix, err := NewIndexer(repos.Library, completer, WithExtractionAttempts(2))
		require.NoError(t, err)

		stats, err := ix.Build(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Heuristic)
		assert.Equal(t, 2, completer.CallCount())
	})

	t.Run("hung completion times out to heuristic", func(t *testing.T) {
		completer := &mock.MockCompleter{CompleteFunc: func(ctx context.Context, _ string, _ ai.Requirements) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}}
		ix, err := NewIndexer(repos.Library, completer,
			WithExtractionTimeout(20*time.Millisecond), WithExtractionAttempts(1))
		require.NoError(t, err)

		start := time.Now()
		stats, err := ix.Build(context.Background())
		require.NoError(t, err)
		assert.Less(t, time.Since(start), 5*time.Second)
		assert.Equal(t, 1, stats.Heuristic)
	})
}

func TestBuild_ReplacesSnapshot(t *testing.T) {
	repos := newLibrary(t, &core.Document{ID: 1, UserID: "u1", Title: "Habits", Content: "habit loops"})
	ix, err := NewIndexer(repos.Library, nil)
	require.NoError(t, err)

	_, err = ix.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []core.ID{1}, ix.Lookup([]string{"habits"}))

	require.NoError(t, repos.Library.DeleteDocuments(context.Background(), 1))
	_, err = repos.Library.PutDocuments(context.Background(), &core.Document{ID: 2, UserID: "u1", Title: "Attention", Content: "focus"})
	require.NoError(t, err)

	_, err = ix.Build(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ix.Lookup([]string{"habits"}))
	assert.Equal(t, []core.ID{2}, ix.Lookup([]string{"attention"}))
}

func TestBuild_CancelledKeepsPreviousIndex(t *testing.T) {
	repos := newLibrary(t, &core.Document{ID: 1, UserID: "u1", Title: "Habits", Content: "habit loops"})
	ix, err := NewIndexer(repos.Library, nil)
	require.NoError(t, err)
	_, err = ix.Build(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ix.Build(ctx)
	assert.Error(t, err)
	assert.Equal(t, []core.ID{1}, ix.Lookup([]string{"habits"}))
}

func TestLookup_ConcurrentWithBuild(t *testing.T) {
	var docs []*core.Document
	for i := 1; i <= 20; i++ {
		docs = append(docs, &core.Document{ID: core.ID(i), UserID: "u1", Title: "Memory Studies", Content: "memory and learning"})
	}
	repos := newLibrary(t, docs...)
	ix, err := NewIndexer(repos.Library, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ix.Build(context.Background())
			assert.NoError(t, err)
		}()
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				ids := ix.Lookup([]string{"memory"})
				// Either the empty index or a complete one.
				assert.True(t, len(ids) == 0 || len(ids) == 20, "partial index observed: %d", len(ids))
			}
		}()
	}
	wg.Wait()
	assert.Len(t, ix.Lookup([]string{"memory"}), 20)
}

func TestExpandQuery(t *testing.T) {
	repos := newLibrary(t, &core.Document{ID: 1, UserID: "u1", Title: "Loci", Content: "x"})
	completer := &mock.MockCompleter{CompleteFunc: func(context.Context, string, ai.Requirements) (string, error) {
		return `{"concepts": ["method of loci", "memory palace"]}`, nil
	}}
	ix, err := NewIndexer(repos.Library, completer)
	require.NoError(t, err)
	_, err = ix.Build(context.Background())
	require.NoError(t, err)

	terms := ix.ExpandQuery("How does the method of loci build memories?")
	assert.Contains(t, terms, "method")
	assert.Contains(t, terms, "loci")
	assert.Contains(t, terms, "memories")
	assert.Contains(t, terms, "memory")
	assert.Contains(t, terms, "methods")
	assert.Contains(t, terms, "method loci")
	assert.Contains(t, terms, "method of loci")
	assert.NotContains(t, terms, "how")
	assert.NotContains(t, terms, "memory palace")

	assert.Equal(t, []core.ID{1}, ix.Lookup(terms))
}
