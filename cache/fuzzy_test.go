package cache

import (
	"testing"
	"time"

	"github.com/poiesic/marginalia/core"
	"github.com/stretchr/testify/assert"
)

func info(hash, user string, doc core.ID, normalized string, created time.Time) core.CacheEntryInfo {
	return core.CacheEntryInfo{
		ID:              "id-" + hash,
		QueryHash:       hash,
		NormalizedQuery: normalized,
		UserID:          user,
		DocumentID:      doc,
		CreatedAt:       created,
		LastAccessedAt:  created,
	}
}

func TestSimilarity(t *testing.T) {
	sim, shared := Similarity("How do memory palaces work?", "how does a memory palace work")
	assert.Equal(t, 1.0, sim)
	assert.Equal(t, 3, shared)

	sim, shared = Similarity("memory palace history", "memory palace work")
	assert.InDelta(t, 0.5, sim, 1e-9)
	assert.Equal(t, 2, shared)

	sim, shared = Similarity("the of and", "memory")
	assert.Zero(t, sim)
	assert.Zero(t, shared)
}

func TestMatchFuzzy(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	policy := DefaultFuzzyPolicy()
	const (
		sixWords   = "stoic virtue courage wisdom justice temperance"
		sevenWords = "stoic virtue courage wisdom justice temperance discipline"
	)

	tests := []struct {
		name       string
		query      core.Query
		candidates []core.CacheEntryInfo
		wantHash   string
	}{
		{
			name:       "same document near duplicate",
			query:      core.NewQuery(sixWords, core.QueryContext{UserID: "u1", DocumentID: 7}, core.SearchParams{}),
			candidates: []core.CacheEntryInfo{info("a", "u1", 7, sevenWords, now)},
			wantHash:   "a",
		},
		{
			name:       "cross document needs a stricter match",
			query:      core.NewQuery(sixWords, core.QueryContext{UserID: "u1", DocumentID: 7}, core.SearchParams{}),
			candidates: []core.CacheEntryInfo{info("a", "u1", 8, sevenWords, now)},
		},
		{
			name:       "cross document identical words",
			query:      core.NewQuery("How do memory palaces work?", core.QueryContext{UserID: "u1", DocumentID: 7}, core.SearchParams{}),
			candidates: []core.CacheEntryInfo{info("a", "u1", 8, "how does a memory palace work", now)},
			wantHash:   "a",
		},
		{
			name:       "single shared word is never enough",
			query:      core.NewQuery("memory", core.QueryContext{UserID: "u1", DocumentID: 7}, core.SearchParams{}),
			candidates: []core.CacheEntryInfo{info("a", "u1", 7, "what about memory", now)},
		},
		{
			name:       "other users are ignored",
			query:      core.NewQuery(sixWords, core.QueryContext{UserID: "u1", DocumentID: 7}, core.SearchParams{}),
			candidates: []core.CacheEntryInfo{info("a", "u2", 7, sixWords, now)},
		},
		{
			name:       "expired entries are ignored",
			query:      core.NewQuery(sixWords, core.QueryContext{UserID: "u1", DocumentID: 7}, core.SearchParams{}),
			candidates: []core.CacheEntryInfo{info("a", "u1", 7, sixWords, now.Add(-48*time.Hour))},
		},
		{
			name:  "same document preferred over better cross document",
			query: core.NewQuery(sixWords, core.QueryContext{UserID: "u1", DocumentID: 7}, core.SearchParams{}),
			candidates: []core.CacheEntryInfo{
				info("cross", "u1", 8, sixWords, now),
				info("same", "u1", 7, sevenWords, now),
			},
			wantHash: "same",
		},
		{
			name:       "unrelated query misses",
			query:      core.NewQuery("memory palace history", core.QueryContext{UserID: "u1", DocumentID: 7}, core.SearchParams{}),
			candidates: []core.CacheEntryInfo{info("a", "u1", 7, "memory palace work", now)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, sim, ok := MatchFuzzy(tt.query, "self", tt.candidates, policy, now, DefaultTTL)
			if tt.wantHash == "" {
				assert.False(t, ok, "unexpected match %q", got.QueryHash)
				return
			}
			assert.True(t, ok)
			assert.Equal(t, tt.wantHash, got.QueryHash)
			assert.Greater(t, sim, 0.0)
		})
	}
}

func TestMatchFuzzy_SkipsOwnHash(t *testing.T) {
	now := time.Now()
	q := core.NewQuery("memory palace work", core.QueryContext{UserID: "u1"}, core.SearchParams{})
	_, _, ok := MatchFuzzy(q, "self", []core.CacheEntryInfo{info("self", "u1", 0, "memory palace work", now)}, DefaultFuzzyPolicy(), now, 0)
	assert.False(t, ok)
}
