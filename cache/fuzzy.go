package cache

import (
	"time"

	"github.com/poiesic/marginalia/core"
)

// Fuzzy matching defaults. The similarity thresholds were tuned by hand;
// treat them as policy, not guarantees.
const (
	DefaultFuzzyWindow             = 40
	DefaultSameDocumentSimilarity  = 0.85
	DefaultCrossDocumentSimilarity = 0.92
	DefaultMinOverlap              = 2
)

// FuzzyPolicy controls when a different query may reuse a cached entry.
type FuzzyPolicy struct {
	SameDocument  float64
	CrossDocument float64
	MinOverlap    int
}

// DefaultFuzzyPolicy returns the default thresholds.
func DefaultFuzzyPolicy() FuzzyPolicy {
	return FuzzyPolicy{
		SameDocument:  DefaultSameDocumentSimilarity,
		CrossDocument: DefaultCrossDocumentSimilarity,
		MinOverlap:    DefaultMinOverlap,
	}
}

// Similarity returns the Jaccard similarity of the meaningful word stems of
// a and b, and how many stems they share.
func Similarity(a, b string) (float64, int) {
	wa, wb := core.WordSet(a), core.WordSet(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0, 0
	}
	shared := 0
	for w := range wa {
		if wb[w] {
			shared++
		}
	}
	union := len(wa) + len(wb) - shared
	return float64(shared) / float64(union), shared
}

// MatchFuzzy picks the entry best matching q among candidates. Entries on
// the query's document are considered before the rest; within a group the
// highest similarity wins. Entries for other users, for the same hash, or
// older than ttl are ignored.
func MatchFuzzy(q core.Query, hash string, candidates []core.CacheEntryInfo, policy FuzzyPolicy, now time.Time, ttl time.Duration) (core.CacheEntryInfo, float64, bool) {
	type scored struct {
		info core.CacheEntryInfo
		sim  float64
	}
	var bestSame, bestCross *scored
	normalized := q.Normalized
	if normalized == "" {
		normalized = core.NormalizeText(q.Text)
	}

	for _, c := range candidates {
		if c.UserID != q.Context.UserID || c.QueryHash == hash || expired(c.CreatedAt, now, ttl) {
			continue
		}
		sim, shared := Similarity(normalized, c.NormalizedQuery)
		if shared < policy.MinOverlap {
			continue
		}
		if c.DocumentID == q.Context.DocumentID {
			if sim >= policy.SameDocument && (bestSame == nil || sim > bestSame.sim) {
				bestSame = &scored{c, sim}
			}
			continue
		}
		if sim >= policy.CrossDocument && (bestCross == nil || sim > bestCross.sim) {
			bestCross = &scored{c, sim}
		}
	}

	switch {
	case bestSame != nil:
		return bestSame.info, bestSame.sim, true
	case bestCross != nil:
		return bestCross.info, bestCross.sim, true
	}
	return core.CacheEntryInfo{}, 0, false
}

func expired(createdAt, now time.Time, ttl time.Duration) bool {
	return ttl > 0 && now.Sub(createdAt) > ttl
}
