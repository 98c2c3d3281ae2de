package cache

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/poiesic/marginalia/core"
)

// EvictFraction is the share of entries evicted when the cache is full.
const EvictFraction = 0.2

// CompactionPlan lists the hashes to delete and why.
type CompactionPlan struct {
	Expired []string
	Evicted []string
}

// Hashes returns every hash in the plan.
func (p CompactionPlan) Hashes() []string {
	return append(slices.Clone(p.Expired), p.Evicted...)
}

// Empty reports whether the plan deletes nothing.
func (p CompactionPlan) Empty() bool {
	return len(p.Expired) == 0 && len(p.Evicted) == 0
}

// PlanCompaction decides which entries to delete. Entries created more than
// ttl before now expire. If the survivors still number maxEntries or more,
// the least recently accessed are evicted: 20% of them, or enough to leave
// room for one insert, whichever is larger. A non-positive ttl or maxEntries
// disables that rule.
func PlanCompaction(entries []core.CacheEntryInfo, now time.Time, maxEntries int, ttl time.Duration) CompactionPlan {
	var plan CompactionPlan
	live := make([]core.CacheEntryInfo, 0, len(entries))
	for _, e := range entries {
		if expired(e.CreatedAt, now, ttl) {
			plan.Expired = append(plan.Expired, e.QueryHash)
			continue
		}
		live = append(live, e)
	}

	if maxEntries <= 0 || len(live) < maxEntries {
		return plan
	}

	n := int(math.Ceil(float64(len(live)) * EvictFraction))
	n = min(max(n, len(live)-maxEntries+1), len(live))

	slices.SortFunc(live, func(a, b core.CacheEntryInfo) int {
		if c := a.LastAccessedAt.Compare(b.LastAccessedAt); c != 0 {
			return c
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.QueryHash, b.QueryHash)
	})
	for _, e := range live[:n] {
		plan.Evicted = append(plan.Evicted, e.QueryHash)
	}
	return plan
}
