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

package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/marginalia/core"
	"github.com/poiesic/marginalia/storage"
)

// Cache defaults.
const (
	DefaultMaxEntries    = 1000
	DefaultTTL           = 24 * time.Hour
	DefaultSweepInterval = 10 * time.Minute

	// MaxStoredResults bounds how many results an entry keeps.
	MaxStoredResults = 10
)

// Hit is a successful cache lookup.
type Hit struct {
	Entry *core.CacheEntry
	// Source is core.ResultCache for exact matches and core.ResultFuzzy otherwise.
	Source core.ResultSource
	// Similarity is 1 for exact matches.
	Similarity float64
}

// Stats summarizes the cache contents.
type Stats struct {
	Entries       int
	TotalAccesses int64
	Oldest        time.Time
	Newest        time.Time
}

// CompactStats reports what a compaction removed.
type CompactStats struct {
	Expired   int
	Evicted   int
	Remaining int
}

// QueryCache is a persistent, bounded query result cache.
type QueryCache struct {
	repo          storage.CacheRepository
	maxEntries    int
	ttl           time.Duration
	sweepInterval time.Duration
	fuzzyWindow   int
	policy        FuzzyPolicy
	now           func() time.Time
	logger        *slog.Logger

	// storeMu serializes compaction with stores so the bound holds.
	storeMu sync.Mutex

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	closed    chan struct{}
}

// Option configures a QueryCache.
type Option func(*QueryCache) error

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *QueryCache) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger.With("component", "query-cache")
		return nil
	}
}

// WithMaxEntries sets the entry bound. Zero disables size eviction.
// Default is 1000.
func WithMaxEntries(n int) Option {
	return func(c *QueryCache) error {
		if n < 0 {
			return fmt.Errorf("max entries must not be negative, got %d", n)
		}
		c.maxEntries = n
		return nil
	}
}

// WithTTL sets how long entries live after creation. Zero disables expiry.
// Default is 24h.
func WithTTL(ttl time.Duration) Option {
	return func(c *QueryCache) error {
		if ttl < 0 {
			return fmt.Errorf("ttl must not be negative, got %s", ttl)
		}
		c.ttl = ttl
		return nil
	}
}

// WithSweepInterval sets how often the background sweeper runs.
// Zero disables the sweeper. Default is 10m.
func WithSweepInterval(d time.Duration) Option {
	return func(c *QueryCache) error {
		if d < 0 {
			return fmt.Errorf("sweep interval must not be negative, got %s", d)
		}
		c.sweepInterval = d
		return nil
	}
}

// WithFuzzyPolicy replaces the fuzzy matching thresholds.
func WithFuzzyPolicy(policy FuzzyPolicy) Option {
	return func(c *QueryCache) error {
		if policy.SameDocument <= 0 || policy.SameDocument > 1 || policy.CrossDocument <= 0 || policy.CrossDocument > 1 {
			return fmt.Errorf("fuzzy thresholds must be in (0,1], got %v/%v", policy.SameDocument, policy.CrossDocument)
		}
		c.policy = policy
		return nil
	}
}

// WithFuzzyWindow sets how many recent entries are scanned for fuzzy
// matches. Zero disables fuzzy matching. Default is 40.
func WithFuzzyWindow(n int) Option {
	return func(c *QueryCache) error {
		if n < 0 {
			return fmt.Errorf("fuzzy window must not be negative, got %d", n)
		}
		c.fuzzyWindow = n
		return nil
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *QueryCache) error {
		if now == nil {
			return errors.New("clock must not be nil")
		}
		c.now = now
		return nil
	}
}

// Open creates a QueryCache over repo and starts the sweeper.
// The caller owns repo and must close it after Close returns.
func Open(repo storage.CacheRepository, opts ...Option) (*QueryCache, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}

	c := &QueryCache{
		repo:          repo,
		maxEntries:    DefaultMaxEntries,
		ttl:           DefaultTTL,
		sweepInterval: DefaultSweepInterval,
		fuzzyWindow:   DefaultFuzzyWindow,
		policy:        DefaultFuzzyPolicy(),
		now:           time.Now,
		logger:        slog.Default().With("component", "query-cache"),
		closed:        make(chan struct{}),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	if c.sweepInterval > 0 {
		c.wg.Add(1)
		go c.sweep(ctx)
	}
	return c, nil
}

// Close stops the sweeper. It is safe to call more than once.
func (c *QueryCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.cancel()
		c.wg.Wait()
	})
	return nil
}

func (c *QueryCache) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Get looks q up. It returns nil, nil on a miss.
func (c *QueryCache) Get(ctx context.Context, q core.Query) (*Hit, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	if q.Normalized == "" {
		q.Normalized = core.NormalizeText(q.Text)
	}
	hash := QueryHash(q)
	now := c.now()

	entry, err := c.repo.GetEntry(ctx, hash)
	switch {
	case err == nil && entry.UserID != q.Context.UserID:
		// Entries are never shared across users, even on a key collision.
		c.logger.Warn("cache entry owned by another user", "hash", hash)
	case err == nil && !expired(entry.CreatedAt, now, c.ttl):
		c.touch(ctx, entry, now)
		return &Hit{Entry: entry, Source: core.ResultCache, Similarity: 1}, nil
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("%w: get: %w", core.ErrCacheStorage, err)
	}

	if c.fuzzyWindow == 0 {
		return nil, nil
	}
	recent, err := c.repo.RecentEntries(ctx, q.Context.UserID, c.fuzzyWindow)
	if err != nil {
		return nil, fmt.Errorf("%w: recent: %w", core.ErrCacheStorage, err)
	}
	match, sim, ok := MatchFuzzy(q, hash, recent, c.policy, now, c.ttl)
	if !ok {
		return nil, nil
	}

	entry, err = c.repo.GetEntry(ctx, match.QueryHash)
	if errors.Is(err, storage.ErrNotFound) {
		// Evicted between the scan and the read.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get: %w", core.ErrCacheStorage, err)
	}
	if entry.UserID != q.Context.UserID {
		return nil, nil
	}
	c.touch(ctx, entry, now)
	c.logger.Debug("fuzzy cache hit", "query", q.Normalized, "matched", entry.NormalizedQuery, "similarity", sim)
	return &Hit{Entry: entry, Source: core.ResultFuzzy, Similarity: sim}, nil
}

// touch records an access. Bookkeeping failures do not fail the lookup.
func (c *QueryCache) touch(ctx context.Context, entry *core.CacheEntry, now time.Time) {
	if err := c.repo.TouchEntry(ctx, entry.QueryHash, now); err != nil {
		c.logger.Warn("failed to record cache access", "hash", entry.QueryHash, "err", err)
		return
	}
	entry.AccessCount++
	if now.After(entry.LastAccessedAt) {
		entry.LastAccessedAt = now
	}
}

// Store persists the top results for q, replacing any entry with the same
// hash. results must already be ranked. Compaction runs first, so after
// Store returns the cache holds at most the configured maximum.
func (c *QueryCache) Store(ctx context.Context, q core.Query, results []core.ScoredResult, meta core.CacheMetadata) (*core.CacheEntry, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	if q.Normalized == "" {
		q.Normalized = core.NormalizeText(q.Text)
	}

	c.storeMu.Lock()
	defer c.storeMu.Unlock()

	if _, err := c.compact(ctx); err != nil {
		c.logger.Warn("compaction before store failed", "err", err)
	}

	kept := results
	if len(kept) > MaxStoredResults {
		kept = kept[:MaxStoredResults]
	}
	meta.Params = q.Params.Normalize()
	meta.TotalResults = len(results)
	meta.Truncated = len(results) > MaxStoredResults

	now := c.now()
	entry := &core.CacheEntry{
		ID:              uuid.NewString(),
		QueryHash:       QueryHash(q),
		QueryText:       q.Text,
		NormalizedQuery: q.Normalized,
		UserID:          q.Context.UserID,
		DocumentID:      q.Context.DocumentID,
		Chapter:         q.Context.Chapter,
		Results:         append([]core.ScoredResult(nil), kept...),
		Metadata:        meta,
		CreatedAt:       now,
		LastAccessedAt:  now,
	}
	if err := c.repo.PutEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("%w: put: %w", core.ErrCacheStorage, err)
	}
	return entry, nil
}

// Compact removes expired entries and, when the cache is full, evicts the
// least recently accessed ones.
func (c *QueryCache) Compact(ctx context.Context) (CompactStats, error) {
	if c.isClosed() {
		return CompactStats{}, ErrClosed
	}
	c.storeMu.Lock()
	defer c.storeMu.Unlock()
	return c.compact(ctx)
}

func (c *QueryCache) compact(ctx context.Context) (CompactStats, error) {
	infos, err := c.repo.ListEntryInfo(ctx)
	if err != nil {
		return CompactStats{}, fmt.Errorf("%w: list: %w", core.ErrCacheStorage, err)
	}
	plan := PlanCompaction(infos, c.now(), c.maxEntries, c.ttl)
	stats := CompactStats{
		Expired:   len(plan.Expired),
		Evicted:   len(plan.Evicted),
		Remaining: len(infos),
	}
	if plan.Empty() {
		return stats, nil
	}
	deleted, err := c.repo.DeleteEntries(ctx, plan.Hashes()...)
	if err != nil {
		return stats, fmt.Errorf("%w: delete: %w", core.ErrCacheStorage, err)
	}
	stats.Remaining = len(infos) - deleted
	c.logger.Debug("compacted cache", "expired", stats.Expired, "evicted", stats.Evicted, "remaining", stats.Remaining)
	return stats, nil
}

// InvalidateContext removes every entry created for userID on documentID.
// A zero documentID removes all of the user's entries.
func (c *QueryCache) InvalidateContext(ctx context.Context, userID string, documentID core.ID) (int, error) {
	if c.isClosed() {
		return 0, ErrClosed
	}
	if userID == "" {
		return 0, core.ErrEmptyUserID
	}
	infos, err := c.repo.ListEntryInfo(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: list: %w", core.ErrCacheStorage, err)
	}
	var hashes []string
	for _, info := range infos {
		if info.UserID != userID {
			continue
		}
		if documentID != 0 && info.DocumentID != documentID {
			continue
		}
		hashes = append(hashes, info.QueryHash)
	}
	if len(hashes) == 0 {
		return 0, nil
	}
	n, err := c.repo.DeleteEntries(ctx, hashes...)
	if err != nil {
		return 0, fmt.Errorf("%w: delete: %w", core.ErrCacheStorage, err)
	}
	c.logger.Info("invalidated cache entries", "user", userID, "document", documentID, "count", n)
	return n, nil
}

// Stats summarizes the stored entries.
func (c *QueryCache) Stats(ctx context.Context) (Stats, error) {
	infos, err := c.repo.ListEntryInfo(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: list: %w", core.ErrCacheStorage, err)
	}
	var s Stats
	s.Entries = len(infos)
	for _, info := range infos {
		s.TotalAccesses += info.AccessCount
		if s.Oldest.IsZero() || info.CreatedAt.Before(s.Oldest) {
			s.Oldest = info.CreatedAt
		}
		if info.CreatedAt.After(s.Newest) {
			s.Newest = info.CreatedAt
		}
	}
	return s, nil
}

func (c *QueryCache) sweep(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.storeMu.Lock()
			stats, err := c.compact(ctx)
			c.storeMu.Unlock()
			if err != nil {
				if ctx.Err() == nil {
					c.logger.Warn("cache sweep failed", "err", err)
				}
				continue
			}
			if stats.Expired+stats.Evicted > 0 {
				c.logger.Info("cache sweep", "expired", stats.Expired, "evicted", stats.Evicted)
			}
		}
	}
}
