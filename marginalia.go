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

// Package marginalia answers questions about a reader's library. It wires
// storage, the concept index, hybrid search, the query cache, and answer
// synthesis behind one handle.
package marginalia

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/poiesic/marginalia/ai"
	"github.com/poiesic/marginalia/ai/openai"
	"github.com/poiesic/marginalia/cache"
	"github.com/poiesic/marginalia/concept"
	"github.com/poiesic/marginalia/config"
	"github.com/poiesic/marginalia/core"
	"github.com/poiesic/marginalia/rag"
	"github.com/poiesic/marginalia/reembed"
	"github.com/poiesic/marginalia/scoring"
	"github.com/poiesic/marginalia/search"
	"github.com/poiesic/marginalia/storage"
	"github.com/poiesic/marginalia/storage/badger"
	"github.com/poiesic/marginalia/storage/sqlite"
)

const (
	libraryDir    = "library"
	cacheDatabase = "cache.db"
)

// Database owns every component behind a marginalia data directory.
type Database struct {
	backend      *badger.Backend
	library      *badger.LibraryRepository
	fragments    *badger.FragmentRepository
	checkpoints  *badger.CheckpointRepository
	cacheRepo    storage.CacheRepository
	cache        *cache.QueryCache
	provider     ai.AIProvider
	ownsProvider bool
	indexer      *concept.Indexer
	engine       *search.Engine
	orchestrator *rag.Orchestrator
	reembed      reembed.Config
	logger       *slog.Logger
}

// Option configures a Database.
type Option func(*options) error

type options struct {
	aiConfig     *ai.Config
	provider     ai.AIProvider
	cacheBackend string
	inMemory     bool
	cacheEnabled bool
	llmScoring   bool
	logger       *slog.Logger
	cacheOpts    []cache.Option
	searchOpts   []search.Option
	conceptOpts  []concept.Option
	scoringOpts  []scoring.Option
	ragOpts      []rag.Option
	synthTimeout time.Duration
	reembed      reembed.Config
}

// WithAIConfig sets the configuration for the OpenAI-compatible provider.
// Ignored when WithProvider is used.
func WithAIConfig(cfg *ai.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return errors.New("ai config must not be nil")
		}
		o.aiConfig = cfg
		return nil
	}
}

// WithProvider supplies the AI provider. The caller keeps ownership and
// must close it after the Database.
func WithProvider(p ai.AIProvider) Option {
	return func(o *options) error {
		if p == nil {
			return errors.New("provider must not be nil")
		}
		o.provider = p
		return nil
	}
}

// WithCacheBackend selects where cache entries live: "badger" (default,
// alongside the library) or "sqlite" (a cache.db file in the directory).
func WithCacheBackend(name string) Option {
	return func(o *options) error {
		switch name {
		case config.CacheBackendBadger, config.CacheBackendSQLite:
			o.cacheBackend = name
			return nil
		}
		return fmt.Errorf("unknown cache backend %q", name)
	}
}

// WithInMemory keeps all data in memory. The directory argument to Open is ignored.
func WithInMemory() Option {
	return func(o *options) error {
		o.inMemory = true
		return nil
	}
}

// WithoutCache disables the query cache.
func WithoutCache() Option {
	return func(o *options) error {
		o.cacheEnabled = false
		return nil
	}
}

// WithLLMScoring adds the completer to the relevance scoring chain.
func WithLLMScoring() Option {
	return func(o *options) error {
		o.llmScoring = true
		return nil
	}
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		o.logger = logger
		return nil
	}
}

// WithCacheOptions passes options through to the query cache.
func WithCacheOptions(opts ...cache.Option) Option {
	return func(o *options) error {
		o.cacheOpts = append(o.cacheOpts, opts...)
		return nil
	}
}

// WithSearchOptions passes options through to the search engine.
func WithSearchOptions(opts ...search.Option) Option {
	return func(o *options) error {
		o.searchOpts = append(o.searchOpts, opts...)
		return nil
	}
}

// WithRAGOptions passes options through to the orchestrator.
func WithRAGOptions(opts ...rag.Option) Option {
	return func(o *options) error {
		o.ragOpts = append(o.ragOpts, opts...)
		return nil
	}
}

// WithReembedConfig replaces the settings used by Reembed.
func WithReembedConfig(cfg reembed.Config) Option {
	return func(o *options) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		o.reembed = cfg
		return nil
	}
}

// WithConfig applies a loaded configuration file.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return errors.New("config must not be nil")
		}
		o.aiConfig = cfg.AIConfig()
		o.cacheBackend = cfg.Storage.CacheBackend
		o.cacheEnabled = cfg.Cache.Enabled
		o.llmScoring = cfg.Search.LLMScoring
		o.cacheOpts = append(o.cacheOpts,
			cache.WithMaxEntries(cfg.Cache.MaxEntries),
			cache.WithTTL(cfg.Cache.TTL),
			cache.WithSweepInterval(cfg.Cache.SweepInterval),
			cache.WithFuzzyWindow(cfg.Cache.FuzzyWindow),
			cache.WithFuzzyPolicy(cache.FuzzyPolicy{
				SameDocument:  cfg.Cache.SameDocumentSimilarity,
				CrossDocument: cfg.Cache.CrossDocumentSimilarity,
				MinOverlap:    cache.DefaultMinOverlap,
			}),
		)
		o.searchOpts = append(o.searchOpts,
			search.WithFragmentSize(cfg.Search.FragmentSize),
			search.WithPoolSize(cfg.Search.PoolSize),
			search.WithChunkSize(cfg.Search.ChunkSize),
			search.WithEarlyStop(cfg.Search.EarlyStop),
			search.WithCurrentBoost(cfg.Search.CurrentBoost),
		)
		if cfg.AI.EmbeddingBatchSize > 0 {
			o.searchOpts = append(o.searchOpts, search.WithEmbeddingBatchSize(cfg.AI.EmbeddingBatchSize))
		}
		if cfg.Search.ConceptConcurrency > 0 {
			o.conceptOpts = append(o.conceptOpts, concept.WithConcurrency(cfg.Search.ConceptConcurrency))
		}
		if cfg.Search.EmbeddingTimeout > 0 {
			o.searchOpts = append(o.searchOpts, search.WithEmbeddingTimeout(cfg.Search.EmbeddingTimeout))
		}
		if cfg.Search.ScoringTimeout > 0 {
			o.scoringOpts = append(o.scoringOpts, scoring.WithLLMTimeout(cfg.Search.ScoringTimeout))
		}
		if cfg.Search.ExtractionTimeout > 0 {
			o.conceptOpts = append(o.conceptOpts, concept.WithExtractionTimeout(cfg.Search.ExtractionTimeout))
		}
		if cfg.Search.ExtractionAttempts > 0 {
			o.conceptOpts = append(o.conceptOpts, concept.WithExtractionAttempts(cfg.Search.ExtractionAttempts))
		}
		o.ragOpts = append(o.ragOpts, rag.WithSynthesisThreshold(cfg.RAG.SynthesisThreshold))
		o.synthTimeout = cfg.RAG.SynthesisTimeout
		o.reembed.FragmentSize = cfg.Search.FragmentSize
		o.reembed.EmbeddingBatchSize = cfg.AI.EmbeddingBatchSize
		return nil
	}
}

// Open opens or creates a marginalia data directory.
func Open(dir string, opts ...Option) (*Database, error) {
	o := &options{
		cacheBackend: config.CacheBackendBadger,
		cacheEnabled: true,
		reembed:      *reembed.DefaultConfig(),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	db := &Database{
		reembed: o.reembed,
		logger:  logger.With("component", "marginalia"),
	}
	if err := db.open(dir, o, logger); err != nil {
		if cerr := db.Close(); cerr != nil {
			db.logger.Error("cleanup after failed open", "err", cerr)
		}
		return nil, err
	}
	return db, nil
}

func (db *Database) open(dir string, o *options, logger *slog.Logger) error {
	libraryPath := ""
	if !o.inMemory {
		if dir == "" {
			return errors.New("data directory required")
		}
		libraryPath = filepath.Join(dir, libraryDir)
		if err := os.MkdirAll(libraryPath, 0o755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	backend, err := badger.OpenBackend(libraryPath, o.inMemory)
	if err != nil {
		return err
	}
	db.backend = backend
	db.library = badger.NewLibraryRepository(backend)
	db.fragments = badger.NewFragmentRepository(backend)
	db.checkpoints = badger.NewCheckpointRepository(backend)

	if o.provider != nil {
		db.provider = o.provider
	} else {
		aiConfig := o.aiConfig
		if aiConfig == nil {
			aiConfig = ai.DefaultConfig()
		}
		provider, err := openai.NewProvider(aiConfig)
		if err != nil {
			return err
		}
		db.provider = provider
		db.ownsProvider = true
	}

	ragOpts := []rag.Option{rag.WithLogger(logger)}
	if o.cacheEnabled {
		if err := db.openCache(dir, o, logger); err != nil {
			return err
		}
		ragOpts = append(ragOpts, rag.WithCache(db.cache))
	}

	indexer, err := concept.NewIndexer(db.library, db.provider.Completer(),
		append([]concept.Option{concept.WithLogger(logger)}, o.conceptOpts...)...)
	if err != nil {
		return err
	}
	db.indexer = indexer

	scorerOpts := append([]scoring.Option{scoring.WithLogger(logger)}, o.scoringOpts...)
	if o.llmScoring {
		scorerOpts = append(scorerOpts, scoring.WithCompleter(db.provider.Completer()))
	}
	scorer, err := scoring.NewScorer(scorerOpts...)
	if err != nil {
		return err
	}

	searchOpts := append([]search.Option{
		search.WithLogger(logger),
		search.WithFragmentRepository(db.fragments),
		search.WithConceptIndex(indexer),
		search.WithScorer(scorer),
	}, o.searchOpts...)
	engine, err := search.NewEngine(db.library, db.provider.Embedder(), searchOpts...)
	if err != nil {
		return err
	}
	db.engine = engine

	synthTimeout := rag.DefaultSynthesisTimeout
	if o.synthTimeout > 0 {
		synthTimeout = o.synthTimeout
	}
	ragOpts = append(ragOpts, rag.WithSynthesizer(rag.NewSynthesizer(db.provider.Completer(), synthTimeout)))
	ragOpts = append(ragOpts, o.ragOpts...)
	orchestrator, err := rag.NewOrchestrator(engine, ragOpts...)
	if err != nil {
		return err
	}
	db.orchestrator = orchestrator
	return nil
}

func (db *Database) openCache(dir string, o *options, logger *slog.Logger) error {
	switch o.cacheBackend {
	case config.CacheBackendSQLite:
		path := sqlite.MemoryPath
		if !o.inMemory {
			path = filepath.Join(dir, cacheDatabase)
		}
		repo, err := sqlite.OpenCacheRepository(path)
		if err != nil {
			return err
		}
		db.cacheRepo = repo
	default:
		db.cacheRepo = badger.NewCacheRepository(db.backend)
	}

	qc, err := cache.Open(db.cacheRepo, append([]cache.Option{cache.WithLogger(logger)}, o.cacheOpts...)...)
	if err != nil {
		return err
	}
	db.cache = qc
	return nil
}

// Close releases every component. Safe to call on a partially opened Database.
func (db *Database) Close() error {
	var errs []error
	if db.engine != nil {
		errs = append(errs, db.engine.Close())
	}
	if db.cache != nil {
		errs = append(errs, db.cache.Close())
	}
	if db.cacheRepo != nil {
		errs = append(errs, db.cacheRepo.Close())
	}
	if db.provider != nil && db.ownsProvider {
		errs = append(errs, db.provider.Close())
	}
	if db.backend != nil {
		errs = append(errs, db.backend.Close())
	}
	err := errors.Join(errs...)
	if err != nil {
		db.logger.Error("error closing database", "err", err)
	}
	return err
}

// Library returns the writable document store for the surrounding application.
func (db *Database) Library() storage.LibraryRepository {
	return db.library
}

// Cache returns the query cache, or nil when caching is disabled.
func (db *Database) Cache() *cache.QueryCache {
	return db.cache
}

// Concepts returns the concept index.
func (db *Database) Concepts() *concept.Indexer {
	return db.indexer
}

// Ask answers a question. It always returns a response.
func (db *Database) Ask(ctx context.Context, text string, qc core.QueryContext, params core.SearchParams) *core.RAGResponse {
	return db.orchestrator.ProcessQuery(ctx, text, qc, params)
}

// Search runs a search without synthesis or caching.
func (db *Database) Search(ctx context.Context, text string, qc core.QueryContext, params core.SearchParams) ([]core.ScoredResult, error) {
	q := core.NewQuery(text, qc, params)
	if err := core.ValidateQuery(&q); err != nil {
		return nil, err
	}
	return db.engine.Search(ctx, q)
}

// RebuildConceptIndex re-extracts concepts for every document.
func (db *Database) RebuildConceptIndex(ctx context.Context) (concept.BuildStats, error) {
	return db.indexer.Build(ctx)
}

// DocumentChanged drops state derived from a document after the
// application edits or deletes it: cached answers for the owner's queries
// about that document, and its precomputed fragments.
func (db *Database) DocumentChanged(ctx context.Context, userID string, documentID core.ID) error {
	if documentID == 0 {
		return errors.New("document id required")
	}
	var errs []error
	if db.cache != nil {
		n, err := db.cache.InvalidateContext(ctx, userID, documentID)
		if err != nil {
			errs = append(errs, err)
		} else if n > 0 {
			db.logger.Debug("invalidated cached queries", "document", documentID, "count", n)
		}
	}
	if err := db.fragments.DeleteFragments(ctx, documentID); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Reembed precomputes embedded fragments for every document. Progress
// lines are written to progress when it is non-nil.
func (db *Database) Reembed(ctx context.Context, force bool, progress io.Writer) (reembed.Stats, error) {
	cfg := db.reembed
	cfg.Force = force
	r, err := reembed.NewReembedder(db.library, db.fragments, db.checkpoints, db.provider.Embedder(), &cfg, progress)
	if err != nil {
		return reembed.Stats{}, err
	}
	return r.Run(ctx)
}
