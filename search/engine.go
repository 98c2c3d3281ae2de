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

package search

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/marginalia/ai"
	"github.com/poiesic/marginalia/core"
	"github.com/poiesic/marginalia/scoring"
	"github.com/poiesic/marginalia/storage"
)

// Engine defaults.
const (
	DefaultChunkSize          = 3
	DefaultEarlyStop          = 10
	DefaultCurrentBoost       = 1.2
	DefaultPoolSize           = 8
	DefaultEmbeddingBatchSize = 32

	// DefaultEmbeddingTimeout bounds a single embedding call. A timed-out
	// query embedding drops the search to lexical scoring.
	DefaultEmbeddingTimeout = 30 * time.Second

	// CurrentDocumentThreshold caps the retention threshold for the current document.
	CurrentDocumentThreshold = 0.4
	// SingleDocumentThreshold caps the retention threshold in single-document scope.
	SingleDocumentThreshold = 0.3
)

// ConceptLookup narrows candidate documents by concept.
type ConceptLookup interface {
	ExpandQuery(text string) []string
	Lookup(concepts []string) []core.ID
}

// Engine runs hybrid searches over a user's library.
type Engine struct {
	library   storage.LibraryReader
	fragments storage.FragmentRepository
	embedder  ai.Embedder
	concepts  ConceptLookup
	scorer    *scoring.Scorer
	splitter  *Splitter
	pool      *ants.Pool

	poolSize     int
	chunkSize    int
	earlyStop    int
	boost        float64
	embedBatch   int
	embedTimeout time.Duration
	logger       *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger.With("component", "search")
		return nil
	}
}

// WithFragmentRepository reads precomputed fragments and stores freshly
// embedded ones.
func WithFragmentRepository(repo storage.FragmentRepository) Option {
	return func(e *Engine) error {
		e.fragments = repo
		return nil
	}
}

// WithConceptIndex enables candidate narrowing.
func WithConceptIndex(concepts ConceptLookup) Option {
	return func(e *Engine) error {
		e.concepts = concepts
		return nil
	}
}

// WithScorer replaces the default scorer.
func WithScorer(scorer *scoring.Scorer) Option {
	return func(e *Engine) error {
		if scorer == nil {
			return fmt.Errorf("%w: scorer must not be nil", ErrInvalidOption)
		}
		e.scorer = scorer
		return nil
	}
}

// WithFragmentSize sets the target fragment length. Default is 500.
func WithFragmentSize(size int) Option {
	return func(e *Engine) error {
		if size <= 0 {
			return fmt.Errorf("%w: fragment size must be positive, got %d", ErrInvalidOption, size)
		}
		e.splitter = NewSplitter(size)
		return nil
	}
}

// WithPoolSize sets how many documents are scored concurrently. Default is 8.
func WithPoolSize(n int) Option {
	return func(e *Engine) error {
		if n <= 0 {
			return fmt.Errorf("%w: pool size must be positive, got %d", ErrInvalidOption, n)
		}
		e.poolSize = n
		return nil
	}
}

// WithChunkSize sets how many other documents are scored per round. Default is 3.
func WithChunkSize(n int) Option {
	return func(e *Engine) error {
		if n <= 0 {
			return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidOption, n)
		}
		e.chunkSize = n
		return nil
	}
}

// WithEarlyStop sets how many retained other-document results end the scan.
// Default is 10. The effective value is never below the query's limit.
func WithEarlyStop(n int) Option {
	return func(e *Engine) error {
		if n <= 0 {
			return fmt.Errorf("%w: early stop must be positive, got %d", ErrInvalidOption, n)
		}
		e.earlyStop = n
		return nil
	}
}

// WithCurrentBoost sets the factor applied to current-document contextual
// relevance. Default is 1.2.
func WithCurrentBoost(boost float64) Option {
	return func(e *Engine) error {
		if boost < 1 {
			return fmt.Errorf("%w: boost must be at least 1, got %v", ErrInvalidOption, boost)
		}
		e.boost = boost
		return nil
	}
}

// WithEmbeddingBatchSize sets how many fragments are embedded per call. Default is 32.
func WithEmbeddingBatchSize(n int) Option {
	return func(e *Engine) error {
		if n <= 0 {
			return fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidOption, n)
		}
		e.embedBatch = n
		return nil
	}
}

// WithEmbeddingTimeout bounds each embedding call. Default is 30s.
func WithEmbeddingTimeout(d time.Duration) Option {
	return func(e *Engine) error {
		if d <= 0 {
			return fmt.Errorf("%w: embedding timeout must be positive, got %s", ErrInvalidOption, d)
		}
		e.embedTimeout = d
		return nil
	}
}

// NewEngine creates a search engine. Call Close to release its worker pool.
func NewEngine(library storage.LibraryReader, embedder ai.Embedder, opts ...Option) (*Engine, error) {
	if library == nil {
		return nil, ErrLibraryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	e := &Engine{
		library:      library,
		embedder:     embedder,
		splitter:     NewSplitter(DefaultFragmentSize),
		poolSize:     DefaultPoolSize,
		chunkSize:    DefaultChunkSize,
		earlyStop:    DefaultEarlyStop,
		boost:        DefaultCurrentBoost,
		embedBatch:   DefaultEmbeddingBatchSize,
		embedTimeout: DefaultEmbeddingTimeout,
		logger:       slog.Default().With("component", "search"),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	if e.scorer == nil {
		scorer, err := scoring.NewScorer(scoring.WithLogger(e.logger))
		if err != nil {
			return nil, err
		}
		e.scorer = scorer
	}

	pool, err := ants.NewPool(e.poolSize, ants.WithPanicHandler(func(p any) {
		e.logger.Error("search task panicked", "panic", p)
	}))
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}
	e.pool = pool
	return e, nil
}

// Close releases the worker pool.
func (e *Engine) Close() error {
	e.pool.Release()
	return nil
}

// Search returns ranked results for q.
func (e *Engine) Search(ctx context.Context, q core.Query) ([]core.ScoredResult, error) {
	return e.SearchWithMonitor(ctx, q, nil)
}

// queryState is computed once per search and shared read-only by every task.
type queryState struct {
	query     core.Query
	terms     []string
	context   []string
	embedding []float32
}

// task scores one unit of work. Each task owns its result slice.
type task struct {
	documentID core.ID
	section    string
	threshold  float64
	load       func(ctx context.Context) []core.ContentFragment
	results    []core.ScoredResult
}

// SearchWithMonitor searches with monitoring.
// The monitor receives callbacks at each stage of the search process.
func (e *Engine) SearchWithMonitor(ctx context.Context, q core.Query, monitor SearchMonitor) ([]core.ScoredResult, error) {
	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	q.Params = q.Params.Normalize()
	if err := core.ValidateQuery(&q); err != nil {
		return nil, err
	}
	monitor.Start(q)

	qs := &queryState{query: q, terms: core.MeaningfulWords(q.Text)}
	qs.context = qs.terms
	if e.concepts != nil {
		qs.context = e.concepts.ExpandQuery(q.Text)
	}

	// 1. Embed the query once
	if !q.Params.DisableEmbeddings {
		embedding, err := e.embedQuery(ctx, q.Text)
		if err != nil {
			e.logger.Warn("query embedding failed, scoring lexically", "err", err)
		} else {
			qs.embedding = embedding
		}
		monitor.AfterQueryEmbedding(err)
	}

	// 2. Partition candidates
	current, err := e.currentDocument(ctx, q.Context)
	if err != nil {
		return nil, err
	}

	threshold := q.Params.RelevanceThreshold
	currentThreshold := min(threshold, CurrentDocumentThreshold)
	if q.Params.SingleDocument {
		currentThreshold = min(threshold, SingleDocumentThreshold)
	}

	currentTasks, auxTask, err := e.auxiliaryTasks(ctx, qs, currentThreshold, threshold)
	if err != nil {
		return nil, err
	}
	if current != nil && q.Params.Includes(core.SourceDocument) {
		currentTasks = append([]*task{e.documentTask(qs, current, core.SectionCurrent, currentThreshold)}, currentTasks...)
	}

	// 3. The current document is scored in full before anything else
	e.runTasks(ctx, qs, currentTasks)
	var currentResults []core.ScoredResult
	for _, t := range currentTasks {
		currentResults = append(currentResults, t.results...)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	monitor.AfterCurrentDocument(currentResults)

	// 4. Other documents in chunks, with an early stop
	var otherResults []core.ScoredResult
	if !q.Params.SingleDocument {
		others, err := e.otherDocuments(ctx, qs, current, monitor)
		if err != nil {
			return nil, err
		}
		otherResults, err = e.scoreOthers(ctx, qs, others, auxTask, threshold, monitor)
		if err != nil {
			return nil, err
		}
	}

	// 5. Boost after the threshold decision
	for i := range currentResults {
		r := &currentResults[i]
		r.ContextualRelevance = min(r.ContextualRelevance*e.boost, 1)
		r.Metadata[core.MetaBoosted] = "true"
	}

	// 6. Merge, rank, truncate
	results := merge(currentResults, otherResults, q.Params.Limit)
	monitor.Finish(results)

	e.logger.Debug("search complete",
		"current", len(currentResults), "other", len(otherResults), "returned", len(results),
		"embeddings", qs.embedding != nil)
	return results, nil
}

func (e *Engine) embedQuery(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.embedTimeout)
	defer cancel()
	return e.embedder.EmbedText(ctx, text)
}

// currentDocument loads the context document. A missing document, or one
// owned by another user, is treated as absent.
func (e *Engine) currentDocument(ctx context.Context, qc core.QueryContext) (*core.Document, error) {
	if !qc.HasDocument() {
		return nil, nil
	}
	doc, err := e.library.GetDocument(ctx, qc.DocumentID)
	if errors.Is(err, storage.ErrNotFound) {
		e.logger.Debug("current document not found", "document", qc.DocumentID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading current document: %w", err)
	}
	if doc.UserID != qc.UserID {
		return nil, nil
	}
	return doc, nil
}

// otherDocuments lists the user's documents except the current one,
// narrowed by the concept index when it matches any of them.
func (e *Engine) otherDocuments(ctx context.Context, qs *queryState, current *core.Document, monitor SearchMonitor) ([]*core.Document, error) {
	if !qs.query.Params.Includes(core.SourceDocument) {
		return nil, nil
	}
	docs, err := e.library.ListDocuments(ctx, qs.query.Context.UserID)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	docs = slices.DeleteFunc(docs, func(d *core.Document) bool {
		return current != nil && d.ID == current.ID
	})

	if e.concepts == nil || len(docs) == 0 {
		return docs, nil
	}

	candidates := e.concepts.Lookup(qs.context)
	narrowed := docs
	if len(candidates) > 0 {
		narrowed = slices.DeleteFunc(slices.Clone(docs), func(d *core.Document) bool {
			_, found := slices.BinarySearch(candidates, d.ID)
			return !found
		})
	}
	if len(narrowed) == 0 {
		// No concept matches among this user's documents; search everything.
		monitor.AfterConceptNarrowing(qs.context, candidates, false)
		return docs, nil
	}
	monitor.AfterConceptNarrowing(qs.context, candidates, len(narrowed) < len(docs))
	return narrowed, nil
}

func (e *Engine) scoreOthers(ctx context.Context, qs *queryState, others []*core.Document, aux *task, threshold float64, monitor SearchMonitor) ([]core.ScoredResult, error) {
	var results []core.ScoredResult
	earlyStop := max(e.earlyStop, qs.query.Params.Limit)

	pending := aux
	for start := 0; start < len(others) || pending != nil; start += e.chunkSize {
		end := min(start+e.chunkSize, len(others))
		chunk := others[min(start, end):end]

		tasks := make([]*task, 0, len(chunk)+1)
		ids := make([]core.ID, 0, len(chunk))
		for _, doc := range chunk {
			tasks = append(tasks, e.documentTask(qs, doc, core.SectionOther, threshold))
			ids = append(ids, doc.ID)
		}
		if pending != nil {
			tasks = append(tasks, pending)
			pending = nil
		}

		e.runTasks(ctx, qs, tasks)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		retained := 0
		for _, t := range tasks {
			results = append(results, t.results...)
			retained += len(t.results)
		}
		monitor.AfterChunk(ids, retained)

		if len(results) >= earlyStop && end < len(others) {
			monitor.EarlyStop(len(results), len(others)-end)
			e.logger.Debug("stopping early", "retained", len(results), "skipped", len(others)-end)
			break
		}
	}
	return results, nil
}

// runTasks scores every task on the pool and waits for all of them.
func (e *Engine) runTasks(ctx context.Context, qs *queryState, tasks []*task) {
	var wg sync.WaitGroup
	for _, t := range tasks {
		wg.Add(1)
		run := func() {
			defer wg.Done()
			t.results = e.score(ctx, qs, t)
		}
		if err := e.pool.Submit(run); err != nil {
			// Pool closed or overloaded; do the work inline.
			run()
		}
	}
	wg.Wait()
}

func (e *Engine) score(ctx context.Context, qs *queryState, t *task) []core.ScoredResult {
	frags := t.load(ctx)
	var out []core.ScoredResult
	for _, f := range frags {
		if ctx.Err() != nil {
			return out
		}
		res := e.scorer.Score(ctx, &scoring.Request{
			Query:           qs.query.Text,
			QueryTerms:      qs.terms,
			QueryEmbedding:  qs.embedding,
			Fragment:        f,
			SemanticContext: qs.context,
		})
		if !scoring.Retain(res, t.threshold) {
			continue
		}
		f.Embedding = nil
		out = append(out, core.ScoredResult{
			Fragment:            f,
			SemanticSimilarity:  res.SemanticSimilarity,
			ContextualRelevance: res.ContextualRelevance,
			Score:               res.Score,
			Snippets:            res.Snippets,
			Metadata: map[string]string{
				core.MetaSection:  t.section,
				core.MetaBoosted:  "false",
				core.MetaStrategy: res.Strategy,
			},
		})
	}
	return out
}

// merge ranks both sections together and truncates to limit. If the current
// section produced results and none survive truncation, the best current
// result takes the last slot.
func merge(current, others []core.ScoredResult, limit int) []core.ScoredResult {
	all := make([]core.ScoredResult, 0, len(current)+len(others))
	all = append(all, current...)
	all = append(all, others...)
	slices.SortFunc(all, rank)

	if len(all) <= limit {
		return all
	}
	results := all[:limit:limit]

	if len(current) == 0 || slices.ContainsFunc(results, isCurrent) {
		return results
	}
	best := all[slices.IndexFunc(all, isCurrent)]
	results[limit-1] = best
	return results
}

func isCurrent(r core.ScoredResult) bool {
	return r.Section() == core.SectionCurrent
}

// rank orders by contextual relevance, then boosted first, then combined score.
// Source and fragment index make the order deterministic.
func rank(a, b core.ScoredResult) int {
	if c := cmp.Compare(b.ContextualRelevance, a.ContextualRelevance); c != 0 {
		return c
	}
	if a.Boosted() != b.Boosted() {
		if a.Boosted() {
			return -1
		}
		return 1
	}
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Fragment.Source.Type, b.Fragment.Source.Type); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Fragment.Source.ID, b.Fragment.Source.ID); c != 0 {
		return c
	}
	return cmp.Compare(a.Fragment.Index, b.Fragment.Index)
}
