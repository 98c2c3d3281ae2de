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

package concept

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/poiesic/marginalia/ai"
	"github.com/poiesic/marginalia/core"
	"github.com/poiesic/marginalia/storage"
	"golang.org/x/sync/errgroup"
)

// Indexer defaults.
const (
	DefaultConcurrency  = 4
	DefaultPrefixLength = 3000

	// DefaultExtractionAttempts is how many completions a document gets
	// before the heuristic takes over.
	DefaultExtractionAttempts = 3
	// DefaultExtractionTimeout bounds a single extraction completion.
	DefaultExtractionTimeout = 30 * time.Second
)

// snapshot is an immutable concept index. It is never modified after being published.
type snapshot struct {
	concepts  map[string][]core.ID
	multiWord []string
	documents int
	builtAt   time.Time
}

var emptySnapshot = &snapshot{concepts: map[string][]core.ID{}}

// Stats describes the current index.
type Stats struct {
	Concepts  int
	Documents int
	BuiltAt   time.Time
}

// BuildStats describes one Build call.
type BuildStats struct {
	Documents int
	Concepts  int
	// Heuristic counts documents whose concepts came from the fallback.
	Heuristic int
	Elapsed   time.Duration
}

// Indexer owns the concept index.
type Indexer struct {
	library     storage.LibraryReader
	completer   ai.Completer
	concurrency int
	prefixLen   int
	attempts    int
	timeout     time.Duration
	logger      *slog.Logger

	current atomic.Pointer[snapshot]
	buildMu sync.Mutex
}

// Option configures an Indexer.
type Option func(*Indexer) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(ix *Indexer) error {
		if logger == nil {
			logger = slog.Default()
		}
		ix.logger = logger.With("component", "concept-indexer")
		return nil
	}
}

// WithConcurrency bounds how many documents are analyzed at once.
// Default is 4.
func WithConcurrency(n int) Option {
	return func(ix *Indexer) error {
		if n <= 0 {
			return fmt.Errorf("concurrency must be positive, got %d", n)
		}
		ix.concurrency = n
		return nil
	}
}

// WithPrefixLength sets how much of each document's text is sent for analysis.
// Default is 3000 bytes.
func WithPrefixLength(n int) Option {
	return func(ix *Indexer) error {
		if n <= 0 {
			return fmt.Errorf("prefix length must be positive, got %d", n)
		}
		ix.prefixLen = n
		return nil
	}
}

// WithExtractionAttempts sets how many completions are tried per document
// when the model fails or returns output that cannot be parsed. Default is 3.
func WithExtractionAttempts(n int) Option {
	return func(ix *Indexer) error {
		if n <= 0 {
			return fmt.Errorf("extraction attempts must be positive, got %d", n)
		}
		ix.attempts = n
		return nil
	}
}

// WithExtractionTimeout bounds each extraction completion. Default is 30s.
func WithExtractionTimeout(d time.Duration) Option {
	return func(ix *Indexer) error {
		if d <= 0 {
			return fmt.Errorf("extraction timeout must be positive, got %s", d)
		}
		ix.timeout = d
		return nil
	}
}

// NewIndexer creates an indexer with an empty index. A nil completer
// restricts extraction to the heuristic.
func NewIndexer(library storage.LibraryReader, completer ai.Completer, opts ...Option) (*Indexer, error) {
	if library == nil {
		return nil, ErrLibraryRequired
	}

	ix := &Indexer{
		library:     library,
		completer:   completer,
		concurrency: DefaultConcurrency,
		prefixLen:   DefaultPrefixLength,
		attempts:    DefaultExtractionAttempts,
		timeout:     DefaultExtractionTimeout,
		logger:      slog.Default().With("component", "concept-indexer"),
	}
	for _, opt := range opts {
		if err := opt(ix); err != nil {
			return nil, err
		}
	}
	ix.current.Store(emptySnapshot)
	return ix, nil
}

// Build analyzes every document in the library and swaps in a new index.
// Concurrent Build calls run one after another. On error the previous
// index stays in place.
func (ix *Indexer) Build(ctx context.Context) (BuildStats, error) {
	ix.buildMu.Lock()
	defer ix.buildMu.Unlock()

	start := time.Now()
	docs, err := ix.library.ListAllDocuments(ctx)
	if err != nil {
		return BuildStats{}, fmt.Errorf("listing documents: %w", err)
	}
	ix.logger.Info("building concept index", "documents", len(docs))

	type extraction struct {
		concepts  []string
		heuristic bool
	}
	results := make([]extraction, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.concurrency)
	for i, doc := range docs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			concepts, heuristic := ix.extract(gctx, doc)
			results[i] = extraction{concepts: concepts, heuristic: heuristic}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BuildStats{}, err
	}
	if err := ctx.Err(); err != nil {
		return BuildStats{}, err
	}

	snap := &snapshot{
		concepts:  make(map[string][]core.ID),
		documents: len(docs),
		builtAt:   time.Now(),
	}
	stats := BuildStats{Documents: len(docs)}
	for i, doc := range docs {
		if results[i].heuristic {
			stats.Heuristic++
		}
		for _, c := range results[i].concepts {
			snap.concepts[c] = append(snap.concepts[c], doc.ID)
		}
	}
	for c, ids := range snap.concepts {
		slices.Sort(ids)
		snap.concepts[c] = slices.Compact(ids)
		if strings.Contains(c, " ") {
			snap.multiWord = append(snap.multiWord, c)
		}
	}
	slices.Sort(snap.multiWord)

	ix.current.Store(snap)
	stats.Concepts = len(snap.concepts)
	stats.Elapsed = time.Since(start)
	ix.logger.Info("concept index built",
		"documents", stats.Documents, "concepts", stats.Concepts,
		"heuristic", stats.Heuristic, "elapsed", stats.Elapsed)
	return stats, nil
}

// extract returns a document's concepts and whether the heuristic produced them.
func (ix *Indexer) extract(ctx context.Context, doc *core.Document) ([]string, bool) {
	if ix.completer == nil {
		return Heuristic(doc, ix.prefixLen), true
	}

	prompt := extractionPrompt(doc, ix.prefixLen)
	var err error
	for attempt := 0; attempt < ix.attempts; attempt++ {
		var concepts []string
		concepts, err = ix.complete(ctx, prompt)
		if err == nil {
			return concepts, false
		}
		if ctx.Err() != nil {
			break
		}
		ix.logger.Debug("concept extraction attempt failed", "document", doc.ID, "attempt", attempt+1, "err", err)
	}
	ix.logger.Warn("concept extraction failed, using heuristic", "document", doc.ID, "err", err)
	return Heuristic(doc, ix.prefixLen), true
}

func (ix *Indexer) complete(ctx context.Context, prompt string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, ix.timeout)
	defer cancel()
	out, err := ix.completer.Complete(ctx, prompt, ai.Classification)
	if err != nil {
		return nil, err
	}
	return ParseConcepts(out)
}

// Lookup returns the sorted union of document IDs indexed under any of the
// given concepts. An empty result means no narrowing is available.
func (ix *Indexer) Lookup(concepts []string) []core.ID {
	snap := ix.current.Load()
	var ids []core.ID
	for _, c := range concepts {
		ids = append(ids, snap.concepts[strings.ToLower(strings.TrimSpace(c))]...)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

// Concepts returns the concepts indexed for a document, sorted.
func (ix *Indexer) Concepts(id core.ID) []string {
	snap := ix.current.Load()
	var out []string
	for c, ids := range snap.concepts {
		if _, found := slices.BinarySearch(ids, id); found {
			out = append(out, c)
		}
	}
	slices.Sort(out)
	return out
}

// ExpandQuery turns query text into lookup terms: its meaningful words,
// naive singular and plural variants, adjacent-word bigrams, and any indexed
// multi-word concept the query contains.
func (ix *Indexer) ExpandQuery(text string) []string {
	words := core.MeaningfulWords(text)
	seen := make(map[string]bool)
	var out []string
	add := func(term string) {
		if term != "" && !seen[term] {
			seen[term] = true
			out = append(out, term)
		}
	}

	for _, w := range words {
		add(w)
		if stem := core.Stem(w); stem != w {
			add(stem)
		} else if len(w) > 2 && !strings.HasSuffix(w, "s") {
			add(w + "s")
		}
	}
	for i := 0; i+1 < len(words); i++ {
		add(words[i] + " " + words[i+1])
	}

	normalized := " " + strings.Join(core.Tokenize(text), " ") + " "
	for _, c := range ix.current.Load().multiWord {
		if strings.Contains(normalized, " "+c+" ") {
			add(c)
		}
	}
	return out
}

// Stats returns a summary of the current index.
func (ix *Indexer) Stats() Stats {
	snap := ix.current.Load()
	return Stats{Concepts: len(snap.concepts), Documents: snap.documents, BuiltAt: snap.builtAt}
}
