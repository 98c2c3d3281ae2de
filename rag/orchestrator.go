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

package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/marginalia/ai"
	"github.com/poiesic/marginalia/cache"
	"github.com/poiesic/marginalia/core"
)

// Templated responses.
const (
	NoResultsAnswer = "I couldn't find anything in your reading that answers this question."
	MinimalAnswer   = "Sorry, I wasn't able to search your reading just now. Please try again in a moment."
)

// maxTransitions bounds a single run of the state machine.
const maxTransitions = 16

// Searcher finds scored fragments for a query.
type Searcher interface {
	Search(ctx context.Context, q core.Query) ([]core.ScoredResult, error)
}

// ResultCache stores and retrieves answered queries.
type ResultCache interface {
	Get(ctx context.Context, q core.Query) (*cache.Hit, error)
	Store(ctx context.Context, q core.Query, results []core.ScoredResult, meta core.CacheMetadata) (*core.CacheEntry, error)
}

// TransitionFunc observes state machine transitions.
type TransitionFunc func(from, to State)

// Orchestrator answers queries with cache, search, and synthesis.
type Orchestrator struct {
	searcher    Searcher
	cache       ResultCache
	synthesizer *Synthesizer
	threshold   float64
	onTransit   TransitionFunc
	now         func() time.Time
	logger      *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger.With("component", "rag")
		return nil
	}
}

// WithCache enables the result cache.
func WithCache(c ResultCache) Option {
	return func(o *Orchestrator) error {
		o.cache = c
		return nil
	}
}

// WithCompleter enables answer synthesis with the default timeout.
// Without a completer every answer is templated from the results.
func WithCompleter(completer ai.Completer) Option {
	return func(o *Orchestrator) error {
		if completer == nil {
			return errors.New("completer must not be nil")
		}
		o.synthesizer = NewSynthesizer(completer, DefaultSynthesisTimeout)
		return nil
	}
}

// WithSynthesizer replaces the synthesizer.
func WithSynthesizer(s *Synthesizer) Option {
	return func(o *Orchestrator) error {
		o.synthesizer = s
		return nil
	}
}

// WithSynthesisThreshold sets the top score results need before an answer
// is synthesized. Default is SynthesisThreshold.
func WithSynthesisThreshold(t float64) Option {
	return func(o *Orchestrator) error {
		if t < 0 || t > 1 {
			return fmt.Errorf("synthesis threshold must be in [0,1], got %v", t)
		}
		o.threshold = t
		return nil
	}
}

// WithTransitionFunc registers an observer for state transitions.
func WithTransitionFunc(fn TransitionFunc) Option {
	return func(o *Orchestrator) error {
		o.onTransit = fn
		return nil
	}
}

// NewOrchestrator creates an Orchestrator over searcher.
func NewOrchestrator(searcher Searcher, opts ...Option) (*Orchestrator, error) {
	if searcher == nil {
		return nil, ErrSearcherRequired
	}
	o := &Orchestrator{
		searcher:  searcher,
		threshold: SynthesisThreshold,
		now:       time.Now,
		logger:    slog.Default().With("component", "rag"),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if o.synthesizer != nil {
		o.synthesizer.logger = o.logger.With("stage", "synthesis")
	}
	return o, nil
}

// run carries one query through the state machine.
type run struct {
	query   core.Query
	hash    string
	results []core.ScoredResult
	draft   string
	answer  string
	source  core.ResultSource
	// degraded responses are never cached.
	degraded bool
	reason   error
	resp     *core.RAGResponse
}

// ProcessQuery answers text asked in qc. It never returns nil and never
// panics: failures degrade to simpler responses.
func (o *Orchestrator) ProcessQuery(ctx context.Context, text string, qc core.QueryContext, params core.SearchParams) *core.RAGResponse {
	start := o.now()
	q := core.NewQuery(text, qc, params)
	r := &run{query: q, hash: cache.QueryHash(q), source: core.ResultFresh}

	state := StateCheckCache
	if err := core.ValidateQuery(&q); err != nil {
		r.reason = err
		state = StateMinimalFallback
	}

	for i := 0; state != StateReturn; i++ {
		if i == maxTransitions {
			o.logger.Error("state machine did not terminate", "state", state)
			r.resp = nil
			break
		}
		next := o.step(ctx, r, state)
		if o.onTransit != nil {
			o.onTransit(state, next)
		}
		state = next
	}

	if r.resp == nil {
		r.resp = minimalResponse(q)
	}
	r.resp.QueryHash = r.hash
	r.resp.Elapsed = o.now().Sub(start)
	if r.resp.Sources == nil {
		r.resp.Sources = []core.ScoredResult{}
	}
	if r.resp.Suggestions == nil {
		r.resp.Suggestions = []string{}
	}
	return r.resp
}

func (o *Orchestrator) step(ctx context.Context, r *run, state State) (next State) {
	defer func() {
		if p := recover(); p != nil {
			o.logger.Error("query stage panicked", "state", state, "panic", p)
			r.reason = fmt.Errorf("%s panicked: %v", state, p)
			next = state.recoverTo()
		}
	}()

	switch state {
	case StateCheckCache:
		return o.checkCache(ctx, r)
	case StateSearch:
		return o.search(ctx, r)
	case StateSimpleSearchFallback:
		return o.simpleSearch(ctx, r)
	case StateSynthesizeAnswer:
		return o.synthesize(ctx, r)
	case StateFallbackAnswer:
		return o.fallbackAnswer(r)
	case StateStoreCache:
		return o.storeCache(ctx, r)
	case StateMinimalFallback:
		o.logger.Warn("returning minimal response", "err", r.reason)
		r.resp = minimalResponse(r.query)
		return StateReturn
	}
	return StateMinimalFallback
}

func (o *Orchestrator) checkCache(ctx context.Context, r *run) State {
	if o.cache == nil {
		return StateSearch
	}
	hit, err := o.cache.Get(ctx, r.query)
	if err != nil {
		o.logger.Warn("cache lookup failed, searching", "err", err)
		return StateSearch
	}
	if hit == nil {
		return StateSearch
	}

	meta := hit.Entry.Metadata
	r.resp = &core.RAGResponse{
		Answer:      meta.Answer,
		Sources:     hit.Entry.Results,
		Confidence:  meta.Confidence,
		Suggestions: meta.Suggestions,
		Source:      hit.Source,
	}
	o.logger.Debug("cache hit", "source", hit.Source, "similarity", hit.Similarity)
	return StateReturn
}

func (o *Orchestrator) search(ctx context.Context, r *run) State {
	results, err := o.searcher.Search(ctx, r.query)
	if err != nil {
		o.logger.Warn("search failed, falling back to simple search", "err", err)
		r.reason = err
		return StateSimpleSearchFallback
	}
	return o.afterSearch(r, results)
}

// simpleSearch retries lexically over documents only, restricted to the
// current document when there is one.
func (o *Orchestrator) simpleSearch(ctx context.Context, r *run) State {
	if err := ctx.Err(); err != nil {
		r.reason = err
		return StateMinimalFallback
	}

	q := r.query
	q.Params = core.SearchParams{
		Limit:              q.Params.Limit,
		RelevanceThreshold: q.Params.RelevanceThreshold,
		Sources:            []core.SourceType{core.SourceDocument},
		SingleDocument:     q.Context.HasDocument(),
		DisableEmbeddings:  true,
	}.Normalize()

	results, err := o.searcher.Search(ctx, q)
	if err != nil {
		o.logger.Warn("simple search failed", "err", err)
		r.reason = errors.Join(r.reason, err)
		return StateMinimalFallback
	}
	r.degraded = true
	r.source = core.ResultFallback
	return o.afterSearch(r, results)
}

func (o *Orchestrator) afterSearch(r *run, results []core.ScoredResult) State {
	r.results = results
	if len(results) == 0 {
		r.resp = &core.RAGResponse{
			Answer:      NoResultsAnswer,
			Confidence:  0,
			Suggestions: Suggest(r.query, nil, 0),
			Source:      r.source,
		}
		return StateReturn
	}
	if !r.degraded && o.synthesizer != nil && TopScore(results) >= o.threshold {
		return StateSynthesizeAnswer
	}
	return StateFallbackAnswer
}

func (o *Orchestrator) synthesize(ctx context.Context, r *run) State {
	draft, err := o.synthesizer.Synthesize(ctx, r.query, r.results)
	if err != nil {
		o.logger.Warn("answer synthesis failed, using templated answer", "err", err)
		r.degraded = true
		return StateFallbackAnswer
	}
	r.draft = draft
	r.answer = GroundAnswer(draft, contextText(r.results[:min(len(r.results), DefaultContextResults)]))
	return o.respond(r)
}

func (o *Orchestrator) fallbackAnswer(r *run) State {
	r.draft = templatedAnswer(r.results)
	r.answer = r.draft
	return o.respond(r)
}

func (o *Orchestrator) respond(r *run) State {
	confidence := ScoreConfidence(r.draft, r.results)
	r.resp = &core.RAGResponse{
		Answer:      r.answer,
		Sources:     r.results,
		Confidence:  confidence,
		Suggestions: Suggest(r.query, r.results, confidence),
		Source:      r.source,
	}
	return StateStoreCache
}

func (o *Orchestrator) storeCache(ctx context.Context, r *run) State {
	if o.cache == nil || r.degraded || r.resp == nil {
		return StateReturn
	}
	_, err := o.cache.Store(ctx, r.query, r.results, core.CacheMetadata{
		Answer:      r.resp.Answer,
		Confidence:  r.resp.Confidence,
		Suggestions: r.resp.Suggestions,
	})
	if err != nil {
		o.logger.Warn("failed to cache response", "err", err)
	}
	return StateReturn
}

// templatedAnswer quotes the best passages without a model.
func templatedAnswer(results []core.ScoredResult) string {
	var b strings.Builder
	b.WriteString("Based on your reading, these passages look most relevant:")
	for _, r := range results[:min(len(results), 3)] {
		text := strings.TrimSpace(r.Fragment.Text)
		if len(r.Snippets) > 0 {
			text = r.Snippets[0]
		}
		fmt.Fprintf(&b, "\n\n%q (%s)", text, describeSource(r.Fragment.Source))
	}
	return b.String()
}

func minimalResponse(q core.Query) *core.RAGResponse {
	return &core.RAGResponse{
		Answer:      MinimalAnswer,
		Sources:     []core.ScoredResult{},
		Confidence:  0,
		Suggestions: Suggest(q, nil, 0),
		Source:      core.ResultMinimal,
	}
}
