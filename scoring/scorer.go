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

package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/marginalia/ai"
	"github.com/poiesic/marginalia/core"
)

// Scoring defaults.
const (
	DefaultDomainWeight  = 0.9
	DefaultScore         = 0.5
	DefaultSnippetBefore = 50
	DefaultSnippetAfter  = 150

	// DefaultLLMTimeout bounds a single relevance completion.
	DefaultLLMTimeout = 10 * time.Second

	// Lexical and LLM scores combine semantic and contextual overlap 60/40.
	SemanticWeight   = 0.6
	ContextualWeight = 0.4
)

// Request is everything a strategy needs to score one fragment.
type Request struct {
	Query string
	// QueryTerms are the query's meaningful words. Computed from Query when nil.
	QueryTerms []string
	// QueryEmbedding is nil when embeddings are disabled or unavailable.
	QueryEmbedding []float32
	Fragment       core.ContentFragment
	// SemanticContext holds expanded query terms and related concepts.
	SemanticContext []string
	// DomainWeight scales similarity into contextual relevance. Zero means DefaultDomainWeight.
	DomainWeight float64
}

func (r *Request) weight() float64 {
	if r.DomainWeight <= 0 {
		return DefaultDomainWeight
	}
	return r.DomainWeight
}

func (r *Request) terms() []string {
	if r.QueryTerms == nil {
		r.QueryTerms = core.MeaningfulWords(r.Query)
	}
	return r.QueryTerms
}

// Result holds the scores for one fragment, each in [0,1].
type Result struct {
	Score               float64
	SemanticSimilarity  float64
	ContextualRelevance float64
	Snippets            []string
	Strategy            string
}

// Retain reports whether the result clears threshold.
func Retain(r Result, threshold float64) bool {
	return r.Score >= threshold
}

// Strategy is one way of scoring a fragment. Returning an error hands the
// fragment to the next strategy in the chain.
type Strategy interface {
	Name() string
	Score(ctx context.Context, req *Request) (Result, error)
}

// Scorer runs strategies in order until one succeeds.
type Scorer struct {
	strategies    []Strategy
	completer     ai.Completer
	llmTimeout    time.Duration
	snippetBefore int
	snippetAfter  int
	logger        *slog.Logger
}

// Option configures a Scorer.
type Option func(*Scorer) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scorer) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger.With("component", "scorer")
		return nil
	}
}

// WithStrategies replaces the default strategy chain.
// DefaultStrategy is appended when the chain does not end with it.
func WithStrategies(strategies ...Strategy) Option {
	return func(s *Scorer) error {
		if len(strategies) == 0 {
			return fmt.Errorf("at least one scoring strategy required")
		}
		s.strategies = append([]Strategy(nil), strategies...)
		return nil
	}
}

// WithCompleter inserts an LLMStrategy after the embedding strategy.
func WithCompleter(completer ai.Completer) Option {
	return func(s *Scorer) error {
		s.completer = completer
		return nil
	}
}

// WithLLMTimeout bounds each relevance completion made by the LLM strategy.
// Default is 10s.
func WithLLMTimeout(d time.Duration) Option {
	return func(s *Scorer) error {
		if d <= 0 {
			return fmt.Errorf("llm timeout must be positive, got %s", d)
		}
		s.llmTimeout = d
		return nil
	}
}

// WithSnippetWindow sets how many characters surround a snippet's match.
func WithSnippetWindow(before, after int) Option {
	return func(s *Scorer) error {
		if before < 0 || after < 0 {
			return fmt.Errorf("snippet window must be non-negative")
		}
		s.snippetBefore = before
		s.snippetAfter = after
		return nil
	}
}

// NewScorer creates a scorer with the default chain
// Embedding → Lexical → Default.
func NewScorer(opts ...Option) (*Scorer, error) {
	s := &Scorer{
		strategies:    []Strategy{EmbeddingStrategy{}, LexicalStrategy{}},
		snippetBefore: DefaultSnippetBefore,
		snippetAfter:  DefaultSnippetAfter,
		llmTimeout:    DefaultLLMTimeout,
		logger:        slog.Default().With("component", "scorer"),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if s.completer != nil {
		s.strategies = insertAfter(s.strategies, EmbeddingStrategyName, NewLLMStrategy(s.completer, s.llmTimeout))
	}
	if _, ok := s.strategies[len(s.strategies)-1].(DefaultStrategy); !ok {
		s.strategies = append(s.strategies, DefaultStrategy{})
	}
	return s, nil
}

// Strategies returns the strategy names in the order they run.
func (s *Scorer) Strategies() []string {
	names := make([]string, len(s.strategies))
	for i, st := range s.strategies {
		names[i] = st.Name()
	}
	return names
}

// Score runs the strategy chain and attaches snippets. It never fails.
func (s *Scorer) Score(ctx context.Context, req *Request) Result {
	for _, st := range s.strategies {
		res, err := s.run(ctx, st, req)
		if err != nil {
			s.logger.Debug("scoring strategy failed, falling through",
				"strategy", st.Name(), "source", req.Fragment.Source.ID, "err", err)
			continue
		}
		res.Strategy = st.Name()
		res.Score = clamp01(res.Score)
		res.SemanticSimilarity = clamp01(res.SemanticSimilarity)
		res.ContextualRelevance = clamp01(res.ContextualRelevance)
		res.Snippets = ExtractSnippets(req.Fragment.Text, req.Query, s.snippetBefore, s.snippetAfter)
		return res
	}

	// Only reachable when every strategy, including the default, failed.
	return Result{
		Score:               DefaultScore,
		SemanticSimilarity:  DefaultScore,
		ContextualRelevance: DefaultScore * req.weight(),
		Snippets:            ExtractSnippets(req.Fragment.Text, req.Query, s.snippetBefore, s.snippetAfter),
		Strategy:            DefaultStrategyName,
	}
}

func (s *Scorer) run(ctx context.Context, st Strategy, req *Request) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrStrategyPanic, st.Name(), r)
		}
	}()
	return st.Score(ctx, req)
}

func insertAfter(strategies []Strategy, name string, st Strategy) []Strategy {
	for i, existing := range strategies {
		if existing.Name() == name {
			out := make([]Strategy, 0, len(strategies)+1)
			out = append(out, strategies[:i+1]...)
			out = append(out, st)
			return append(out, strategies[i+1:]...)
		}
	}
	return append([]Strategy{st}, strategies...)
}
