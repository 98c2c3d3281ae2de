package scoring

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/poiesic/marginalia/ai"
	"github.com/poiesic/marginalia/ai/parse"
	"github.com/poiesic/marginalia/core"
)

// Strategy names, also recorded in ScoredResult metadata.
const (
	EmbeddingStrategyName = "embedding"
	LLMStrategyName       = "llm"
	LexicalStrategyName   = "lexical"
	DefaultStrategyName   = "default"
)

// EmbeddingStrategy scores by cosine similarity between the query and
// fragment embeddings.
type EmbeddingStrategy struct{}

func (EmbeddingStrategy) Name() string { return EmbeddingStrategyName }

func (EmbeddingStrategy) Score(_ context.Context, req *Request) (Result, error) {
	if len(req.QueryEmbedding) == 0 || len(req.Fragment.Embedding) == 0 {
		return Result{}, ErrNoEmbedding
	}
	sim, ok := Cosine(req.QueryEmbedding, req.Fragment.Embedding)
	if !ok {
		if len(req.QueryEmbedding) != len(req.Fragment.Embedding) {
			return Result{}, fmt.Errorf("%w: query %d, fragment %d",
				ErrDimensionMismatch, len(req.QueryEmbedding), len(req.Fragment.Embedding))
		}
		return Result{}, ErrNoEmbedding
	}
	sim = clamp01(sim)
	return Result{
		Score:               sim,
		SemanticSimilarity:  sim,
		ContextualRelevance: sim * req.weight(),
	}, nil
}

// LexicalStrategy scores by word overlap. Semantic similarity is the share
// of query terms found in the fragment; contextual overlap is the share of
// semantic-context terms found. The combined score weights them 60/40.
type LexicalStrategy struct{}

func (LexicalStrategy) Name() string { return LexicalStrategyName }

func (LexicalStrategy) Score(_ context.Context, req *Request) (Result, error) {
	fragmentWords := core.WordSet(req.Fragment.Text)

	semantic := overlap(req.terms(), fragmentWords)
	if semantic > 0 && core.ContainsAllWords(req.Fragment.Text, req.Query) {
		// Every query word present is stronger evidence than the ratio alone.
		semantic = clamp01(semantic + 0.2)
	}

	contextual := semantic
	if len(req.SemanticContext) > 0 {
		contextual = overlap(req.SemanticContext, fragmentWords)
	}

	score := SemanticWeight*semantic + ContextualWeight*contextual
	return Result{
		Score:               score,
		SemanticSimilarity:  semantic,
		ContextualRelevance: score * req.weight(),
	}, nil
}

// overlap returns the share of distinct terms whose stem appears in words.
// Multi-word terms count when every word appears.
func overlap(terms []string, words map[string]bool) float64 {
	seen := make(map[string]bool, len(terms))
	matched, total := 0, 0
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" || seen[term] || core.IsStopWord(term) {
			continue
		}
		seen[term] = true
		total++

		parts := strings.Fields(term)
		all := true
		for _, p := range parts {
			if !words[core.Stem(p)] {
				all = false
				break
			}
		}
		if all {
			matched++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(matched) / float64(total)
}

// DefaultStrategy returns the conservative mid-range score. It never fails.
type DefaultStrategy struct{}

func (DefaultStrategy) Name() string { return DefaultStrategyName }

func (DefaultStrategy) Score(_ context.Context, req *Request) (Result, error) {
	return Result{
		Score:               DefaultScore,
		SemanticSimilarity:  DefaultScore,
		ContextualRelevance: DefaultScore * req.weight(),
	}, nil
}

// LLMStrategy asks the completion service to rate relevance. Each call is
// bounded by the strategy's timeout; a timeout hands the fragment on.
type LLMStrategy struct {
	completer ai.Completer
	timeout   time.Duration
}

// NewLLMStrategy creates a strategy backed by completer. A non-positive
// timeout uses DefaultLLMTimeout.
func NewLLMStrategy(completer ai.Completer, timeout time.Duration) *LLMStrategy {
	if timeout <= 0 {
		timeout = DefaultLLMTimeout
	}
	return &LLMStrategy{completer: completer, timeout: timeout}
}

func (s *LLMStrategy) Name() string { return LLMStrategyName }

type relevanceReply struct {
	Relevance *float64 `json:"relevance"`
}

func (s *LLMStrategy) Score(ctx context.Context, req *Request) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	out, err := s.completer.Complete(ctx, relevancePrompt(req), ai.Scoring)
	if err != nil {
		return Result{}, err
	}

	rel, err := ParseRelevance(out)
	if err != nil {
		return Result{}, err
	}

	contextual := rel
	if len(req.SemanticContext) > 0 {
		contextual = overlap(req.SemanticContext, core.WordSet(req.Fragment.Text))
	}
	score := SemanticWeight*rel + ContextualWeight*contextual
	return Result{
		Score:               score,
		SemanticSimilarity:  rel,
		ContextualRelevance: score * req.weight(),
	}, nil
}

// ParseRelevance extracts a relevance value in [0,1] from model output.
func ParseRelevance(raw string) (float64, error) {
	inRange := func(v float64) bool { return v >= 0 && v <= 1 }

	strategies := make([]parse.Strategy[float64], 0, 5)
	for _, st := range parse.JSON[relevanceReply]() {
		strategies = append(strategies, parse.Strategy[float64]{
			Name: st.Name,
			Parse: func(raw string) (float64, bool) {
				reply, ok := st.Parse(raw)
				if !ok || reply.Relevance == nil {
					return 0, false
				}
				return *reply.Relevance, true
			},
		})
	}
	strategies = append(strategies, parse.NumberField("relevance"))

	res := parse.Chain(raw, parse.All(inRange, strategies...)...)
	if v, ok := res.Get(); ok {
		return v, nil
	}
	return 0, res.Err()
}

func relevancePrompt(req *Request) string {
	var b strings.Builder
	b.WriteString("Rate how relevant the passage is to the question on a scale from 0 to 1.\n")
	b.WriteString("Respond with JSON only, in the form {\"relevance\": 0.0}.\n\n")
	b.WriteString("Question: ")
	b.WriteString(req.Query)
	if len(req.SemanticContext) > 0 {
		b.WriteString("\nRelated terms: ")
		b.WriteString(strings.Join(req.SemanticContext, ", "))
	}
	b.WriteString("\n\nPassage:\n")
	b.WriteString(req.Fragment.Text)
	return b.String()
}
