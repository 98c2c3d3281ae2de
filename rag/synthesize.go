package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/marginalia/ai"
	"github.com/poiesic/marginalia/core"
)

// Synthesis defaults.
const (
	DefaultSynthesisTimeout = 45 * time.Second
	DefaultContextResults   = 5
)

// Synthesizer drafts answers from retrieved fragments with a language model.
type Synthesizer struct {
	completer  ai.Completer
	timeout    time.Duration
	maxResults int
	logger     *slog.Logger
}

// NewSynthesizer creates a Synthesizer. A non-positive timeout uses the default.
func NewSynthesizer(completer ai.Completer, timeout time.Duration) *Synthesizer {
	if timeout <= 0 {
		timeout = DefaultSynthesisTimeout
	}
	return &Synthesizer{
		completer:  completer,
		timeout:    timeout,
		maxResults: DefaultContextResults,
		logger:     slog.Default().With("component", "synthesizer"),
	}
}

// Synthesize returns the model's draft answer, ungrounded. The call is
// abandoned after the synthesizer's timeout.
func (s *Synthesizer) Synthesize(ctx context.Context, q core.Query, results []core.ScoredResult) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	out, err := s.completer.Complete(ctx, synthesisPrompt(q, results[:min(len(results), s.maxResults)]), ai.Synthesis)
	if err != nil {
		return "", fmt.Errorf("%w: synthesize: %w", core.ErrTransientProvider, err)
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: synthesize: %w", core.ErrTransientProvider, err)
	}

	answer := strings.TrimSpace(out)
	if answer == "" {
		return "", fmt.Errorf("%w: %w", core.ErrMalformedResponse, ErrEmptyAnswer)
	}
	s.logger.Debug("synthesized answer", "chars", len(answer), "elapsed", time.Since(start))
	return answer, nil
}

func synthesisPrompt(q core.Query, results []core.ScoredResult) string {
	var b strings.Builder
	b.WriteString("You are helping a reader understand what they are reading.\n")
	b.WriteString("Answer the question using only the numbered passages below.\n")
	b.WriteString("Refer to the passages or the text when you make a claim. ")
	b.WriteString("Do not cite research or experts unless a passage does. ")
	b.WriteString("If the passages do not answer the question, say so briefly.\n\n")

	for i, r := range results {
		fmt.Fprintf(&b, "[%d] %s", i+1, describeSource(r.Fragment.Source))
		if r.Section() == core.SectionCurrent {
			b.WriteString(", currently open")
		}
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(r.Fragment.Text))
		b.WriteString("\n\n")
	}

	b.WriteString("Question: ")
	b.WriteString(q.Text)
	b.WriteString("\nAnswer:")
	return b.String()
}

func describeSource(ref core.SourceRef) string {
	var desc string
	switch ref.Type {
	case core.SourceAnnotation:
		desc = "your highlight"
	case core.SourceMemory:
		desc = "your note"
	default:
		desc = fmt.Sprintf("document %d", ref.ID)
	}
	if ref.Chapter != "" {
		desc += ", chapter " + ref.Chapter
	}
	return desc
}

// contextText joins the fragments an answer was drafted from.
func contextText(results []core.ScoredResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, r.Fragment.Text)
	}
	return strings.Join(parts, "\n")
}
