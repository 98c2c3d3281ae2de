package rag

import (
	"fmt"
	"slices"

	"github.com/poiesic/marginalia/core"
)

const maxSuggestions = 3

// LowConfidence is the confidence below which guidance is offered.
const LowConfidence = 0.5

// Suggest proposes follow-up questions, plus guidance when the answer is
// weak or missing.
func Suggest(q core.Query, results []core.ScoredResult, confidence float64) []string {
	var out []string
	if len(results) == 0 || confidence < LowConfidence {
		out = append(out, "Try rephrasing your question using words from the text.")
		if !q.Context.HasDocument() {
			out = append(out, "Open the document you are asking about so its passages are searched first.")
		} else if !q.Params.Includes(core.SourceAnnotation) {
			out = append(out, "Include your highlights and notes in the search.")
		}
	}

	if len(results) > 0 {
		if ch := results[0].Fragment.Source.Chapter; ch != "" {
			out = append(out, fmt.Sprintf("What else happens in chapter %s?", ch))
		}
		for _, w := range core.MeaningfulWords(q.Text) {
			if len(w) < 4 {
				continue
			}
			out = append(out, fmt.Sprintf("Where else does the text discuss %s?", w))
			break
		}
		if slices.ContainsFunc(results, func(r core.ScoredResult) bool { return r.Section() == core.SectionOther }) {
			out = append(out, "How do your other documents treat this idea?")
		}
	}

	out = slices.Compact(out)
	if len(out) > maxSuggestions {
		out = out[:maxSuggestions]
	}
	return out
}
