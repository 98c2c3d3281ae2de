package concept

import (
	"fmt"
	"strings"

	"github.com/poiesic/marginalia/ai/parse"
	"github.com/poiesic/marginalia/core"
)

// Extraction bounds.
const (
	MinConcepts     = 5
	MaxConcepts     = 8
	maxConceptBytes = 60
)

// universalVocabulary is matched against document text when the model is
// unavailable. These terms recur across most non-fiction.
var universalVocabulary = []string{
	"knowledge", "system", "method", "theory", "history", "memory", "learning",
	"language", "culture", "society", "science", "philosophy", "economics",
	"politics", "technology", "mind", "nature", "power", "identity", "practice",
	"process", "structure", "design", "ethics", "experience", "narrative",
	"habit", "attention", "decision", "evolution",
}

func extractionPrompt(doc *core.Document, prefixLen int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "List between %d and %d key concepts discussed in the document below.\n", MinConcepts, MaxConcepts)
	b.WriteString("Concepts are short noun phrases of one to three words.\n")
	b.WriteString("Respond with JSON only, in the form {\"concepts\": [\"concept one\", \"concept two\"]}.\n\n")
	fmt.Fprintf(&b, "Title: %s\n", doc.Title)
	if doc.Author != "" {
		fmt.Fprintf(&b, "Author: %s\n", doc.Author)
	}
	b.WriteString("\nContent:\n")
	b.WriteString(contentPrefix(doc, prefixLen))
	return b.String()
}

type conceptsReply struct {
	Concepts []string `json:"concepts"`
}

// ParseConcepts extracts a concept list from model output. It accepts
// {"concepts": [...]}, a bare JSON array, either wrapped in prose or code
// fences, and falls back to collecting quoted strings.
func ParseConcepts(raw string) ([]string, error) {
	nonEmpty := func(v []string) bool { return len(normalizeConcepts(v)) > 0 }

	var strategies []parse.Strategy[[]string]
	for _, st := range parse.JSON[conceptsReply]() {
		strategies = append(strategies, parse.Strategy[[]string]{
			Name: "object:" + st.Name,
			Parse: func(raw string) ([]string, bool) {
				reply, ok := st.Parse(raw)
				return reply.Concepts, ok
			},
		})
	}
	strategies = append(strategies, parse.JSON[[]string]()...)
	strategies = append(strategies, parse.QuotedStrings("concepts"), parse.ListItems())

	res := parse.Chain(raw, parse.All(nonEmpty, strategies...)...)
	concepts, ok := res.Get()
	if !ok {
		return nil, fmt.Errorf("%w: %w", ErrNoConcepts, res.Err())
	}
	return normalizeConcepts(concepts), nil
}

// Heuristic derives concepts without a model: title words longer than three
// characters, then universal vocabulary terms found in the content prefix.
func Heuristic(doc *core.Document, prefixLen int) []string {
	var candidates []string
	for _, w := range core.Tokenize(doc.Title) {
		if len(w) > 3 && !core.IsStopWord(w) {
			candidates = append(candidates, w)
		}
	}

	words := core.WordSet(contentPrefix(doc, prefixLen))
	for _, term := range universalVocabulary {
		if words[core.Stem(term)] {
			candidates = append(candidates, term)
		}
	}
	return normalizeConcepts(candidates)
}

// normalizeConcepts lowercases, trims, de-duplicates, and caps the list.
func normalizeConcepts(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, min(len(raw), MaxConcepts))
	for _, c := range raw {
		c = strings.Join(core.Tokenize(c), " ")
		if c == "" || len(c) > maxConceptBytes || core.IsStopWord(c) || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
		if len(out) == MaxConcepts {
			break
		}
	}
	return out
}

func contentPrefix(doc *core.Document, n int) string {
	text := doc.Text()
	if len(text) <= n {
		return text
	}
	// Back up to a rune boundary.
	for n > 0 && text[n]&0xC0 == 0x80 {
		n--
	}
	return text[:n]
}
