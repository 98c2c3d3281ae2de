package core

import "strings"

// Stop words ignored when comparing queries and fragments.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "were": true, "been": true, "to": true, "of": true, "and": true,
	"in": true, "that": true, "have": true, "has": true, "had": true, "it": true,
	"its": true, "for": true, "not": true, "on": true, "with": true, "as": true,
	"you": true, "your": true, "do": true, "does": true, "did": true, "at": true,
	"this": true, "these": true, "those": true, "but": true, "by": true,
	"from": true, "or": true, "if": true, "so": true, "than": true, "then": true,
	"there": true, "their": true, "they": true, "what": true, "which": true,
	"who": true, "whom": true, "how": true, "why": true, "when": true,
	"where": true, "can": true, "could": true, "would": true, "should": true,
	"will": true, "about": true, "me": true, "my": true, "i": true, "we": true,
	"our": true, "into": true, "also": true, "just": true, "any": true,
	"some": true, "all": true, "tell": true, "explain": true, "please": true,
}

const wordPunctuation = ".,!?;:'\"-()[]{}“”‘’…*_`"

// IsStopWord reports whether word (already lowercased) is a stop word.
func IsStopWord(word string) bool {
	return stopWords[word]
}

// Tokenize splits text into lowercased words with surrounding punctuation trimmed.
func Tokenize(text string) []string {
	words := strings.Fields(text)
	out := make([]string, 0, len(words))
	for _, word := range words {
		cleaned := strings.ToLower(strings.Trim(word, wordPunctuation))
		if cleaned != "" {
			out = append(out, cleaned)
		}
	}
	return out
}

// MeaningfulWords tokenizes text and removes stop words, keeping order and duplicates.
func MeaningfulWords(text string) []string {
	words := Tokenize(text)
	filtered := words[:0]
	for _, w := range words {
		if !stopWords[w] {
			filtered = append(filtered, w)
		}
	}
	return filtered
}

// WordSet returns the distinct stems of the meaningful words in text.
func WordSet(text string) map[string]bool {
	words := MeaningfulWords(text)
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[Stem(w)] = true
	}
	return set
}

// Stem strips a plural suffix so "concepts" and "concept" compare equal.
func Stem(word string) string {
	switch {
	case len(word) > 4 && strings.HasSuffix(word, "ies"):
		return word[:len(word)-3] + "y"
	case len(word) > 3 && strings.HasSuffix(word, "s") && !strings.HasSuffix(word, "ss"):
		return word[:len(word)-1]
	}
	return word
}

// ContainsAllWords checks if all meaningful query words appear in the document.
func ContainsAllWords(document, query string) bool {
	queryWords := WordSet(query)
	if len(queryWords) == 0 {
		return false
	}

	docWords := WordSet(document)
	for w := range queryWords {
		if !docWords[w] {
			return false
		}
	}
	return true
}
