package scoring

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/marginalia/core"
)

const ellipsis = "..."

// ExtractSnippets returns a window of text around the first case-insensitive
// occurrence of query, or of its longest meaningful term when the whole
// query does not appear. Without any occurrence it returns the text's prefix.
// Windows are trimmed to word boundaries.
func ExtractSnippets(text, query string, before, after int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	lower := strings.ToLower(text)
	if len(lower) != len(text) {
		// Case mapping changed byte offsets; positions would not line up.
		return []string{prefix(text, before+after)}
	}

	needle := core.NormalizeText(query)
	idx := -1
	if needle != "" {
		idx = strings.Index(lower, needle)
	}
	if idx < 0 {
		terms := core.MeaningfulWords(query)
		sort.SliceStable(terms, func(i, j int) bool { return len(terms[i]) > len(terms[j]) })
		for _, term := range terms {
			if i := indexWord(lower, term); i >= 0 {
				idx, needle = i, term
				break
			}
		}
	}
	if idx < 0 {
		return []string{prefix(text, before+after)}
	}

	start := max(idx-before, 0)
	end := min(idx+len(needle)+after, len(text))
	return []string{window(text, start, end, idx, idx+len(needle))}
}

// indexWord finds term at a word start, so "art" does not match inside "start".
func indexWord(lower, term string) int {
	offset := 0
	for {
		i := strings.Index(lower[offset:], term)
		if i < 0 {
			return -1
		}
		pos := offset + i
		if pos == 0 || !isWordByte(lower[pos-1]) {
			return pos
		}
		offset = pos + len(term)
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b >= utf8.RuneSelf
}

// window cuts text[start:end] back to word boundaries without ever
// trimming into text[matchStart:matchEnd].
func window(text string, start, end, matchStart, matchEnd int) string {
	if start > 0 {
		if sp := strings.IndexByte(text[start:matchStart], ' '); sp >= 0 {
			start += sp + 1
		} else {
			for start > 0 && !utf8.RuneStart(text[start]) {
				start--
			}
		}
	}
	if end < len(text) {
		if sp := strings.LastIndexByte(text[matchEnd:end], ' '); sp >= 0 && matchEnd+sp > start {
			end = matchEnd + sp
		} else {
			for end < len(text) && !utf8.RuneStart(text[end]) {
				end++
			}
		}
	}

	snippet := strings.TrimSpace(text[start:end])
	if start > 0 {
		snippet = ellipsis + snippet
	}
	if end < len(text) {
		snippet += ellipsis
	}
	return snippet
}

func prefix(text string, n int) string {
	if len(text) <= n {
		return text
	}
	return window(text, 0, n, 0, 0)
}
