package rag

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// GroundingPrefix is prepended to answers that do not already point at
// their source.
const GroundingPrefix = "Based on your reading, "

var (
	authorityPattern = regexp.MustCompile(`(?i)\b(?:research|studies|experts|scientists|science|evidence)\s+(?:shows?|suggests?|proves?|indicates?|confirms?|agrees?|has\s+shown|have\s+shown)\b`)
	wellKnownPattern = regexp.MustCompile(`(?i)\bit\s+is\s+(?:well[\s-]known|widely\s+accepted|scientifically\s+proven)\s+that\b`)
	citationPattern  = regexp.MustCompile(`\(\s*[A-Z][^()]*\d{4}[a-z]?\s*\)|\[\d+\]|(?i:\bdoi:|\bet al\.)`)
	sourceRefPattern = regexp.MustCompile(`(?i)\b(?:your reading|your notes|you highlighted|the text|the passage|passages|the author|the book|this book|the document|this chapter|the chapter|according to|in chapter)\b`)
)

// GroundAnswer corrects a draft answer in place rather than regenerating it.
// Unless contextText carries a citation, authority claims such as
// "research shows" are rewritten to refer to the text. Answers that never
// mention their source get GroundingPrefix.
func GroundAnswer(answer, contextText string) string {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return ""
	}

	if !citationPattern.MatchString(contextText) {
		answer = authorityPattern.ReplaceAllString(answer, "the text suggests")
		answer = wellKnownPattern.ReplaceAllString(answer, "the text indicates that")
		answer = capitalizeFirst(answer)
	}

	if !ReferencesSource(answer) {
		answer = GroundingPrefix + lowerFirst(answer)
	}
	return answer
}

// ReferencesSource reports whether text points back at the reading material.
func ReferencesSource(text string) bool {
	return sourceRefPattern.MatchString(text)
}

func capitalizeFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || unicode.IsUpper(r) {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// lowerFirst lowercases the first letter unless the first word looks like
// an acronym or the pronoun "I".
func lowerFirst(s string) string {
	first, _, _ := strings.Cut(s, " ")
	if first == "I" || strings.HasPrefix(first, "I'") {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || !unicode.IsUpper(r) {
		return s
	}
	if next, _ := utf8.DecodeRuneInString(s[size:]); unicode.IsUpper(next) {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}
