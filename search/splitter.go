package search

import (
	"regexp"
	"strings"

	"github.com/poiesic/marginalia/core"
	"github.com/tmc/langchaingo/textsplitter"
)

// DefaultFragmentSize is the target fragment length in characters.
const DefaultFragmentSize = 500

// sentenceMark replaces the whitespace after a sentence so the splitter can
// break there while the punctuation stays with its sentence.
const sentenceMark = "\x1e"

var sentenceEnd = regexp.MustCompile(`([.!?;]["'”’)\]]?)[ \t]+`)

// Splitter cuts text into sentence-aware fragments. Breaks are tried at
// paragraphs, then lines, then sentence ends, then spaces; a word is never split.
type Splitter struct {
	size     int
	splitter textsplitter.RecursiveCharacter
}

// NewSplitter creates a splitter targeting size characters per fragment.
func NewSplitter(size int) *Splitter {
	if size <= 0 {
		size = DefaultFragmentSize
	}
	return &Splitter{
		size: size,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(0),
			textsplitter.WithSeparators([]string{"\n\n", "\n", sentenceMark, " "}),
		),
	}
}

// Split returns the fragment texts for text. Empty text yields no fragments.
func (s *Splitter) Split(text string) []string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if text == "" {
		return nil
	}
	marked := sentenceEnd.ReplaceAllString(text, "$1"+sentenceMark)

	chunks, err := s.splitter.SplitText(marked)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		c = strings.TrimSpace(strings.ReplaceAll(c, sentenceMark, " "))
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// SplitText returns fragments of text attributed to ref, indexed from zero.
func (s *Splitter) SplitText(ref core.SourceRef, text string) []core.ContentFragment {
	parts := s.Split(text)
	frags := make([]core.ContentFragment, len(parts))
	for i, p := range parts {
		frags[i] = core.ContentFragment{Text: p, Source: ref, Index: i}
	}
	return frags
}

// SplitDocument fragments a document, chapter by chapter when it has chapters.
// Fragment indexes run across the whole document.
func (s *Splitter) SplitDocument(doc *core.Document) []core.ContentFragment {
	ref := core.SourceRef{Type: core.SourceDocument, ID: doc.ID, DocumentID: doc.ID}
	if len(doc.Chapters) == 0 {
		return s.SplitText(ref, doc.Content)
	}

	var frags []core.ContentFragment
	for _, ch := range doc.Chapters {
		chRef := ref
		chRef.Chapter = ch.ID
		for _, f := range s.SplitText(chRef, ch.Content) {
			f.Index = len(frags)
			frags = append(frags, f)
		}
	}
	return frags
}
