package core

import (
	"encoding/binary"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for library entities.
// It is generated using content-based hashing or assigned by the surrounding application.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// SourceType identifies which kind of record a fragment was cut from.
type SourceType string

const (
	// SourceDocument is the body text of a library document.
	SourceDocument SourceType = "document"
	// SourceAnnotation is a user's highlight or note attached to a document.
	SourceAnnotation SourceType = "annotation"
	// SourceMemory is a free-standing memory record kept by the user.
	SourceMemory SourceType = "memory"
)

// Valid reports whether t is one of the known source types.
func (t SourceType) Valid() bool {
	switch t {
	case SourceDocument, SourceAnnotation, SourceMemory:
		return true
	}
	return false
}

// Document is a long-form text in a user's library.
type Document struct {
	ID        ID
	UserID    string
	Title     string
	Author    string
	Content   string
	Chapters  []Chapter // Optional; when present, Content is ignored for fragmenting
	UpdatedAt time.Time
}

// Chapter is a titled section of a document.
type Chapter struct {
	ID      string
	Title   string
	Content string
}

// Annotation is a highlight, optionally with a note, that a user attached to a document.
type Annotation struct {
	ID         ID
	UserID     string
	DocumentID ID
	Chapter    string
	Highlight  string
	Note       string
	CreatedAt  time.Time
}

// Text returns the annotation's searchable text.
func (a *Annotation) Text() string {
	if a.Note == "" {
		return a.Highlight
	}
	if a.Highlight == "" {
		return a.Note
	}
	return a.Highlight + "\n" + a.Note
}

// Memory is a free-standing note the user keeps about their reading.
type Memory struct {
	ID         ID
	UserID     string
	DocumentID ID // Zero when the memory is not tied to a document
	Content    string
	CreatedAt  time.Time
}

// SourceRef points back to the record a fragment was derived from.
type SourceRef struct {
	Type       SourceType `json:"type"`
	ID         ID         `json:"id"`
	DocumentID ID         `json:"document_id,omitempty"`
	Chapter    string     `json:"chapter,omitempty"`
}

// ContentFragment is a bounded, sentence-aware slice of a source record.
type ContentFragment struct {
	Text      string    `json:"text"`
	Source    SourceRef `json:"source"`
	Index     int       `json:"index"`
	Embedding []float32 `json:"-"`
}

// Metadata keys carried on ScoredResult.
const (
	MetaSection  = "section"
	MetaBoosted  = "boosted"
	MetaStrategy = "strategy"

	SectionCurrent = "current"
	SectionOther   = "other"
)

// ScoredResult is a fragment together with its relevance scores, all in [0,1].
type ScoredResult struct {
	Fragment            ContentFragment   `json:"fragment"`
	SemanticSimilarity  float64           `json:"semantic_similarity"`
	ContextualRelevance float64           `json:"contextual_relevance"`
	Score               float64           `json:"score"`
	Snippets            []string          `json:"snippets,omitempty"`
	Metadata            map[string]string `json:"metadata,omitempty"`
}

// Boosted reports whether the result received the current-document boost.
func (r *ScoredResult) Boosted() bool {
	return r.Metadata[MetaBoosted] == "true"
}

// Section returns "current" or "other".
func (r *ScoredResult) Section() string {
	return r.Metadata[MetaSection]
}

// Checkpoint records how far a background processor got, so it can resume.
type Checkpoint struct {
	ProcessorType string
	LastID        ID
	Processed     int
	UpdatedAt     time.Time
}

// Text returns the document's full text. When chapters are present their
// titles and contents are joined and Content is ignored.
func (d *Document) Text() string {
	if len(d.Chapters) == 0 {
		return d.Content
	}
	parts := make([]string, 0, len(d.Chapters)*2)
	for _, ch := range d.Chapters {
		if ch.Title != "" {
			parts = append(parts, ch.Title)
		}
		if ch.Content != "" {
			parts = append(parts, ch.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}
