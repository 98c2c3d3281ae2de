package core

import (
	"testing"
)

func TestIDFromContent(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantSame bool
	}{
		{
			name:     "same content produces same ID",
			content:  "test content",
			wantSame: true,
		},
		{
			name:     "empty string",
			content:  "",
			wantSame: true,
		},
		{
			name:     "long content",
			content:  "This is a much longer piece of content that should still hash consistently",
			wantSame: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id1 := IDFromContent(tt.content)
			id2 := IDFromContent(tt.content)

			if tt.wantSame && id1 != id2 {
				t.Errorf("IDFromContent() produced different IDs for same content: %d vs %d", id1, id2)
			}
		})
	}
}

func TestIDFromContent_Different(t *testing.T) {
	id1 := IDFromContent("content1")
	id2 := IDFromContent("content2")

	if id1 == id2 {
		t.Errorf("IDFromContent() produced same ID for different content")
	}
}

func TestAnnotation_Text(t *testing.T) {
	tests := []struct {
		name string
		a    Annotation
		want string
	}{
		{name: "highlight only", a: Annotation{Highlight: "a line"}, want: "a line"},
		{name: "note only", a: Annotation{Note: "my note"}, want: "my note"},
		{name: "both", a: Annotation{Highlight: "a line", Note: "my note"}, want: "a line\nmy note"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Text(); got != tt.want {
				t.Errorf("Text() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestScoredResult_Metadata(t *testing.T) {
	r := ScoredResult{Metadata: map[string]string{MetaSection: SectionCurrent, MetaBoosted: "true"}}
	if !r.Boosted() {
		t.Error("Boosted() = false, want true")
	}
	if r.Section() != SectionCurrent {
		t.Errorf("Section() = %q, want %q", r.Section(), SectionCurrent)
	}

	var empty ScoredResult
	if empty.Boosted() {
		t.Error("Boosted() on empty metadata = true, want false")
	}
}

func TestDocumentText(t *testing.T) {
	doc := &Document{Content: "ignored when chapters exist"}
	if got := doc.Text(); got != "ignored when chapters exist" {
		t.Errorf("Text() = %q", got)
	}

	doc.Chapters = []Chapter{
		{ID: "1", Title: "Chapter 1", Content: "First."},
		{ID: "2", Content: "Second."},
	}
	want := "Chapter 1\n\nFirst.\n\nSecond."
	if got := doc.Text(); got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}
}
