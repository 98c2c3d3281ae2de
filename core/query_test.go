package core

import (
	"math"
	"reflect"
	"testing"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"What is the Significance   of Chapter 3?", "what is the significance of chapter 3?"},
		{"  leading and trailing  ", "leading and trailing"},
		{"tabs\tand\nnewlines", "tabs and newlines"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeText(tt.in); got != tt.want {
			t.Errorf("NormalizeText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSearchParams_Normalize(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		p := SearchParams{}.Normalize()
		if p.Limit != DefaultLimit {
			t.Errorf("Limit = %d, want %d", p.Limit, DefaultLimit)
		}
		if p.RelevanceThreshold != DefaultRelevanceThreshold {
			t.Errorf("RelevanceThreshold = %v, want %v", p.RelevanceThreshold, DefaultRelevanceThreshold)
		}
		if !reflect.DeepEqual(p.Sources, []SourceType{SourceDocument}) {
			t.Errorf("Sources = %v, want [document]", p.Sources)
		}
	})

	t.Run("non-finite threshold uses default", func(t *testing.T) {
		for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
			p := SearchParams{RelevanceThreshold: v}.Normalize()
			if p.RelevanceThreshold != DefaultRelevanceThreshold {
				t.Errorf("Normalize(%v).RelevanceThreshold = %v, want %v", v, p.RelevanceThreshold, DefaultRelevanceThreshold)
			}
		}
	})

	t.Run("source order does not matter", func(t *testing.T) {
		a := SearchParams{Sources: []SourceType{SourceMemory, SourceDocument, SourceAnnotation}}.Normalize()
		b := SearchParams{Sources: []SourceType{SourceAnnotation, SourceMemory, SourceDocument, SourceMemory}}.Normalize()
		if !reflect.DeepEqual(a, b) {
			t.Errorf("normalized params differ: %+v vs %+v", a, b)
		}
	})

	t.Run("unknown sources dropped", func(t *testing.T) {
		p := SearchParams{Sources: []SourceType{"video", SourceMemory}}.Normalize()
		if !reflect.DeepEqual(p.Sources, []SourceType{SourceMemory}) {
			t.Errorf("Sources = %v, want [memory]", p.Sources)
		}
	})

	t.Run("does not mutate receiver", func(t *testing.T) {
		orig := SearchParams{Sources: []SourceType{SourceMemory, SourceDocument}}
		_ = orig.Normalize()
		if orig.Sources[0] != SourceMemory {
			t.Error("Normalize() reordered the caller's slice")
		}
	})
}

func TestNewQuery(t *testing.T) {
	q := NewQuery("  What IS  this? ", QueryContext{UserID: "u1", DocumentID: 42}, SearchParams{Limit: 5})
	if q.Text != "What IS  this?" {
		t.Errorf("Text = %q", q.Text)
	}
	if q.Normalized != "what is this?" {
		t.Errorf("Normalized = %q", q.Normalized)
	}
	if q.Params.Limit != 5 || q.Params.RelevanceThreshold != DefaultRelevanceThreshold {
		t.Errorf("Params not normalized: %+v", q.Params)
	}
	if !q.Context.HasDocument() {
		t.Error("HasDocument() = false, want true")
	}
}
