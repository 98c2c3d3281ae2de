// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import (
	"slices"
	"strings"
)

// Search parameter defaults.
const (
	DefaultLimit              = 10
	DefaultRelevanceThreshold = 0.5
)

// QueryContext describes where the user is while asking a question.
type QueryContext struct {
	UserID     string `json:"user_id"`
	DocumentID ID     `json:"document_id,omitempty"` // Zero means no current document
	Chapter    string `json:"chapter,omitempty"`
}

// HasDocument reports whether a current document is set.
func (c QueryContext) HasDocument() bool {
	return c.DocumentID != 0
}

// SearchParams tunes a single search.
type SearchParams struct {
	Limit              int          `json:"limit"`
	RelevanceThreshold float64      `json:"relevance_threshold"`
	Sources            []SourceType `json:"sources"`
	// SingleDocument restricts the search to the current document only.
	SingleDocument bool `json:"single_document,omitempty"`
	// DisableEmbeddings forces lexical scoring.
	DisableEmbeddings bool `json:"disable_embeddings,omitempty"`
}

// Normalize returns a copy with defaults applied and Sources sorted and de-duplicated.
// Two parameter sets that differ only in source order normalize identically.
func (p SearchParams) Normalize() SearchParams {
	out := p
	if out.Limit <= 0 {
		out.Limit = DefaultLimit
	}
	if !(out.RelevanceThreshold > 0 && out.RelevanceThreshold <= 1) { // also catches NaN
		out.RelevanceThreshold = DefaultRelevanceThreshold
	}
	sources := make([]SourceType, 0, len(p.Sources))
	for _, s := range p.Sources {
		if s.Valid() {
			sources = append(sources, s)
		}
	}
	if len(sources) == 0 {
		sources = append(sources, SourceDocument)
	}
	slices.Sort(sources)
	out.Sources = slices.Compact(sources)
	return out
}

// Includes reports whether t is among the requested sources.
func (p SearchParams) Includes(t SourceType) bool {
	return slices.Contains(p.Sources, t)
}

// Query is a user's question. It is treated as an immutable value once built.
type Query struct {
	Text       string
	Normalized string
	Context    QueryContext
	Params     SearchParams
}

// NewQuery builds a Query with normalized text and parameters.
func NewQuery(text string, qc QueryContext, params SearchParams) Query {
	return Query{
		Text:       strings.TrimSpace(text),
		Normalized: NormalizeText(text),
		Context:    qc,
		Params:     params.Normalize(),
	}
}

// NormalizeText lowercases text and collapses runs of whitespace to single spaces.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
