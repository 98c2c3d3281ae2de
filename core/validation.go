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
	"fmt"
	"math"
	"strings"
)

// ValidateQuery validates a Query according to domain rules.
//
// Validation rules:
//   - Normalized text must not be empty
//   - Context.UserID must not be empty
//   - Every requested source must be a known SourceType
//   - The relevance threshold must be a finite number
//
// A missing DocumentID is valid: the query is then library-wide.
func ValidateQuery(q *Query) error {
	if q == nil {
		return fmt.Errorf("%w: query is nil", ErrInvalidQuery)
	}

	if q.Normalized == "" {
		return fmt.Errorf("%w: %w", ErrInvalidQuery, ErrEmptyContent)
	}

	if strings.TrimSpace(q.Context.UserID) == "" {
		return fmt.Errorf("%w: %w: %w", ErrInvalidQuery, ErrMissingContext, ErrEmptyUserID)
	}

	if math.IsNaN(q.Params.RelevanceThreshold) || math.IsInf(q.Params.RelevanceThreshold, 0) {
		return fmt.Errorf("%w: relevance threshold is not a number", ErrInvalidQuery)
	}

	for _, s := range q.Params.Sources {
		if err := ValidateSourceType(s); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidQuery, err)
		}
	}

	return nil
}

// ValidateDocument validates a Document before it is written to the library.
//
// Validation rules:
//   - UserID must not be empty
//   - Title or some content must be present
//
// NOT validated:
//   - ID (0 means the store assigns one from the content)
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}

	if strings.TrimSpace(doc.UserID) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyUserID)
	}

	if doc.Title == "" && doc.Content == "" && len(doc.Chapters) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyContent)
	}

	return nil
}

// ValidateSourceType validates that a SourceType has a known value.
func ValidateSourceType(t SourceType) error {
	if !t.Valid() {
		return fmt.Errorf("%w: value %q", ErrInvalidSourceType, t)
	}
	return nil
}
