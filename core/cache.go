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

import "time"

// ResultSource tells the caller where a response came from.
type ResultSource string

const (
	ResultFresh    ResultSource = "fresh"
	ResultCache    ResultSource = "cache"
	ResultFuzzy    ResultSource = "fuzzy"
	ResultFallback ResultSource = "fallback"
	ResultMinimal  ResultSource = "minimal"
)

// CacheMetadata is stored alongside cached results.
type CacheMetadata struct {
	Params       SearchParams `json:"params"`
	Truncated    bool         `json:"truncated"`
	TotalResults int          `json:"total_results"`
	Answer       string       `json:"answer,omitempty"`
	Confidence   float64      `json:"confidence,omitempty"`
	Suggestions  []string     `json:"suggestions,omitempty"`
}

// CacheEntry is a persisted query result keyed by QueryHash.
type CacheEntry struct {
	ID              string
	QueryHash       string
	QueryText       string
	NormalizedQuery string
	UserID          string
	DocumentID      ID
	Chapter         string
	Results         []ScoredResult
	Metadata        CacheMetadata
	AccessCount     int64
	CreatedAt       time.Time
	LastAccessedAt  time.Time
}

// Info returns the entry without its result payload.
func (e *CacheEntry) Info() CacheEntryInfo {
	return CacheEntryInfo{
		ID:              e.ID,
		QueryHash:       e.QueryHash,
		NormalizedQuery: e.NormalizedQuery,
		UserID:          e.UserID,
		DocumentID:      e.DocumentID,
		AccessCount:     e.AccessCount,
		CreatedAt:       e.CreatedAt,
		LastAccessedAt:  e.LastAccessedAt,
	}
}

// CacheEntryInfo is the lightweight view of a cache entry used for
// fuzzy scanning, compaction, and invalidation.
type CacheEntryInfo struct {
	ID              string
	QueryHash       string
	NormalizedQuery string
	UserID          string
	DocumentID      ID
	AccessCount     int64
	CreatedAt       time.Time
	LastAccessedAt  time.Time
}

// RAGResponse is what a caller always receives from a query, even on failure.
type RAGResponse struct {
	Answer      string
	Sources     []ScoredResult
	Confidence  float64
	Suggestions []string
	Source      ResultSource
	QueryHash   string
	Elapsed     time.Duration
}
