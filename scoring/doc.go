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

// Package scoring computes how relevant a content fragment is to a query.
//
// A Scorer runs an ordered list of strategies and keeps the first one that
// succeeds. The default order is:
//
//	EmbeddingStrategy  cosine similarity of precomputed vectors
//	LexicalStrategy    word overlap with the query and its expanded terms
//	DefaultStrategy    a conservative 0.5 that never fails
//
// An LLMStrategy can be inserted after the embedding strategy with
// WithCompleter. A strategy that returns an error or panics is logged and
// skipped, so scoring a fragment never fails.
package scoring
