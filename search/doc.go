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

// Package search provides hybrid semantic and lexical search over a user's library.
//
// The Engine type implements a multi-stage search algorithm:
//   - The query is embedded once and reused for every fragment comparison
//   - Candidate documents are split into the current document and the rest,
//     with the rest optionally narrowed through the concept index
//   - The current document is always scored in full
//   - Other documents are scored in small chunks with an early stop
//   - Current-document results are boosted after the threshold decision
//
// Documents are cut into sentence-aware fragments by a Splitter. Per-document
// work fans out over a worker pool and is merged only after every task in a
// stage has finished.
package search
