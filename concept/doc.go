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

// Package concept maintains an in-memory index from salient concept terms to
// the documents that discuss them.
//
// The index narrows which documents a search has to score. It is built
// wholesale by Indexer.Build and is never persisted; a process restart
// requires a rebuild. Each build produces a new immutable snapshot that is
// swapped in atomically, so lookups never block and never observe a
// half-built index.
package concept
