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

// Package storage provides the storage abstraction layer for marginalia.
//
// This package defines repository interfaces that decouple storage implementation
// from the query engine. Two backends are provided:
//
//   - storage/badger: embedded key-value store holding the library,
//     precomputed fragments, checkpoints, and the query cache
//   - storage/sqlite: SQL implementation of CacheRepository only, for
//     deployments that keep the query cache in a relational table
//
// # Architecture
//
//   - LibraryReader: read-only access to documents, annotations, memories
//   - LibraryRepository: LibraryReader plus writes, used by the surrounding application
//   - FragmentRepository: precomputed fragment embeddings per document
//   - CacheRepository: persisted query results keyed by query hash
//   - CheckpointRepository: resumable progress for background processors
//
// # Usage
//
//	backend, err := badger.OpenBackend("/path/to/db", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	repos := badger.NewRepositories(backend)
//	defer repos.Close()
//
// Use in tests with in-memory storage:
//
//	repos, err := badger.NewMemoryRepositories()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
//
// # Serialization
//
// Records are stored as JSON. The query cache in particular keeps results
// and metadata as JSON documents, matching the logical cache table
// (id, query_hash, query_text, user_id, result, metadata, access_count,
// created_at, last_accessed_at).
package storage
