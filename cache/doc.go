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

// Package cache implements the persistent query result cache.
//
// Entries are keyed by QueryHash, a structural hash of the normalized query,
// its context, and its normalized search parameters. Lookups try an exact
// hash match first, then a fuzzy match over the user's most recently used
// entries, then report a miss.
//
// Growth is bounded two ways: entries older than a TTL are swept, and when
// the entry count reaches the configured maximum the least recently accessed
// 20% are evicted before the next store. The eviction decision is made by
// PlanCompaction, a pure function of the entries, the current time, the
// maximum size, and the TTL.
//
// A QueryCache has an explicit lifecycle: Open starts an optional background
// sweeper and Close stops it. The underlying repository is owned by the caller.
package cache
