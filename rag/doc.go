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

// Package rag answers questions about a user's reading.
//
// An Orchestrator runs each query through an explicit state machine:
//
//	CHECK_CACHE -> SEARCH -> SYNTHESIZE_ANSWER | FALLBACK_ANSWER -> STORE_CACHE -> RETURN
//
// A failed search degrades to SIMPLE_SEARCH_FALLBACK (lexical scoring over
// documents only), and a failed simple search degrades to MINIMAL_FALLBACK, a
// templated response with no sources and zero confidence. ProcessQuery never
// returns an error: the caller always receives a well-formed response.
//
// Synthesized answers are post-processed by GroundAnswer, which tones down
// unsupported authority claims and makes sure the answer points back at the
// user's reading.
package rag
