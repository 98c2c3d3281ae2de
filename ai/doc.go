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

// Package ai provides abstractions for the model services marginalia uses.
//
// Two capabilities are required:
//
//   - Embedder: turns text into vectors for semantic similarity
//   - Completer: turns a prompt into text, used for concept extraction,
//     optional relevance scoring, and answer synthesis
//
// AIProvider aggregates both so they can be created and closed together.
// Completion calls carry Requirements describing the reasoning, accuracy,
// speed and creativity they need. Providers map those onto a model and call
// options.
//
// # Implementation Packages
//
//   - ai/openai: OpenAI-compatible services through langchaingo, rate
//     limited with golang.org/x/time/rate
//   - ai/mock: deterministic test doubles with injectable functions and
//     call counters
//   - ai/parse: tolerant parsing of structured replies from completers
//
// Public constructors (openai.NewProvider, openai.NewEmbedder) return
// interface types. Mock constructors return concrete types so tests can
// inject behavior and assert on calls:
//
//	embedder := mock.NewMockEmbedder()
//	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
//	    return nil, errors.New("offline")
//	}
//	_ = embedder.CallCount()
//
// # Embedding Cache
//
// NewCachingEmbedder wraps any Embedder with a bounded in-memory cache keyed
// by a BLAKE2b hash of the text. openai.NewProvider applies it when
// Config.EmbeddingCacheSize is positive.
//
// # Usage Example
//
//	config := ai.NewConfig(ai.WithHost("http://localhost:11434"))
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vector, err := provider.Embedder().EmbedText(ctx, "the lighthouse keeper")
//	answer, err := provider.Completer().Complete(ctx, prompt, ai.Synthesis)
package ai
