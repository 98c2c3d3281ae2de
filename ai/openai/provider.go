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

package openai

import (
	"log/slog"

	"github.com/poiesic/marginalia/ai"
)

// Provider implements ai.AIProvider using OpenAI-compatible services.
// It manages embedder and completer instances.
type Provider struct {
	config    *ai.Config
	embedder  ai.Embedder
	completer *Completer
	logger    *slog.Logger
}

// NewProvider creates a new AI provider with OpenAI-compatible services.
// The config is validated and normalized before use. When
// config.EmbeddingCacheSize is positive the embedder is wrapped in an
// in-memory cache.
//
// Returns ai.AIProvider interface (not *Provider) to enforce abstraction
// and prevent coupling to OpenAI-specific implementation details.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(config)
	if err != nil {
		return nil, err
	}

	completer, err := newCompleter(config)
	if err != nil {
		return nil, err
	}

	p := &Provider{
		config:    config,
		embedder:  ai.NewCachingEmbedder(embedder, config.EmbeddingCacheSize, config.EmbeddingCacheTTL),
		completer: completer,
		logger:    slog.Default().With("component", "openai-provider"),
	}
	p.logger.Debug("provider ready",
		"embedding_host", config.EmbeddingHost, "embedding_model", config.EmbeddingModel,
		"completion_host", config.CompletionHost, "completion_model", config.CompletionModel,
		"reasoning_model", config.ReasoningModel, "embedding_cache", config.EmbeddingCacheSize)
	return p, nil
}

// Embedder returns the text embedding service.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// Completer returns the text completion service.
func (p *Provider) Completer() ai.Completer {
	return p.completer
}

// Close releases resources held by the provider. The HTTP clients need no
// cleanup; embedding cache effectiveness is logged.
func (p *Provider) Close() error {
	if cached, ok := p.embedder.(*ai.CachingEmbedder); ok {
		hits, misses := cached.Stats()
		p.logger.Debug("closing OpenAI provider", "embedding_cache_hits", hits, "embedding_cache_misses", misses)
		return nil
	}
	p.logger.Debug("closing OpenAI provider")
	return nil
}
