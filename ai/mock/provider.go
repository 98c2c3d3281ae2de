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

package mock

import (
	"sync/atomic"

	"github.com/poiesic/marginalia/ai"
)

// MockProvider bundles a MockEmbedder and a MockCompleter behind ai.AIProvider
// and counts Close calls, so tests can check who owns the provider.
type MockProvider struct {
	embedder  *MockEmbedder
	completer *MockCompleter
	closes    atomic.Int32
}

var _ ai.AIProvider = (*MockProvider)(nil)

// NewMockProvider returns a provider with default mock services.
func NewMockProvider() ai.AIProvider {
	return NewMockProviderWithServices(nil, nil)
}

// NewMockProviderWithServices wires the given mocks. Nil arguments get defaults.
func NewMockProviderWithServices(embedder *MockEmbedder, completer *MockCompleter) *MockProvider {
	if embedder == nil {
		embedder = NewMockEmbedder()
	}
	if completer == nil {
		completer = NewMockCompleter()
	}
	return &MockProvider{embedder: embedder, completer: completer}
}

func (p *MockProvider) Embedder() ai.Embedder { return p.embedder }
func (p *MockProvider) Completer() ai.Completer { return p.completer }

// Close records the call and always succeeds.
func (p *MockProvider) Close() error {
	p.closes.Add(1)
	return nil
}

// Closed reports whether Close has been called at least once.
func (p *MockProvider) Closed() bool {
	return p.closes.Load() > 0
}

// GetMockEmbedder returns the concrete embedder for assertions.
func (p *MockProvider) GetMockEmbedder() *MockEmbedder {
	return p.embedder
}

// GetMockCompleter returns the concrete completer for assertions.
func (p *MockProvider) GetMockCompleter() *MockCompleter {
	return p.completer
}
