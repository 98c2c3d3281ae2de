package mock

import (
	"context"
	"sync"

	"github.com/poiesic/marginalia/ai"
)

// DefaultCompletion is returned by MockCompleter when no function is injected.
const DefaultCompletion = "According to the passage in your reading, the text explains this idea directly."

// MockCompleter is a test double for ai.Completer.
// It allows custom behavior injection via a function field and records prompts.
type MockCompleter struct {
	// CompleteFunc is called by Complete if set.
	// If nil, Complete returns DefaultCompletion.
	CompleteFunc func(ctx context.Context, prompt string, req ai.Requirements) (string, error)

	mu      sync.Mutex
	prompts []string
}

// NewMockCompleter creates a mock completer with default behavior.
func NewMockCompleter() *MockCompleter {
	return &MockCompleter{}
}

// Complete records the prompt and returns the injected or default response.
func (m *MockCompleter) Complete(ctx context.Context, prompt string, req ai.Requirements) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	fn := m.CompleteFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, prompt, req)
	}
	return DefaultCompletion, nil
}

// CallCount returns the number of Complete calls.
func (m *MockCompleter) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// Prompts returns a copy of every prompt received.
func (m *MockCompleter) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// Reset clears recorded prompts and injected behavior.
func (m *MockCompleter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = nil
	m.CompleteFunc = nil
}
