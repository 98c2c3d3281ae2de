// Package mock provides test double implementations of AI service interfaces.
//
// This package contains mock implementations of ai.Embedder, ai.Completer,
// and ai.AIProvider for use in unit tests. The mocks allow tests to run without
// external AI service dependencies and enable controlled, deterministic behavior.
// All mocks are safe for concurrent use.
//
// # Usage in Tests
//
//	// Basic usage with default behavior
//	mockProvider := mock.NewMockProvider()
//	embeddings, err := mockProvider.Embedder().EmbedText(ctx, "test")
//
//	// Custom behavior injection
//	emb := mock.NewMockEmbedder()
//	emb.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
//	    return nil, errors.New("provider down")
//	}
//
// # Default Behavior
//
//   - MockEmbedder: hashed bag-of-words unit vectors, so shared words mean higher cosine
//   - MockCompleter: returns DefaultCompletion and records every prompt
//   - MockProvider: aggregates mock embedder and completer
package mock
