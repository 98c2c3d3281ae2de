package openai

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/marginalia/ai"
	"github.com/poiesic/marginalia/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/fake"
)

func TestCompleter_Complete(t *testing.T) {
	llm := fake.NewFakeLLM([]string{"  first answer \n", "second"})
	c := newCompleterWithModel(llm, ai.DefaultConfig())

	out, err := c.Complete(context.Background(), "question?", ai.Synthesis)
	require.NoError(t, err)
	assert.Equal(t, "first answer", out)

	out, err = c.Complete(context.Background(), "question?", ai.Classification)
	require.NoError(t, err)
	assert.Equal(t, "second", out)
}

func TestCompleter_ErrorIsTransient(t *testing.T) {
	llm := fake.NewFakeLLM(nil)
	c := newCompleterWithModel(llm, ai.DefaultConfig())

	_, err := c.Complete(context.Background(), "question?", ai.Synthesis)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrTransientProvider))
}

func TestCompleter_ModelFor(t *testing.T) {
	cfg := ai.NewConfig(ai.WithCompletionModel("small"))
	c := newCompleterWithModel(fake.NewFakeLLM([]string{"x"}), cfg)
	assert.Equal(t, "small", c.ModelFor(ai.Synthesis))

	cfg = ai.NewConfig(ai.WithCompletionModel("small"), ai.WithReasoningModel("large"))
	c = newCompleterWithModel(fake.NewFakeLLM([]string{"x"}), cfg)
	assert.Equal(t, "large", c.ModelFor(ai.Synthesis))
	assert.Equal(t, "small", c.ModelFor(ai.Classification))
	assert.Len(t, c.callOptions(ai.Synthesis), 3)
	assert.Len(t, c.callOptions(ai.Classification), 2)
}

func TestCompleter_CancelledContext(t *testing.T) {
	cfg := ai.NewConfig(ai.WithRequestsPerSecond(0.001))
	c := newCompleterWithModel(fake.NewFakeLLM([]string{"x"}), cfg)

	// Consume the single burst token.
	_, err := c.Complete(context.Background(), "p", ai.Classification)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Complete(ctx, "p", ai.Classification)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrTransientProvider))
}

func TestEmbedder(t *testing.T) {
	var batches [][]string
	client := embeddings.EmbedderClientFunc(func(_ context.Context, texts []string) ([][]float32, error) {
		batches = append(batches, texts)
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = []float32{float32(i), 1}
		}
		return out, nil
	})

	cfg := ai.DefaultConfig()
	cfg.EmbeddingBatchSize = 2
	e, err := newEmbedderWithClient(client, cfg)
	require.NoError(t, err)

	vectors, err := e.EmbedTexts(context.Background(), []string{"a", "b\nc", "d"})
	require.NoError(t, err)
	assert.Len(t, vectors, 3)
	require.Len(t, batches, 2)
	assert.Equal(t, []string{"a", "b c"}, batches[0])

	v, err := e.EmbedText(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, v)

	empty, err := e.EmbedTexts(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestEmbedder_ErrorIsTransient(t *testing.T) {
	client := embeddings.EmbedderClientFunc(func(context.Context, []string) ([][]float32, error) {
		return nil, errors.New("connection refused")
	})
	e, err := newEmbedderWithClient(client, ai.DefaultConfig())
	require.NoError(t, err)

	_, err = e.EmbedText(context.Background(), "q")
	assert.True(t, errors.Is(err, core.ErrTransientProvider))
	_, err = e.EmbedTexts(context.Background(), []string{"q"})
	assert.True(t, errors.Is(err, core.ErrTransientProvider))
}
