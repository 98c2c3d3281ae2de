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
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/marginalia/ai"
	"github.com/poiesic/marginalia/core"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"
)

// Completer implements ai.Completer using OpenAI-compatible chat APIs.
type Completer struct {
	client         llms.Model
	model          string
	reasoningModel string
	limiter        *rate.Limiter
	logger         *slog.Logger
}

// newCompleter is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newCompleter(config *ai.Config) (*Completer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.CompletionHost),
		openai.WithToken(token(config)),
		openai.WithModel(config.CompletionModel),
	)
	if err != nil {
		return nil, err
	}

	return newCompleterWithModel(client, config), nil
}

func newCompleterWithModel(client llms.Model, config *ai.Config) *Completer {
	return &Completer{
		client:         client,
		model:          config.CompletionModel,
		reasoningModel: config.ReasoningModel,
		limiter:        newLimiter(config.RequestsPerSecond),
		logger:         slog.Default().With("component", "openai-completer"),
	}
}

// NewCompleter creates a new completer using the provided configuration.
//
// Returns ai.Completer interface to enforce abstraction.
func NewCompleter(config *ai.Config) (ai.Completer, error) {
	return newCompleter(config)
}

// Complete sends prompt to the model chosen by req and returns the raw text.
// Failures are wrapped in core.ErrTransientProvider.
func (c *Completer) Complete(ctx context.Context, prompt string, req ai.Requirements) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrTransientProvider, err)
	}

	opts := c.callOptions(req)
	response, err := llms.GenerateFromSinglePrompt(ctx, c.client, prompt, opts...)
	if err != nil {
		c.logger.Warn("completion failed", "err", err)
		return "", fmt.Errorf("%w: complete: %w", core.ErrTransientProvider, err)
	}

	response = strings.TrimSpace(response)
	c.logger.Debug("completion", "prompt_len", len(prompt), "response_len", len(response))
	return response, nil
}

// ModelFor returns the model name used for req.
func (c *Completer) ModelFor(req ai.Requirements) string {
	if req.Reasoning >= ai.LevelHigh && c.reasoningModel != "" {
		return c.reasoningModel
	}
	return c.model
}

func (c *Completer) callOptions(req ai.Requirements) []llms.CallOption {
	opts := []llms.CallOption{
		llms.WithTemperature(req.Temperature()),
		llms.WithMaxTokens(req.MaxTokens()),
	}
	if model := c.ModelFor(req); model != c.model {
		opts = append(opts, llms.WithModel(model))
	}
	return opts
}
