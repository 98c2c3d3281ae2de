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

// Package openai implements the ai interfaces on top of OpenAI-compatible
// HTTP APIs (OpenAI, Ollama, LocalAI, vLLM) through langchaingo.
//
// Both services honour a per-service request rate limit and wrap every
// upstream failure in core.ErrTransientProvider, so callers can decide to
// fall back without inspecting provider-specific errors.
//
// Completion requests are shaped by ai.Requirements: creativity selects the
// temperature, speed selects the token budget, and high reasoning routes to
// Config.ReasoningModel when one is configured.
//
// # Usage
//
//	config := ai.NewConfig(
//	    ai.WithHost("http://localhost:11434"), // /v1 added automatically
//	    ai.WithCompletionModel("qwen2.5:7b"),
//	)
//
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vector, err := provider.Embedder().EmbedText(ctx, "sample text")
//	answer, err := provider.Completer().Complete(ctx, prompt, ai.Synthesis)
package openai
