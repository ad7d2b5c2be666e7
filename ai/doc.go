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


// Package ai provides abstractions for AI services used in digest.
//
// This package defines interfaces for AI operations including text embeddings
// and text generation. The pipeline and the question answering engine depend
// on these abstractions rather than on concrete providers.
//
// # Design Principles
//
// The package is designed around three key interfaces:
//
//   - Embedder: Generates vector embeddings from text
//   - TextGenerator: Produces completions, optionally constrained to JSON
//   - AIProvider: Aggregates AI services for convenient initialization
//
// # Implementation Packages
//
//   - ai/openai: OpenAI-compatible APIs (OpenAI, Ollama's /v1, LocalAI, vLLM)
//   - ai/ollama: The native Ollama API
//   - ai/mock: Test doubles for unit testing without external dependencies
//
// Public constructors (openai.NewProvider, ollama.NewProvider)
// return INTERFACE types. Mock constructors return CONCRETE types so tests can
// inject behavior and assert on call counts.
//
//	provider, err := openai.NewProvider(config)  // returns ai.AIProvider
//
// # Error Classification
//
// Provider failures are reported wrapped in core.ErrTransientProvider or
// core.ErrPermanentProvider. ClassifyError maps the langchaingo error codes:
// authentication, invalid request, quota and content filter failures are
// permanent, while rate limits, timeouts and unavailable services are transient.
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
//	vector, err := provider.Embedder().EmbedText(ctx, "Hello world")
//	reply, err := provider.TextGenerator().Generate(ctx, ai.GenerationRequest{Prompt: "Hi"})
package ai
