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
	"fmt"
	"log/slog"

	"github.com/poiesic/digest/ai"
)

// Provider bundles the OpenAI-compatible embedder and generator that share one ai.Config.
type Provider struct {
	embedder  *Embedder
	generator *Generator
	logger    *slog.Logger
}

// NewProvider validates config and creates both clients.
// Embedding and generation may live on different hosts.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(config)
	if err != nil {
		return nil, fmt.Errorf("openai embedder: %w", err)
	}
	generator, err := newGenerator(config)
	if err != nil {
		return nil, fmt.Errorf("openai generator: %w", err)
	}

	logger := slog.Default().With("component", "openai-provider")
	logger.Debug("provider ready",
		"embeddingHost", config.EmbeddingHost, "embeddingModel", config.EmbeddingModel,
		"generationHost", config.GenerationHost, "generationModel", config.GenerationModel)

	return &Provider{
		embedder:  embedder,
		generator: generator,
		logger:    logger,
	}, nil
}

func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

func (p *Provider) TextGenerator() ai.TextGenerator {
	return p.generator
}

// Close is a no-op; langchaingo clients hold no connections of their own.
func (p *Provider) Close() error {
	p.logger.Debug("closing provider")
	return nil
}
