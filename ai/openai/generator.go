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

	"github.com/poiesic/digest/ai"
	"github.com/poiesic/digest/core"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Generator implements ai.TextGenerator using OpenAI-compatible chat APIs.
type Generator struct {
	client llms.Model
	mapper *llms.ErrorMapper
	logger *slog.Logger
}

// newGenerator is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newGenerator(config *ai.Config) (*Generator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.GenerationHost),
		openai.WithToken(config.Token()),
		openai.WithModel(config.GenerationModel),
	)
	if err != nil {
		return nil, err
	}

	return &Generator{
		client: client,
		mapper: llms.OpenAIErrorMapper(),
		logger: slog.Default().With("component", "openai-generator"),
	}, nil
}

// NewGenerator creates a new text generator using the provided configuration.
//
// Returns ai.TextGenerator interface to enforce abstraction.
func NewGenerator(config *ai.Config) (ai.TextGenerator, error) {
	return newGenerator(config)
}

// Generate sends one chat completion request.
func (g *Generator) Generate(ctx context.Context, req ai.GenerationRequest) (string, error) {
	content := make([]llms.MessageContent, 0, 2)
	if req.System != "" {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	content = append(content, llms.TextParts(llms.ChatMessageTypeHuman, sanitizeText(req.Prompt)))

	opts := []llms.CallOption{llms.WithTemperature(req.Temperature)}
	if req.JSON {
		opts = append(opts, llms.WithJSONMode())
	}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}

	response, err := g.client.GenerateContent(ctx, content, opts...)
	if err != nil {
		g.logger.Error("failed to generate content", "err", err)
		return "", ai.ClassifyError(g.mapper, err)
	}

	if len(response.Choices) < 1 || response.Choices[0].Content == "" {
		g.logger.Debug("no choices returned from model")
		return "", fmt.Errorf("%w: %w", core.ErrTransientProvider, ai.ErrEmptyResponse)
	}

	return response.Choices[0].Content, nil
}
