package ollama

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/poiesic/digest/ai"
	"github.com/poiesic/digest/core"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

const providerName = "ollama"

// Provider implements ai.AIProvider on top of the native Ollama API.
type Provider struct {
	embedder  *Embedder
	generator *Generator
	logger    *slog.Logger
}

// NewProvider creates a provider talking to an Ollama server.
//
// Returns ai.AIProvider interface to enforce abstraction.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	embedClient, err := newClient(config.EmbeddingHost, config.EmbeddingModel)
	if err != nil {
		return nil, err
	}
	embedder, err := embeddings.NewEmbedder(embedClient)
	if err != nil {
		return nil, err
	}

	genClient, err := newClient(config.GenerationHost, config.GenerationModel)
	if err != nil {
		return nil, err
	}

	mapper := llms.NewErrorMapper(providerName)
	return &Provider{
		embedder: &Embedder{
			embedder: embedder,
			mapper:   mapper,
			logger:   slog.Default().With("component", "ollama-embedder"),
		},
		generator: &Generator{
			client: genClient,
			mapper: mapper,
			logger: slog.Default().With("component", "ollama-generator"),
		},
		logger: slog.Default().With("component", "ollama-provider"),
	}, nil
}

// newClient builds a langchaingo client for one model.
// The URL is checked here because the client aborts the process on a bad URL.
func newClient(host, model string) (*ollama.LLM, error) {
	if _, err := url.Parse(host); err != nil {
		return nil, fmt.Errorf("ollama: invalid host %q: %w", host, err)
	}
	return ollama.New(ollama.WithServerURL(host), ollama.WithModel(model))
}

// Embedder returns the text embedding service.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// TextGenerator returns the completion service.
func (p *Provider) TextGenerator() ai.TextGenerator {
	return p.generator
}

// Close is a no-op; the HTTP clients hold no resources that need releasing.
func (p *Provider) Close() error {
	p.logger.Debug("closing Ollama provider")
	return nil
}

// Embedder implements ai.Embedder with Ollama's embedding endpoint.
type Embedder struct {
	embedder embeddings.Embedder
	mapper   *llms.ErrorMapper
	logger   *slog.Logger
}

// EmbedText generates a vector embedding for a single text string.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts generates vector embeddings for multiple text strings in a batch.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.logger.Debug("generating embeddings for texts", "count", len(texts))

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, ai.ClassifyError(e.mapper, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: %w: got %d vectors for %d texts",
			core.ErrTransientProvider, ai.ErrEmptyResponse, len(vectors), len(texts))
	}
	return vectors, nil
}

// Generator implements ai.TextGenerator with Ollama's chat endpoint.
type Generator struct {
	client llms.Model
	mapper *llms.ErrorMapper
	logger *slog.Logger
}

// Generate sends one chat request. JSON requests use Ollama's json format.
func (g *Generator) Generate(ctx context.Context, req ai.GenerationRequest) (string, error) {
	var content []llms.MessageContent
	if req.System != "" {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	content = append(content, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))

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
		return "", fmt.Errorf("%w: %w", core.ErrTransientProvider, ai.ErrEmptyResponse)
	}
	return response.Choices[0].Content, nil
}
