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


package ai

import (
	"errors"
	"os"
	"strings"
	"time"
)

// Supported provider types.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Config holds configuration for AI service providers.
type Config struct {
	// Provider selects the client implementation: "openai" for any
	// OpenAI-compatible server, "ollama" for the native Ollama API.
	Provider string

	// EmbeddingHost is the base URL for the embedding service API.
	// Example: "http://localhost:11434/v1" for local OpenAI-compatible server
	EmbeddingHost string

	// GenerationHost is the base URL for the text generation service API.
	// Example: "http://localhost:11434/v1" for local OpenAI-compatible server
	GenerationHost string

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "embeddinggemma", "text-embedding-3-small"
	EmbeddingModel string

	// GenerationModel is the model identifier used for analysis and answers.
	// Example: "qwen2.5:3b", "gpt-4o-mini"
	GenerationModel string

	// APIKeyEnv names the environment variable holding the API token.
	// Ignored when APIToken is set.
	APIKeyEnv string

	// APIToken is the token sent to the provider.
	APIToken string

	// RequestTimeout bounds a single provider call.
	// Default: 60s
	RequestTimeout time.Duration
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithProvider sets the provider type.
func WithProvider(provider string) ConfigOption {
	return func(c *Config) {
		c.Provider = provider
	}
}

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithGenerationHost sets the generation service host URL.
func WithGenerationHost(host string) ConfigOption {
	return func(c *Config) {
		c.GenerationHost = host
	}
}

// WithHost sets both embedding and generation hosts to the same URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
		c.GenerationHost = host
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithGenerationModel sets the generation model identifier.
func WithGenerationModel(model string) ConfigOption {
	return func(c *Config) {
		c.GenerationModel = model
	}
}

// WithAPIKeyEnv sets the environment variable the API token is read from.
func WithAPIKeyEnv(name string) ConfigOption {
	return func(c *Config) {
		c.APIKeyEnv = name
	}
}

// WithAPIToken sets the API token directly.
func WithAPIToken(token string) ConfigOption {
	return func(c *Config) {
		c.APIToken = token
	}
}

// WithRequestTimeout sets the per-call timeout.
func WithRequestTimeout(timeout time.Duration) ConfigOption {
	return func(c *Config) {
		c.RequestTimeout = timeout
	}
}

// DefaultConfig returns a Config with sensible defaults for local OpenAI-compatible services.
// By default, both embedding and generation use the same host.
func DefaultConfig() *Config {
	defaultHost := "http://localhost:11434/v1"
	return &Config{
		Provider:        ProviderOpenAI,
		EmbeddingHost:   defaultHost,
		GenerationHost:  defaultHost,
		EmbeddingModel:  "embeddinggemma",
		GenerationModel: "qwen2.5:3b",
		APIKeyEnv:       "OPENAI_API_KEY",
		RequestTimeout:  60 * time.Second,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
// This is the recommended way to create a Config with custom settings.
//
// Example:
//   cfg := NewConfig(
//       WithHost("http://localhost:11434/v1"),
//       WithEmbeddingModel("text-embedding-3-small"),
//   )
//
// Example with the native Ollama API:
//   cfg := NewConfig(
//       WithProvider(ai.ProviderOllama),
//       WithHost("http://localhost:11434"),
//   )
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// OpenAI-compatible APIs (Ollama, LocalAI, vLLM, etc) need the /v1 suffix;
// the native Ollama API must not have it.
func (c *Config) Normalize() {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		c.Provider = ProviderOpenAI
	}
	c.EmbeddingHost = normalizeHost(c.EmbeddingHost, c.Provider)
	c.GenerationHost = normalizeHost(c.GenerationHost, c.Provider)
}

func normalizeHost(host, provider string) string {
	if host == "" {
		return host
	}
	// Remove trailing slash if present before checking the suffix
	host = strings.TrimSuffix(host, "/")
	if provider == ProviderOllama {
		return strings.TrimSuffix(host, "/v1")
	}
	if !strings.HasSuffix(host, "/v1") {
		host += "/v1"
	}
	return host
}

// Token returns the API token to send to the provider.
// Local OpenAI-compatible services don't require authentication, so "none"
// is used when no token is configured.
func (c *Config) Token() string {
	if c.APIToken != "" {
		return c.APIToken
	}
	if c.APIKeyEnv != "" {
		if token := os.Getenv(c.APIKeyEnv); token != "" {
			return token
		}
	}
	return "none"
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	// Normalize first to ensure hosts are in correct format
	c.Normalize()

	if c.Provider != ProviderOpenAI && c.Provider != ProviderOllama {
		return errors.New("ai config: Provider must be openai or ollama")
	}
	if c.EmbeddingHost == "" {
		return errors.New("ai config: EmbeddingHost is required")
	}
	if c.GenerationHost == "" {
		return errors.New("ai config: GenerationHost is required")
	}
	if c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	if c.GenerationModel == "" {
		return errors.New("ai config: GenerationModel is required")
	}
	if c.RequestTimeout < 0 {
		return errors.New("ai config: RequestTimeout cannot be negative")
	}
	return nil
}
