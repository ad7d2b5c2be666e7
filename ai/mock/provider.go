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


package mock

import (
	"sync/atomic"

	"github.com/poiesic/digest/ai"
)

// MockProvider is an ai.AIProvider backed by a MockEmbedder and a MockTextGenerator.
type MockProvider struct {
	embedder  *MockEmbedder
	generator *MockTextGenerator
	closed    atomic.Bool
}

// NewMockProvider creates a provider with default mock services. Type-assert
// to *MockProvider to reach the doubles in tests.
func NewMockProvider() ai.AIProvider {
	return NewMockProviderWithServices(NewMockEmbedder(), NewMockTextGenerator())
}

// NewMockProviderWithServices wraps caller-supplied doubles.
func NewMockProviderWithServices(embedder *MockEmbedder, generator *MockTextGenerator) ai.AIProvider {
	return &MockProvider{embedder: embedder, generator: generator}
}

func (p *MockProvider) Embedder() ai.Embedder           { return p.embedder }
func (p *MockProvider) TextGenerator() ai.TextGenerator { return p.generator }

// Close marks the provider closed.
func (p *MockProvider) Close() error {
	p.closed.Store(true)
	return nil
}

// Closed reports whether Close was called.
func (p *MockProvider) Closed() bool {
	return p.closed.Load()
}

// GetMockEmbedder returns the embedder double.
func (p *MockProvider) GetMockEmbedder() *MockEmbedder {
	return p.embedder
}

// GetMockGenerator returns the generator double.
func (p *MockProvider) GetMockGenerator() *MockTextGenerator {
	return p.generator
}
