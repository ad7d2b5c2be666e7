// Package mock provides test double implementations of AI service interfaces.
//
// This package contains mock implementations of ai.Embedder, ai.TextGenerator,
// and ai.AIProvider for use in unit tests. The mocks allow tests to run without
// external AI service dependencies and enable controlled, deterministic behavior.
// All mocks are safe for concurrent use by pipeline workers.
//
// # Usage in Tests
//
//	// Basic usage with default behavior
//	mockProvider := mock.NewMockProvider()
//	vector, err := mockProvider.Embedder().EmbedText(ctx, "test")
//
//	// Custom behavior injection
//	gen := mock.NewMockTextGenerator()
//	gen.GenerateFunc = func(ctx context.Context, req ai.GenerationRequest) (string, error) {
//	    return "", fmt.Errorf("%w: boom", core.ErrTransientProvider)
//	}
//
//	// Check call counts
//	count := gen.CallCount()
//
// # Default Behavior
//
// The mock implementations provide sensible defaults:
//
//   - MockEmbedder: Bag-of-words vectors, so texts sharing words are similar
//   - MockTextGenerator: A valid analysis for JSON requests, an echo otherwise
//   - MockProvider: Aggregates mock embedder and generator
package mock
