// Package ollama provides AI service implementations using the native Ollama API.
//
// It mirrors package openai but talks to Ollama's own /api endpoints through
// langchaingo's ollama client, which avoids the OpenAI compatibility layer and
// supports Ollama-specific JSON formatting. Hosts are given without the /v1
// suffix; ai.Config.Normalize strips it when present.
//
//	config := ai.NewConfig(
//	    ai.WithProvider(ai.ProviderOllama),
//	    ai.WithHost("http://localhost:11434"),
//	)
//	provider, err := ollama.NewProvider(config)
package ollama
