// Package llm provides clients for completion and embedding endpoints.
package llm

import "context"

// Client is the model endpoint contract. Use this interface for dependency
// injection to enable mocking in tests.
type Client interface {
	// GenerateResponse generates a chat completion response.
	GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64) (string, error)

	// CreateEmbedding generates an embedding vector for the input text.
	CreateEmbedding(ctx context.Context, input string) ([]float32, error)

	// Model returns the configured completion model name.
	Model() string
}
