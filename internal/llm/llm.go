package llm

import "context"

// Client defines the interface for text generation providers.
type Client interface {
	// Generate returns the complete response for a prompt.
	Generate(ctx context.Context, prompt string) (string, error)

	// GenerateStream generates a response and streams text deltas through
	// the returned channel. The channel is closed when generation ends.
	GenerateStream(ctx context.Context, prompt string) (<-chan string, error)
}

// Embedder calculates embedding vectors for similarity search.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}
