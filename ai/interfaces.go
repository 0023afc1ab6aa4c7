package ai

import "context"

// Embedder generates vector embeddings from note text.
// Implementations must be thread-safe for concurrent use and deterministic
// for a given configuration.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// Empty or whitespace-only text yields a zero vector of Dimensions().
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions is the length of every vector this embedder returns.
	Dimensions() int
}
