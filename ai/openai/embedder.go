package openai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/poiesic/pke/ai"
	"github.com/poiesic/pke/core"
)

// Embedder implements ai.Embedder using OpenAI-compatible embedding APIs.
type Embedder struct {
	embedder embeddings.Embedder
	dims     int
	logger   *slog.Logger
}

// newEmbedder is an internal constructor that returns the concrete type.
func newEmbedder(config *ai.Config) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Normalize sets the token to "none" when unset, which local
	// OpenAI-compatible services accept.
	client, err := openai.New(
		openai.WithBaseURL(config.Host),
		openai.WithToken(config.Token),
		openai.WithEmbeddingModel(config.Model),
	)
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}

	return &Embedder{
		embedder: embedder,
		dims:     config.Dimensions,
		logger:   slog.Default().With("component", "openai-embedder", "model", config.Model),
	}, nil
}

// NewEmbedder creates a new embedder using the provided configuration.
//
// Returns ai.Embedder interface to enforce abstraction.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	return newEmbedder(config)
}

// Dimensions implements ai.Embedder.
func (e *Embedder) Dimensions() int {
	return e.dims
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
// Blank texts are not sent to the service; they embed to a zero vector.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var pending []string
	var slots []int
	for i, text := range texts {
		if ai.IsBlank(text) {
			out[i] = ai.ZeroVector(e.dims)
			continue
		}
		pending = append(pending, text)
		slots = append(slots, i)
	}
	if len(pending) == 0 {
		return out, nil
	}

	e.logger.Debug("generating embeddings for texts", "count", len(pending))
	vectors, err := e.embedder.EmbedDocuments(ctx, pending)
	if err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(pending), "err", err)
		return nil, err
	}
	if len(vectors) != len(pending) {
		return nil, fmt.Errorf("%w: requested %d embeddings, received %d",
			core.ErrEmbedding, len(pending), len(vectors))
	}

	for j, vec := range vectors {
		if len(vec) != e.dims {
			return nil, fmt.Errorf("%w: expected %d dimensions, received %d",
				core.ErrEmbedding, e.dims, len(vec))
		}
		out[slots[j]] = vec
	}
	return out, nil
}
