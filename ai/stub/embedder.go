// Package stub provides an offline, deterministic ai.Embedder.
//
// Each byte of the UTF-8 input adds (b mod 97)/97 to position i mod
// Dimensions, and the result is scaled to unit length. The vectors carry
// no semantic meaning; they exist so ingestion can run end to end without
// network access while still producing input-sensitive, reproducible
// embeddings.
package stub

import (
	"context"

	"github.com/poiesic/pke/ai"
)

// Embedder implements ai.Embedder without any external service.
type Embedder struct {
	dims int
}

// NewEmbedder creates a stub embedder. The vector length comes from
// config.Dimensions.
//
// Returns ai.Embedder interface to enforce abstraction.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Embedder{dims: config.Dimensions}, nil
}

// EmbedText implements ai.Embedder.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.embed(text), nil
}

// EmbedTexts implements ai.Embedder.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.embed(text)
	}
	return out, nil
}

// Dimensions implements ai.Embedder.
func (e *Embedder) Dimensions() int {
	return e.dims
}

func (e *Embedder) embed(text string) []float32 {
	if ai.IsBlank(text) {
		return ai.ZeroVector(e.dims)
	}
	vec := make([]float32, e.dims)
	for i := 0; i < len(text); i++ {
		vec[i%e.dims] += float32(text[i]%97) / 97
	}
	return ai.NormalizeVector(vec)
}
