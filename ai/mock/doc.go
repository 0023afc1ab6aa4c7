// Package mock provides a test double for ai.Embedder.
//
// The mock lets tests run without an embedding service and with fully
// controlled behavior.
//
// # Usage in Tests
//
//	// Default deterministic vectors
//	embedder := mock.NewMockEmbedder()
//	vec, err := embedder.EmbedText(ctx, "test")
//
//	// Custom behavior injection
//	embedder := mock.NewMockEmbedder().
//	    WithEmbedTextFunc(func(ctx context.Context, text string) ([]float32, error) {
//	        return nil, errors.New("provider down")
//	    })
//
//	// Check call counts
//	count := embedder.CallCount()
//
// MockEmbedder is safe for concurrent use.
package mock
