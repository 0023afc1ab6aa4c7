package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/pke/ai"
	"github.com/poiesic/pke/core"
)

// fakeEmbeddingServer answers OpenAI embedding requests with vectors of
// the given length whose first element is the input index.
func fakeEmbeddingServer(t *testing.T, dims int, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, len(req.Input))
		for i := range req.Input {
			vec := make([]float32, dims)
			vec[0] = float32(i + 1)
			data[i] = item{Object: "embedding", Embedding: vec, Index: i}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestEmbedder(t *testing.T, host string, dims int) ai.Embedder {
	t.Helper()
	e, err := NewEmbedder(ai.NewConfig(
		ai.WithProvider(ai.ProviderOpenAI),
		ai.WithHost(host),
		ai.WithModel("test-embed"),
		ai.WithDimensions(dims),
	))
	require.NoError(t, err)
	return e
}

func TestEmbedTexts(t *testing.T) {
	var calls atomic.Int32
	srv := fakeEmbeddingServer(t, 4, &calls)
	e := newTestEmbedder(t, srv.URL, 4)

	vecs, err := e.EmbedTexts(context.Background(), []string{"one", "  ", "two"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	assert.Equal(t, []float32{1, 0, 0, 0}, vecs[0])
	assert.Equal(t, ai.ZeroVector(4), vecs[1])
	assert.Equal(t, []float32{2, 0, 0, 0}, vecs[2])
	assert.Equal(t, int32(1), calls.Load())
}

func TestEmbedText_BlankSkipsService(t *testing.T) {
	var calls atomic.Int32
	srv := fakeEmbeddingServer(t, 4, &calls)
	e := newTestEmbedder(t, srv.URL, 4)

	vec, err := e.EmbedText(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, ai.ZeroVector(4), vec)
	assert.Equal(t, int32(0), calls.Load())
}

func TestEmbedText_DimensionMismatch(t *testing.T) {
	var calls atomic.Int32
	srv := fakeEmbeddingServer(t, 3, &calls)
	e := newTestEmbedder(t, srv.URL, 4)

	_, err := e.EmbedText(context.Background(), "hello")
	assert.ErrorIs(t, err, core.ErrEmbedding)
}

func TestEmbedText_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	e := newTestEmbedder(t, srv.URL, 4)

	_, err := e.EmbedText(context.Background(), "hello")
	assert.Error(t, err)
}

func TestNewEmbedder_InvalidConfig(t *testing.T) {
	_, err := NewEmbedder(ai.NewConfig(ai.WithProvider(ai.ProviderOpenAI), ai.WithModel("")))
	assert.ErrorIs(t, err, core.ErrConfig)
}

func TestEmbedder_Dimensions(t *testing.T) {
	e := newTestEmbedder(t, "http://localhost:1", 12)
	assert.Equal(t, 12, e.Dimensions())
}
