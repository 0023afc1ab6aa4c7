package stub

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/pke/ai"
	"github.com/poiesic/pke/core"
)

func newStub(t *testing.T, opts ...ai.ConfigOption) ai.Embedder {
	t.Helper()
	e, err := NewEmbedder(ai.NewConfig(opts...))
	require.NoError(t, err)
	return e
}

func magnitude(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func TestEmbedText_Deterministic(t *testing.T) {
	e := newStub(t)
	ctx := context.Background()

	v1, err := e.EmbedText(ctx, "Weekly plan")
	require.NoError(t, err)
	v2, err := newStub(t).EmbedText(ctx, "Weekly plan")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Len(t, v1, ai.DefaultDimensions)
	assert.InDelta(t, 1.0, magnitude(v1), 1e-5)
}

func TestEmbedText_InputSensitive(t *testing.T) {
	e := newStub(t)
	ctx := context.Background()

	v1, err := e.EmbedText(ctx, "alpha")
	require.NoError(t, err)
	v2, err := e.EmbedText(ctx, "alphb")
	require.NoError(t, err)
	assert.NotEqual(t, v1, v2)
}

func TestEmbedText_ByteSpread(t *testing.T) {
	e := newStub(t, ai.WithDimensions(2))

	// 'a' = 97 contributes 0, 'b' = 98 contributes 1/97 at index 1.
	v, err := e.EmbedText(context.Background(), "ab")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, v)
}

func TestEmbedText_BlankIsZero(t *testing.T) {
	e := newStub(t, ai.WithDimensions(8))
	for _, text := range []string{"", "   ", "\n\t"} {
		v, err := e.EmbedText(context.Background(), text)
		require.NoError(t, err)
		assert.Equal(t, ai.ZeroVector(8), v)
	}
}

func TestEmbedTexts_MatchesSingle(t *testing.T) {
	e := newStub(t)
	ctx := context.Background()
	texts := []string{"one", "", "three"}

	batch, err := e.EmbedTexts(ctx, texts)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	for i, text := range texts {
		single, err := e.EmbedText(ctx, text)
		require.NoError(t, err)
		assert.Equal(t, single, batch[i])
	}
}

func TestEmbedText_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newStub(t).EmbedText(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewEmbedder_InvalidConfig(t *testing.T) {
	_, err := NewEmbedder(ai.NewConfig(ai.WithDimensions(0)))
	assert.ErrorIs(t, err, core.ErrConfig)
}
