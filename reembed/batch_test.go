package reembed

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/pke/ai/mock"
	"github.com/poiesic/pke/core"
	"github.com/poiesic/pke/storage"
	"github.com/poiesic/pke/storage/badger"
)

func setupTestStore(t *testing.T) storage.Store {
	t.Helper()
	store, backend, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return store
}

func seedRecords(t *testing.T, store storage.Store, keys ...string) []*core.Record {
	t.Helper()
	recs := make([]*core.Record, len(keys))
	for i, k := range keys {
		recs[i] = &core.Record{
			IdentityKey: k,
			ContentHash: "hash-" + k,
			Note: core.Note{
				SourceID:   k,
				SourcePath: k + ".md",
				Title:      "Title " + k,
				Body:       "Body " + k,
			},
			Vector: []float32{0, 0},
		}
		require.NoError(t, store.Upsert(context.Background(), recs[i]))
	}
	return recs
}

func TestBatchProcessor_Process(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	recs := seedRecords(t, store, "a", "b")

	embedder := mock.NewMockEmbedder()
	processor := NewBatchProcessor(store, embedder, 3, time.Millisecond, time.Second)
	n, err := processor.Process(ctx, recs)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, rec := range recs {
		got, err := store.GetRecord(ctx, rec.IdentityKey)
		require.NoError(t, err)
		assert.Len(t, got.Vector, mock.DefaultDimensions)
		assert.Equal(t, rec.ContentHash, got.ContentHash)
		assert.Equal(t, rec.Note, got.Note)

		want, err := embedder.EmbedText(ctx, "Title "+rec.IdentityKey+"\n\nBody "+rec.IdentityKey)
		require.NoError(t, err)
		assert.Equal(t, want, got.Vector)
	}
	assert.Equal(t, []float32{0, 0}, recs[0].Vector, "input records are not mutated")
}

func TestBatchProcessor_EmptyBatch(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	processor := NewBatchProcessor(setupTestStore(t), embedder, 1, 0, 0)
	n, err := processor.Process(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, embedder.CallCount())
}

func TestBatchProcessor_RetriesThenSucceeds(t *testing.T) {
	store := setupTestStore(t)
	recs := seedRecords(t, store, "a")

	attempts := 0
	embedder := mock.NewMockEmbedder()
	embedder.WithEmbedTextsFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("temporary")
		}
		return [][]float32{make([]float32, mock.DefaultDimensions)}, nil
	})

	processor := NewBatchProcessor(store, embedder, 3, time.Millisecond, 0)
	n, err := processor.Process(context.Background(), recs)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 3, attempts)
}

func TestBatchProcessor_Failures(t *testing.T) {
	tests := []struct {
		name string
		fn   func(ctx context.Context, texts []string) ([][]float32, error)
		want string
	}{
		{
			name: "provider error",
			fn: func(ctx context.Context, texts []string) ([][]float32, error) {
				return nil, errors.New("down")
			},
			want: "down",
		},
		{
			name: "count mismatch",
			fn: func(ctx context.Context, texts []string) ([][]float32, error) {
				return [][]float32{make([]float32, mock.DefaultDimensions)}, nil
			},
			want: "count mismatch",
		},
		{
			name: "dimension mismatch",
			fn: func(ctx context.Context, texts []string) ([][]float32, error) {
				return [][]float32{{1}, {1}}, nil
			},
			want: "1 dimensions",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := setupTestStore(t)
			recs := seedRecords(t, store, "a", "b")
			embedder := mock.NewMockEmbedder().WithEmbedTextsFunc(tt.fn)

			n, err := NewBatchProcessor(store, embedder, 2, time.Millisecond, 0).Process(context.Background(), recs)
			assert.ErrorIs(t, err, core.ErrEmbedding)
			assert.Zero(t, n)
			assert.Contains(t, err.Error(), tt.want)

			got, getErr := store.GetRecord(context.Background(), "a")
			require.NoError(t, getErr)
			assert.Equal(t, []float32{0, 0}, got.Vector, "nothing written on failure")
		})
	}
}

func TestBatchProcessor_ContractErrorNotRetried(t *testing.T) {
	store := setupTestStore(t)
	recs := seedRecords(t, store, "a")

	attempts := 0
	embedder := mock.NewMockEmbedder().WithEmbedTextsFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		attempts++
		return nil, fmt.Errorf("%w: provider returned an empty vector", core.ErrEmbedding)
	})

	_, err := NewBatchProcessor(store, embedder, 5, time.Millisecond, 0).Process(context.Background(), recs)
	assert.ErrorIs(t, err, core.ErrEmbedding)
	assert.Contains(t, err.Error(), "empty vector")
	assert.Equal(t, 1, attempts)
}

func TestBatchProcessor_SkipsRecordsChangedSinceRead(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	recs := seedRecords(t, store, "a", "b")

	newer := *recs[0]
	newer.ContentHash = "hash-a2"
	newer.Note.Body = "Body a, revised"
	newer.Vector = []float32{7, 7}
	require.NoError(t, store.Upsert(ctx, &newer))

	n, err := NewBatchProcessor(store, mock.NewMockEmbedder(), 1, 0, 0).Process(ctx, recs)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.GetRecord(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, &newer, got, "the newer write survives")

	got, err = store.GetRecord(ctx, "b")
	require.NoError(t, err)
	assert.Len(t, got.Vector, mock.DefaultDimensions)
}
