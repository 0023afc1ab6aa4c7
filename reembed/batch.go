// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package reembed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/pke/ai"
	"github.com/poiesic/pke/core"
	"github.com/poiesic/pke/ingestion"
	"github.com/poiesic/pke/storage"
)

// BatchProcessor embeds a batch of records and writes the new vectors back.
type BatchProcessor struct {
	store          storage.VectorWriter
	embedder       ai.Embedder
	maxRetries     int
	retryBaseDelay time.Duration
	callTimeout    time.Duration
	logger         *slog.Logger
}

// NewBatchProcessor creates a new batch processor.
// maxRetries: maximum number of attempts for each embedding call
// retryBaseDelay: base delay for exponential backoff
// callTimeout: bound on each embedding attempt and each write (0 = none)
func NewBatchProcessor(store storage.VectorWriter, embedder ai.Embedder, maxRetries int, retryBaseDelay, callTimeout time.Duration) *BatchProcessor {
	return &BatchProcessor{
		store:          store,
		embedder:       embedder,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
		callTimeout:    callTimeout,
		logger:         slog.Default().With("component", "reembed"),
	}
}

// Process replaces the vectors of records and returns how many were
// written. Vectors are only written when the whole batch embedded
// successfully. A record whose content changed after it was read keeps
// the vector of its newer content and is not counted.
func (bp *BatchProcessor) Process(ctx context.Context, records []*core.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	texts := make([]string, len(records))
	for i, rec := range records {
		texts[i] = ingestion.EmbeddingText(&rec.Note)
	}

	var embeddings [][]float32
	err := ingestion.RetryWithBackoff(ctx, func() error {
		cctx, cancel := bp.callContext(ctx)
		defer cancel()
		var err error
		embeddings, err = bp.embedder.EmbedTexts(cctx, texts)
		if errors.Is(err, core.ErrEmbedding) {
			return ingestion.Permanent(err)
		}
		return err
	}, bp.maxRetries, bp.retryBaseDelay)
	if err != nil {
		if errors.Is(err, core.ErrEmbedding) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %w", core.ErrEmbedding, err)
	}

	if len(embeddings) != len(records) {
		return 0, fmt.Errorf("%w: embedding count mismatch: expected %d, got %d", core.ErrEmbedding, len(records), len(embeddings))
	}
	want := bp.embedder.Dimensions()
	for i, vec := range embeddings {
		if len(vec) != want {
			return 0, fmt.Errorf("%w: %s: vector has %d dimensions, want %d", core.ErrEmbedding, records[i].IdentityKey, len(vec), want)
		}
	}

	updates := make([]storage.VectorUpdate, len(records))
	for i, rec := range records {
		updates[i] = storage.VectorUpdate{
			IdentityKey: rec.IdentityKey,
			ContentHash: rec.ContentHash,
			Vector:      embeddings[i],
		}
	}

	cctx, cancel := bp.callContext(ctx)
	defer cancel()
	written := 0
	var errs []error
	for i, err := range bp.store.ReplaceVectors(cctx, updates) {
		switch {
		case err == nil:
			written++
		case errors.Is(err, storage.ErrStale):
			bp.logger.Debug("record changed during reembedding, keeping newer vector", "key", records[i].IdentityKey)
		default:
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return written, fmt.Errorf("failed to update records: %w", err)
	}
	return written, nil
}

func (bp *BatchProcessor) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if bp.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, bp.callTimeout)
}
