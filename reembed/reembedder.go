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
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/pke/ai"
	"github.com/poiesic/pke/core"
	"github.com/poiesic/pke/ingestion"
	"github.com/poiesic/pke/storage"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of records to process in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of records)
	ReportInterval int

	// MaxRetries is the maximum number of attempts for each embedding call
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// CallTimeout bounds each embedding attempt and each write
	CallTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      ingestion.DefaultBatchSize,
		ReportInterval: 100,
		MaxRetries:     ingestion.DefaultMaxRetries,
		RetryDelay:     time.Second,
		CallTimeout:    ingestion.DefaultCallTimeout,
	}
}

// Reembedder orchestrates the reembedding of every record in a store.
type Reembedder struct {
	store     storage.Store
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	logger    *slog.Logger
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(store storage.Store, embedder ai.Embedder, config *Config, progress io.Writer) (*Reembedder, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxRetries < 1 {
		return nil, ingestion.ErrInvalidMaxAttempts
	}
	if config.BatchSize < 1 {
		return nil, ingestion.ErrInvalidBatchSize
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reembedder{
		store:     store,
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(store, embedder, config.MaxRetries, config.RetryDelay, config.CallTimeout),
		logger:    slog.Default().With("component", "reembed"),
	}, nil
}

// Run reembeds every stored record and returns how many were rewritten.
// Records rewritten by a concurrent ingest while the run is in flight are
// left as the ingest wrote them.
// The first failing batch stops the run; earlier batches stay written.
func (r *Reembedder) Run(ctx context.Context) (int, error) {
	total, err := r.store.CountRecords(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	if total == 0 {
		fmt.Fprintf(r.progress, "No records found in store (0 records)\n")
		return 0, nil
	}

	fmt.Fprintf(r.progress, "Starting reembedding of %d records (batch size: %d)\n", total, r.config.BatchSize)

	tracker := ingestion.NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	processed, skipped := 0, 0
	err = r.store.ForEachRecord(ctx, r.config.BatchSize, func(records []*core.Record) error {
		written, err := r.processor.Process(ctx, records)
		processed += written
		if err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}
		skipped += len(records) - written
		tracker.Increment(len(records))
		r.logger.Debug("batch reembedded", "records", written, "processed", processed)
		return nil
	})
	elapsed := tracker.Elapsed()
	tracker.Finish()
	if err != nil {
		return processed, err
	}

	rate := 0.0
	if secs := elapsed.Seconds(); secs > 0 {
		rate = float64(processed) / secs
	}
	fmt.Fprintf(r.progress, "Reembedding complete. Processed %d records in %v (%.1f records/sec)\n",
		processed, elapsed.Round(time.Millisecond), rate)
	if skipped > 0 {
		fmt.Fprintf(r.progress, "Skipped %d records that changed during reembedding\n", skipped)
	}
	r.logger.Info("reembedding complete", "records", processed, "skipped", skipped)
	return processed, nil
}
