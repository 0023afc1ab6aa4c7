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


package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/pke/ai"
	"github.com/poiesic/pke/artifact"
	"github.com/poiesic/pke/core"
	"github.com/poiesic/pke/dedup"
	"github.com/poiesic/pke/storage"
)

const (
	DefaultBatchSize   = 32
	DefaultCallTimeout = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 250 * time.Millisecond
)

// Pipeline ingests artifacts into a storage gateway.
// A Pipeline is safe for concurrent Ingest calls; notes sharing an identity
// key are never written concurrently.
type Pipeline struct {
	gateway     storage.Gateway
	embedder    ai.Embedder
	pool        *ants.Pool
	locks       *keyLocker
	batchSize   int
	callTimeout time.Duration
	maxRetries  int
	retryDelay  time.Duration
	progress    io.Writer
	logger      *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for classification and embedding.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		if p.pool != nil {
			p.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithBatchSize sets the default wave size used when IngestOptions leaves
// BatchSize unset.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			return ErrInvalidBatchSize
		}
		p.batchSize = n
		return nil
	}
}

// WithCallTimeout bounds every gateway and embedding call. Zero disables
// the bound.
func WithCallTimeout(d time.Duration) Option {
	return func(p *Pipeline) error {
		if d < 0 {
			d = 0
		}
		p.callTimeout = d
		return nil
	}
}

// WithMaxRetries sets how many attempts an embedding call gets.
func WithMaxRetries(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			return ErrInvalidMaxAttempts
		}
		p.maxRetries = n
		return nil
	}
}

// WithRetryDelay sets the base backoff between embedding attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(p *Pipeline) error {
		if d < 0 {
			d = 0
		}
		p.retryDelay = d
		return nil
	}
}

// WithProgress enables progress output on w.
func WithProgress(w io.Writer) Option {
	return func(p *Pipeline) error {
		p.progress = w
		return nil
	}
}

// NewPipeline creates an ingestion pipeline. gateway may be nil, in which
// case only dry runs are possible and every note classifies as an insert.
func NewPipeline(gateway storage.Gateway, embedder ai.Embedder, opts ...Option) (*Pipeline, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	poolSize := max(runtime.NumCPU()/2, 1)
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		gateway:     gateway,
		embedder:    embedder,
		pool:        pool,
		locks:       newKeyLocker(),
		batchSize:   DefaultBatchSize,
		callTimeout: DefaultCallTimeout,
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}
	p.logger = p.logger.With("component", "ingestion")
	return p, nil
}

// Release frees the worker pool.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

// IngestOptions controls a single run.
type IngestOptions struct {
	// DryRun performs reads and embeddings but never writes.
	DryRun bool

	// Limit caps the number of notes processed, in artifact order.
	// Zero or negative means all notes.
	Limit int

	// BatchSize overrides the pipeline's wave size when positive.
	BatchSize int
}

// workItem carries one note through a wave.
type workItem struct {
	idx    int
	note   *core.Note
	key    string
	hash   string
	action dedup.Action
	record *core.Record
	err    error
}

// Ingest processes the artifact's notes and returns a summary with one
// outcome per processed note, in artifact order. The returned error is
// reserved for conditions detected before any note is touched.
func (p *Pipeline) Ingest(ctx context.Context, a *core.Artifact, opts IngestOptions) (*core.Summary, error) {
	if a == nil {
		return nil, fmt.Errorf("%w: nil artifact", core.ErrIncompatibleArtifact)
	}
	if err := artifact.Validate(a); err != nil {
		return nil, err
	}
	if !opts.DryRun && p.gateway == nil {
		return nil, fmt.Errorf("%w: storage gateway required for a live ingest", core.ErrConfig)
	}

	notes := a.Notes
	if opts.Limit > 0 && opts.Limit < len(notes) {
		notes = notes[:opts.Limit]
	}
	batch := p.batchSize
	if opts.BatchSize > 0 {
		batch = opts.BatchSize
	}

	logger := p.logger.With("dry_run", opts.DryRun)
	logger.Info("ingest started", "notes", len(notes), "batch_size", batch)

	var tracker *ProgressTracker
	if p.progress != nil {
		tracker = NewProgressTracker(p.progress, len(notes), max(len(notes)/20, 1))
		tracker.Start()
		defer tracker.Finish()
	}

	outcomes := make([]core.Outcome, len(notes))
	seen := make(map[string]string, len(notes))
	writes := 0

	for start := 0; start < len(notes); start += batch {
		end := min(start+batch, len(notes))
		if err := ctx.Err(); err != nil {
			for i := start; i < len(notes); i++ {
				outcomes[i] = core.Outcome{
					SourceID:  notes[i].SourceID,
					Status:    core.OutcomeFailed,
					Reason:    err.Error(),
					Retryable: true,
				}
			}
			logger.Warn("ingest interrupted", "remaining", len(notes)-start, "err", err)
			break
		}

		writes += p.runWave(ctx, notes[start:end], outcomes[start:end], seen, opts.DryRun)
		logger.Debug("wave finished", "from", start, "to", end)
		if tracker != nil {
			tracker.Increment(end - start)
		}
	}

	summary := core.NewSummary(opts.DryRun, outcomes, writes)
	logger.Info("ingest finished",
		"processed", summary.Processed,
		"inserted", summary.Count(core.OutcomeInserted),
		"updated", summary.Count(core.OutcomeUpdated),
		"unchanged", summary.Count(core.OutcomeSkippedUnchanged),
		"dry_run_skipped", summary.Count(core.OutcomeSkippedDryRun),
		"failed", summary.Count(core.OutcomeFailed),
		"writes", writes)
	return summary, nil
}

// runWave handles one slice of notes and fills out, which is aligned with
// wave. It returns the number of records written.
func (p *Pipeline) runWave(ctx context.Context, wave []core.Note, out []core.Outcome, seen map[string]string, dryRun bool) int {
	items := make([]*workItem, 0, len(wave))
	keys := make([]string, 0, len(wave))
	for i := range wave {
		note := &wave[i]
		key := dedup.Resolve(note)
		out[i] = core.Outcome{SourceID: note.SourceID, IdentityKey: key}
		if prev, dup := seen[key]; dup {
			out[i].Status = core.OutcomeFailed
			out[i].Reason = fmt.Sprintf("%v: already used by %s", ErrDuplicateIdentity, prev)
			continue
		}
		seen[key] = note.SourceID
		items = append(items, &workItem{idx: i, note: note, key: key})
		keys = append(keys, key)
	}

	unlock := p.locks.lockAll(keys)
	defer unlock()

	var wg sync.WaitGroup
	for _, it := range items {
		wg.Add(1)
		if err := p.pool.Submit(func() {
			defer wg.Done()
			p.prepare(ctx, it)
		}); err != nil {
			wg.Done()
			it.err = err
		}
	}
	wg.Wait()

	var pending []*workItem
	for _, it := range items {
		o := &out[it.idx]
		switch {
		case it.err != nil:
			fail(o, it.err)
			p.logger.Warn("note failed", "source_id", it.note.SourceID, "err", it.err)
		case it.action == dedup.ActionSkipUnchanged:
			o.Status = core.OutcomeSkippedUnchanged
		case dryRun:
			o.Status = core.OutcomeSkippedDryRun
		default:
			pending = append(pending, it)
		}
	}
	if len(pending) == 0 {
		return 0
	}
	return p.write(ctx, pending, out)
}

// prepare classifies a note and, when it must be written, embeds it.
func (p *Pipeline) prepare(ctx context.Context, it *workItem) {
	it.hash = dedup.ContentHash(it.note)

	var existing string
	var found bool
	if p.gateway != nil {
		err := p.call(ctx, func(cctx context.Context) error {
			var err error
			existing, found, err = p.gateway.GetContentHash(cctx, it.key)
			return err
		})
		if err != nil {
			it.err = err
			return
		}
	}

	it.action = dedup.Classify(existing, found, it.hash)
	if it.action == dedup.ActionSkipUnchanged {
		return
	}

	vec, err := p.embed(ctx, EmbeddingText(it.note))
	if err != nil {
		it.err = err
		return
	}
	it.record = &core.Record{
		IdentityKey: it.key,
		Note:        *it.note,
		Vector:      vec,
		ContentHash: it.hash,
	}
}

// embed computes a vector with retries. Each attempt gets its own timeout.
func (p *Pipeline) embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := RetryWithBackoff(ctx, func() error {
		return p.call(ctx, func(cctx context.Context) error {
			v, err := p.embedder.EmbedText(cctx, text)
			if errors.Is(err, core.ErrEmbedding) {
				return Permanent(err)
			}
			if err != nil {
				return err
			}
			if want := p.embedder.Dimensions(); len(v) != want {
				return Permanent(fmt.Errorf("%w: vector has %d dimensions, want %d", core.ErrEmbedding, len(v), want))
			}
			vec = v
			return nil
		})
	}, p.maxRetries, p.retryDelay)
	if err != nil && !errors.Is(err, core.ErrEmbedding) {
		err = fmt.Errorf("%w: %w", core.ErrEmbedding, err)
	}
	return vec, err
}

// write stores the pending records as one group and records outcomes.
func (p *Pipeline) write(ctx context.Context, pending []*workItem, out []core.Outcome) int {
	recs := make([]*core.Record, len(pending))
	for i, it := range pending {
		recs[i] = it.record
	}

	var errs []error
	if bg, ok := p.gateway.(storage.BatchGateway); ok {
		errs = make([]error, len(recs))
		callErr := p.call(ctx, func(cctx context.Context) error {
			copy(errs, bg.UpsertBatch(cctx, recs))
			return nil
		})
		if callErr != nil {
			for i := range errs {
				errs[i] = callErr
			}
		}
	} else {
		errs = make([]error, len(recs))
		for i, rec := range recs {
			errs[i] = p.call(ctx, func(cctx context.Context) error {
				return p.gateway.Upsert(cctx, rec)
			})
		}
	}

	writes := 0
	for i, it := range pending {
		o := &out[it.idx]
		if err := errs[i]; err != nil {
			if !errors.Is(err, core.ErrStorage) {
				err = fmt.Errorf("%w: %w", core.ErrStorage, err)
			}
			fail(o, err)
			p.logger.Warn("write failed", "source_id", it.note.SourceID, "err", err)
			continue
		}
		writes++
		if it.action == dedup.ActionUpdate {
			o.Status = core.OutcomeUpdated
		} else {
			o.Status = core.OutcomeInserted
		}
	}
	return writes
}

// call runs fn under the per-call timeout.
func (p *Pipeline) call(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.callTimeout <= 0 {
		return fn(ctx)
	}
	cctx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()
	return fn(cctx)
}

// EmbeddingText is the text a note's vector is computed from.
func EmbeddingText(note *core.Note) string {
	if note.Title == "" {
		return note.Body
	}
	return note.Title + "\n\n" + note.Body
}

func fail(o *core.Outcome, err error) {
	o.Status = core.OutcomeFailed
	o.Reason = err.Error()
	o.Retryable = isRetryable(err)
}

// isRetryable reports whether a later run could plausibly succeed.
func isRetryable(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
