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


// Package pke wires parsers, embedders, storage and the ingestion pipeline
// together from a single configuration.
package pke

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/poiesic/pke/ai"
	"github.com/poiesic/pke/ai/openai"
	"github.com/poiesic/pke/ai/stub"
	"github.com/poiesic/pke/artifact"
	"github.com/poiesic/pke/config"
	"github.com/poiesic/pke/core"
	"github.com/poiesic/pke/ingestion"
	"github.com/poiesic/pke/parser"
	"github.com/poiesic/pke/reembed"
	"github.com/poiesic/pke/storage"
	"github.com/poiesic/pke/storage/badger"
)

// NewEmbedder returns the embedder variant named by cfg.Provider.
func NewEmbedder(cfg *ai.Config) (ai.Embedder, error) {
	if cfg == nil {
		cfg = ai.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Provider {
	case ai.ProviderStub:
		return stub.NewEmbedder(cfg)
	case ai.ProviderOpenAI:
		return openai.NewEmbedder(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", core.ErrConfig, cfg.Provider)
	}
}

// NewParser returns the export parser registered under name.
func NewParser(name string, opts ...parser.Option) (parser.Parser, error) {
	switch name {
	case "", parser.JoplinParserName:
		return parser.NewJoplinExportParser(opts...)
	default:
		return nil, fmt.Errorf("%w: unknown parser %q", core.ErrConfig, name)
	}
}

// ParseExport parses the export at root and writes the artifact to out.
// Nothing is written when parsing fails.
func ParseExport(ctx context.Context, p parser.Parser, root, out string) (*core.Artifact, error) {
	a, err := p.Parse(ctx, root)
	if err != nil {
		return nil, err
	}
	if err := artifact.Write(a, out); err != nil {
		return nil, err
	}
	return a, nil
}

// Engine owns the store and embedder built from a Config.
type Engine struct {
	cfg      *config.Config
	backend  *badger.Backend
	store    storage.Store
	embedder ai.Embedder
	logger   *slog.Logger
	readOnly bool
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	logger   *slog.Logger
	embedder ai.Embedder
	inMemory bool
	readOnly bool
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithEmbedder overrides the embedder selected by the configuration.
func WithEmbedder(embedder ai.Embedder) EngineOption {
	return func(o *engineOptions) {
		o.embedder = embedder
	}
}

// WithInMemoryStore opens a non-persistent store regardless of StorePath.
func WithInMemoryStore() EngineOption {
	return func(o *engineOptions) {
		o.inMemory = true
	}
}

// WithReadOnlyStore opens the store at cfg.StorePath without creating or
// writing anything. When no store exists there yet the engine runs without
// one, which is what a dry run against a fresh path needs.
func WithReadOnlyStore() EngineOption {
	return func(o *engineOptions) {
		o.readOnly = true
	}
}

// Open builds an Engine. A store is opened only when cfg.StorePath is set
// (or an in-memory store is requested); without one the engine supports
// dry runs only.
func Open(cfg *config.Config, opts ...EngineOption) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &engineOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}

	e := &Engine{cfg: cfg, logger: options.logger, readOnly: options.readOnly && !options.inMemory}

	e.embedder = options.embedder
	if e.embedder == nil {
		embedder, err := NewEmbedder(cfg.AI)
		if err != nil {
			return nil, err
		}
		e.embedder = embedder
	}

	if cfg.StorePath != "" || options.inMemory {
		backendOpts := []badger.BackendOption{badger.WithBackendLogger(options.logger)}
		if cfg.Encrypted() {
			backendOpts = append(backendOpts, badger.WithEncryptionKey([]byte(cfg.StoreKey)))
		}
		if e.readOnly {
			backendOpts = append(backendOpts, badger.WithReadOnly())
		}
		backend, err := badger.OpenBackend(cfg.StorePath, options.inMemory, backendOpts...)
		if errors.Is(err, badger.ErrStoreNotFound) {
			e.logger.Info("no store at path yet, running without one", "path", cfg.StorePath)
			return e, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: opening store: %w", core.ErrStorage, err)
		}
		store, err := badger.NewNoteStore(backend)
		if err != nil {
			backend.Close()
			return nil, err
		}
		e.backend = backend
		e.store = store
	}
	return e, nil
}

// Store returns the note store, or nil when none was opened.
func (e *Engine) Store() storage.Store {
	return e.store
}

// Embedder returns the configured embedder.
func (e *Engine) Embedder() ai.Embedder {
	return e.embedder
}

// NewPipeline creates an ingestion pipeline using the engine's store and
// embedder. Options derived from the configuration are applied first.
func (e *Engine) NewPipeline(opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	base := []ingestion.Option{
		ingestion.WithLogger(e.logger),
		ingestion.WithPoolSize(e.cfg.Concurrency),
		ingestion.WithBatchSize(e.cfg.BatchSize),
		ingestion.WithCallTimeout(e.cfg.CallTimeout),
		ingestion.WithMaxRetries(e.cfg.MaxRetries),
	}
	var gateway storage.Gateway
	if e.store != nil {
		gateway = e.store
	}
	return ingestion.NewPipeline(gateway, e.embedder, append(base, opts...)...)
}

// NewReembedder creates a reembedder over the engine's store. Progress is
// written to progress when non-nil.
func (e *Engine) NewReembedder(progress io.Writer) (*reembed.Reembedder, error) {
	if e.store == nil {
		return nil, fmt.Errorf("%w: %s is required to reembed", core.ErrConfig, config.EnvStorePath)
	}
	if e.readOnly {
		return nil, fmt.Errorf("%w: store is open read-only", core.ErrConfig)
	}
	rc := reembed.DefaultConfig()
	rc.BatchSize = e.cfg.BatchSize
	rc.MaxRetries = e.cfg.MaxRetries
	rc.CallTimeout = e.cfg.CallTimeout
	return reembed.NewReembedder(e.store, e.embedder, rc, progress)
}

// Close releases the store. Closing twice is a no-op.
func (e *Engine) Close() error {
	if e.backend == nil {
		return nil
	}
	backend := e.backend
	e.backend = nil
	if err := backend.Close(); err != nil {
		e.logger.Error("error closing backend storage", "err", err)
		return errors.Join(core.ErrStorage, err)
	}
	return nil
}
