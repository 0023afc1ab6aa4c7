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


package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/poiesic/pke/storage"
)

const (
	// Badger requires a block index cache when encryption is enabled.
	encryptedIndexCacheSize = 64 << 20
)

// ErrStoreNotFound indicates that a read-only open found no store at the path.
var ErrStoreNotFound = errors.New("store not found")

// Backend wraps a BadgerDB instance and provides low-level operations.
type Backend struct {
	db       *badger.DB
	logger   *slog.Logger
	readOnly bool
}

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Info(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// BackendOption configures OpenBackend.
type BackendOption func(*backendOptions)

type backendOptions struct {
	encryptionKey []byte
	logger        *slog.Logger
	readOnly      bool
}

// WithEncryptionKey enables encryption at rest. The key must be 16, 24 or
// 32 bytes (AES-128, AES-192, AES-256). An existing encrypted store can
// only be reopened with the same key.
func WithEncryptionKey(key []byte) BackendOption {
	return func(o *backendOptions) {
		o.encryptionKey = key
	}
}

// WithBackendLogger routes badger's internal logging to logger.
func WithBackendLogger(logger *slog.Logger) BackendOption {
	return func(o *backendOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithReadOnly opens an existing on-disk store without creating or
// modifying anything. Opening a path that holds no store fails with
// ErrStoreNotFound. Ignored for in-memory stores.
func WithReadOnly() BackendOption {
	return func(o *backendOptions) {
		o.readOnly = true
	}
}

// OpenBackend opens a BadgerDB database at the specified path.
// Creates the directory if it doesn't exist, unless opened read-only.
func OpenBackend(filePath string, inMemory bool, opts ...BackendOption) (*Backend, error) {
	bo := &backendOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(bo)
	}

	readOnly := bo.readOnly && !inMemory

	var bopts badger.Options
	switch {
	case inMemory:
		bopts = badger.DefaultOptions("").WithInMemory(true)
	case readOnly:
		if _, err := os.Stat(filepath.Join(filePath, badger.ManifestFilename)); err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %s", ErrStoreNotFound, filePath)
			}
			return nil, err
		}
		bopts = badger.DefaultOptions(filePath).WithReadOnly(true)
	default:
		info, err := os.Stat(filePath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
			if err := os.MkdirAll(filePath, 0o755); err != nil {
				return nil, err
			}
			if info, err = os.Stat(filePath); err != nil {
				return nil, err
			}
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", filePath)
		}
		bopts = badger.DefaultOptions(filePath)
	}

	logger := bo.logger.With("component", "badger")
	bopts.Logger = &badgerLoggerAdapter{logger: logger}
	bopts.Compression = options.None
	if len(bo.encryptionKey) > 0 {
		bopts = bopts.
			WithEncryptionKey(bo.encryptionKey).
			WithIndexCacheSize(encryptedIndexCacheSize)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, err
	}

	logger.Debug("store opened", "path", filePath, "in_memory", inMemory, "read_only", readOnly, "encrypted", len(bo.encryptionKey) > 0)
	return &Backend{
		db:       db,
		logger:   logger,
		readOnly: readOnly,
	}, nil
}

// ReadOnly reports whether the store was opened read-only.
func (b *Backend) ReadOnly() bool {
	return b.readOnly
}

// Close closes the BadgerDB database.
func (b *Backend) Close() error {
	return b.db.Close()
}

// IsClosed returns true if the database is closed.
func (b *Backend) IsClosed() bool {
	return b.db.IsClosed()
}

// WithTx executes a function within a BadgerDB transaction.
// If isWrite is true, creates a read-write transaction.
// The transaction is automatically discarded if fn returns an error.
func (b *Backend) WithTx(fn func(tx *badger.Txn) error, isWrite bool) error {
	if b.db.IsClosed() {
		return storage.ErrStorageClosed
	}
	tx := b.db.NewTransaction(isWrite)
	defer tx.Discard()
	return fn(tx)
}

// WithTransaction executes fn within a write transaction and commits it
// when fn succeeds.
func (b *Backend) WithTransaction(ctx context.Context, fn func(tx *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.WithTx(func(tx *badger.Txn) error {
		if err := fn(tx); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return errors.Join(storage.ErrTransactionFailed, err)
		}
		return nil
	}, true)
}
