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

	"github.com/dgraph-io/badger/v4"

	"github.com/poiesic/pke/core"
	"github.com/poiesic/pke/dedup"
	"github.com/poiesic/pke/storage"
)

// StoreSchema identifies the record layout and hash scheme of a store.
// It is written once when a store is first used and checked on every open.
// A read-only open of a store that never recorded one accepts it as is.
var StoreSchema = fmt.Sprintf("pke.store/v%d %s", storage.RecordFormatVersion, dedup.HashScheme)

// ErrSchemaMismatch indicates a store written with an incompatible layout.
var ErrSchemaMismatch = errors.New("store schema mismatch")

// replaceAttempts bounds how often a vector batch is re-evaluated after a
// transaction conflict.
const replaceAttempts = 3

// NoteStore implements storage.Store for BadgerDB.
// Each record is written together with its content hash index entry in a
// single transaction, so readers never observe one without the other.
type NoteStore struct {
	backend *Backend
	logger  *slog.Logger
}

var _ storage.Store = (*NoteStore)(nil)

// newNoteStore is an internal constructor that returns the concrete type.
func newNoteStore(backend *Backend) (*NoteStore, error) {
	s := &NoteStore{
		backend: backend,
		logger:  backend.logger.With("component", "note-store"),
	}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewNoteStore creates a note store on top of an open backend.
// The backend remains owned by the caller.
//
// Returns storage.Store interface to enforce abstraction.
func NewNoteStore(backend *Backend) (storage.Store, error) {
	return newNoteStore(backend)
}

func (s *NoteStore) ensureSchema() error {
	var existing string
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte(schemaKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		existing = string(val)
		return err
	}, false)
	if err != nil {
		return wrapStorageErr(err)
	}

	switch existing {
	case StoreSchema:
		return nil
	case "":
		if s.backend.readOnly {
			return nil
		}
		return wrapStorageErr(s.backend.WithTransaction(context.Background(), func(tx *badger.Txn) error {
			return tx.Set([]byte(schemaKey), []byte(StoreSchema))
		}))
	default:
		return fmt.Errorf("%w: %w: found %q, want %q", core.ErrStorage, ErrSchemaMismatch, existing, StoreSchema)
	}
}

// GetContentHash implements storage.Gateway.
func (s *NoteStore) GetContentHash(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, wrapStorageErr(err)
	}

	var hash string
	found := false
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeNoteHashKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		hash = string(val)
		found = true
		return nil
	}, false)
	if err != nil {
		return "", false, wrapStorageErr(err)
	}
	return hash, found, nil
}

// Upsert implements storage.Gateway.
func (s *NoteStore) Upsert(ctx context.Context, rec *core.Record) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	err := s.backend.WithTransaction(ctx, func(tx *badger.Txn) error {
		return setRecord(tx, rec)
	})
	if err != nil {
		return wrapStorageErr(err)
	}
	s.logger.Debug("record upserted", "key", rec.IdentityKey, "source_id", rec.Note.SourceID)
	return nil
}

// UpsertBatch implements storage.BatchGateway.
// The group is first attempted as one transaction. If that fails, for
// example because it exceeds badger's transaction size, each record is
// retried in its own transaction so one bad record cannot sink the rest.
func (s *NoteStore) UpsertBatch(ctx context.Context, recs []*core.Record) []error {
	errs := make([]error, len(recs))
	valid := make([]*core.Record, 0, len(recs))
	for i, rec := range recs {
		if err := validateRecord(rec); err != nil {
			errs[i] = err
			continue
		}
		valid = append(valid, rec)
	}
	if len(valid) == 0 {
		return errs
	}

	err := s.backend.WithTransaction(ctx, func(tx *badger.Txn) error {
		for _, rec := range valid {
			if err := setRecord(tx, rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		s.logger.Debug("record batch upserted", "count", len(valid))
		return errs
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		for i := range recs {
			if errs[i] == nil {
				errs[i] = wrapStorageErr(ctxErr)
			}
		}
		return errs
	}

	s.logger.Warn("batch upsert failed, retrying records individually", "count", len(valid), "err", err)
	for i, rec := range recs {
		if errs[i] != nil {
			continue
		}
		errs[i] = s.Upsert(ctx, rec)
	}
	return errs
}

// GetRecord implements storage.RecordReader.
func (s *NoteStore) GetRecord(ctx context.Context, key string) (*core.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapStorageErr(err)
	}

	var rec *core.Record
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		rec, err = loadRecord(tx, key)
		return err
	}, false)
	if err != nil {
		return nil, wrapStorageErr(err)
	}
	return rec, nil
}

// ReplaceVectors implements storage.VectorWriter.
// Every update is checked and applied in one transaction. Badger rejects
// the commit when a concurrent write touched a record read here; the batch
// is then re-evaluated, so a record rewritten in between reports ErrStale
// instead of being overwritten with an old note.
func (s *NoteStore) ReplaceVectors(ctx context.Context, updates []storage.VectorUpdate) []error {
	errs := make([]error, len(updates))
	if len(updates) == 0 {
		return errs
	}

	var err error
	for attempt := 1; attempt <= replaceAttempts; attempt++ {
		clear(errs)
		err = s.backend.WithTransaction(ctx, func(tx *badger.Txn) error {
			for i, u := range updates {
				rec, err := loadRecord(tx, u.IdentityKey)
				if errors.Is(err, storage.ErrNotFound) {
					errs[i] = fmt.Errorf("%w: %w: %s is no longer stored", core.ErrStorage, storage.ErrStale, u.IdentityKey)
					continue
				}
				if err != nil {
					return err
				}
				if rec.ContentHash != u.ContentHash {
					errs[i] = fmt.Errorf("%w: %w: %s changed since it was read", core.ErrStorage, storage.ErrStale, u.IdentityKey)
					continue
				}
				rec.Vector = u.Vector
				if err := setRecord(tx, rec); err != nil {
					return err
				}
			}
			return nil
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
		s.logger.Debug("vector replace conflicted with a concurrent write", "attempt", attempt, "count", len(updates))
	}

	if err != nil {
		for i := range errs {
			if errs[i] == nil {
				errs[i] = wrapStorageErr(err)
			}
		}
		return errs
	}
	s.logger.Debug("vectors replaced", "count", len(updates))
	return errs
}

// CountRecords implements storage.RecordReader.
func (s *NoteStore) CountRecords(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, wrapStorageErr(err)
	}

	count := 0
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(noteRecordPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	if err != nil {
		return 0, wrapStorageErr(err)
	}
	return count, nil
}

// ForEachRecord implements storage.RecordScanner. Batches are read from a
// single snapshot; writes made by fn are not observed by later batches.
func (s *NoteStore) ForEachRecord(ctx context.Context, batchSize int, fn func([]*core.Record) error) error {
	if batchSize < 1 {
		batchSize = 1
	}
	var fnErr error
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchSize = batchSize
		opts.Prefix = []byte(noteRecordPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		batch := make([]*core.Record, 0, batchSize)
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			if err := fn(batch); err != nil {
				fnErr = err
				return err
			}
			batch = make([]*core.Record, 0, batchSize)
			return nil
		}

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec *core.Record
			err := iter.Item().Value(func(val []byte) error {
				var unmarshalErr error
				rec, unmarshalErr = storage.UnmarshalRecord(val)
				return unmarshalErr
			})
			if err != nil {
				return err
			}
			batch = append(batch, rec)
			if len(batch) == batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		return flush()
	}, false)
	if fnErr != nil {
		return fnErr
	}
	return wrapStorageErr(err)
}

func loadRecord(tx *badger.Txn, key string) (*core.Record, error) {
	item, err := tx.Get(makeNoteKey(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	var rec *core.Record
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		rec, unmarshalErr = storage.UnmarshalRecord(val)
		return unmarshalErr
	})
	return rec, err
}

func setRecord(tx *badger.Txn, rec *core.Record) error {
	if err := tx.Set(makeNoteKey(rec.IdentityKey), storage.MarshalRecord(rec)); err != nil {
		return err
	}
	return tx.Set(makeNoteHashKey(rec.IdentityKey), []byte(rec.ContentHash))
}

func validateRecord(rec *core.Record) error {
	switch {
	case rec == nil:
		return fmt.Errorf("%w: %w: record is nil", core.ErrStorage, storage.ErrInvalidRecord)
	case rec.IdentityKey == "":
		return fmt.Errorf("%w: %w: empty identity key", core.ErrStorage, storage.ErrInvalidRecord)
	case rec.ContentHash == "":
		return fmt.Errorf("%w: %w: empty content hash for %s", core.ErrStorage, storage.ErrInvalidRecord, rec.IdentityKey)
	}
	return nil
}

func wrapStorageErr(err error) error {
	if err == nil || errors.Is(err, core.ErrStorage) {
		return err
	}
	return fmt.Errorf("%w: %w", core.ErrStorage, err)
}
