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


package storage

import (
	"context"

	"github.com/poiesic/pke/core"
)

// Gateway is the persistence boundary used by ingestion. It exposes only
// lookup by identity key and upsert.
// Implementations must be thread-safe and support concurrent access.
// Errors returned from both methods wrap core.ErrStorage.
type Gateway interface {
	// GetContentHash returns the content hash stored for key.
	// found is false when no record exists under key.
	GetContentHash(ctx context.Context, key string) (hash string, found bool, err error)

	// Upsert creates or replaces the record stored under rec.IdentityKey.
	// The record and its content hash are written atomically.
	Upsert(ctx context.Context, rec *core.Record) error
}

// BatchGateway is implemented by gateways that can write a group of
// records together. The returned slice has one entry per record; a nil
// entry means the record was written.
type BatchGateway interface {
	Gateway
	UpsertBatch(ctx context.Context, recs []*core.Record) []error
}

// RecordReader reads back full stored records.
type RecordReader interface {
	// GetRecord returns the record stored under key.
	// Returns an error wrapping ErrNotFound if no record exists.
	GetRecord(ctx context.Context, key string) (*core.Record, error)

	// CountRecords returns the number of stored records.
	CountRecords(ctx context.Context) (int, error)
}

// RecordScanner walks every stored record in identity key order.
type RecordScanner interface {
	// ForEachRecord calls fn with consecutive batches of at most batchSize
	// records. Iteration stops at the first error returned by fn.
	ForEachRecord(ctx context.Context, batchSize int, fn func([]*core.Record) error) error
}

// VectorUpdate is a new vector for the record stored under IdentityKey,
// computed from the content identified by ContentHash.
type VectorUpdate struct {
	IdentityKey string
	ContentHash string
	Vector      []float32
}

// VectorWriter replaces the vectors of stored records without touching
// their notes.
type VectorWriter interface {
	// ReplaceVectors applies each update whose record still carries the
	// expected content hash. Updates for records that changed or vanished
	// since the hash was read report an error wrapping ErrStale and are
	// not applied. The returned slice has one entry per update.
	ReplaceVectors(ctx context.Context, updates []VectorUpdate) []error
}

// Store is a BatchGateway that can also read, scan and re-vector records.
type Store interface {
	BatchGateway
	RecordReader
	RecordScanner
	VectorWriter
}
