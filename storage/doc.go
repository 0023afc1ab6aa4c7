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


// Package storage provides the storage abstraction layer for ingested notes.
//
// This package defines the Gateway interface that decouples the ingestion
// pipeline from the persistent store. The pipeline only ever asks two
// questions: what content hash is stored for an identity key, and please
// upsert this record.
//
// # Constructor Return Type Pattern
//
// Public backend constructors return interface types to enforce
// abstraction:
//
//	store, err := badger.NewNoteStore(backend)  // returns storage.Store
//
// # Architecture
//
//   - Gateway: Lookup by identity key and single-record upsert
//   - BatchGateway: Gateway plus grouped upserts
//   - RecordReader: Full record reads for audits and tests
//   - RecordScanner: Batched iteration over every stored record
//   - Store: BatchGateway, RecordReader and RecordScanner
//
// Records are encoded with MUS (see MarshalRecord). Errors surfaced to
// callers wrap core.ErrStorage so the pipeline can classify them as
// per-note failures.
//
// # Usage
//
//	backend, err := badger.OpenBackend("/path/to/db", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//
//	store, err := badger.NewNoteStore(backend)
//
// Use in tests with in-memory storage:
//
//	store, backend, err := badger.NewMemoryStore()
//	defer backend.Close()
//
// # Thread Safety
//
// All implementations must be thread-safe and support concurrent access
// from multiple goroutines.
package storage
