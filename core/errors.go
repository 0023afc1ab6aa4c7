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

package core

import "errors"

// Stage-fatal errors. Any of these stops the current stage before or
// instead of producing output.
var (
	// ErrParse indicates the export could not be parsed as a whole
	// (bad root path, duplicate source id).
	ErrParse = errors.New("parse error")

	// ErrIncompatibleArtifact indicates an artifact that is unreadable,
	// unversioned, or of an unknown schema version.
	ErrIncompatibleArtifact = errors.New("incompatible artifact")

	// ErrConfig indicates missing or invalid configuration.
	ErrConfig = errors.New("configuration error")
)

// Per-note errors. These are recorded as failed outcomes and never abort a run.
var (
	// ErrEmbedding indicates the embedding provider failed for a note.
	ErrEmbedding = errors.New("embedding error")

	// ErrStorage indicates the storage gateway failed for a note.
	ErrStorage = errors.New("storage error")
)

// Validation errors.
var (
	// ErrInvalidNote indicates a Note failed validation.
	ErrInvalidNote = errors.New("invalid note")

	// ErrEmptySourceID indicates the SourceID field is empty.
	ErrEmptySourceID = errors.New("source id cannot be empty")

	// ErrEmptySourcePath indicates the SourcePath field is empty.
	ErrEmptySourcePath = errors.New("source path cannot be empty")

	// ErrDuplicateSourceID indicates two notes share a SourceID.
	ErrDuplicateSourceID = errors.New("duplicate source id")
)
