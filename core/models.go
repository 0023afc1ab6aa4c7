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

import "time"

// Note is a single parsed note from an export.
// It is the unit carried by the parsed artifact and handed to ingestion.
type Note struct {
	SourceID   string            `json:"source_id"`             // Export-assigned id or relative path; unique per artifact
	ExternalID string            `json:"external_id,omitempty"` // Explicit identity override
	Title      string            `json:"title"`
	Body       string            `json:"body"`
	Tags       []string          `json:"tags,omitempty"` // Sorted, de-duplicated
	CreatedAt  *time.Time        `json:"created_at,omitempty"`
	UpdatedAt  *time.Time        `json:"updated_at,omitempty"`
	SourcePath string            `json:"source_path"` // Export-relative, forward slashes
	Notebook   string            `json:"notebook,omitempty"`
	Resources  []string          `json:"resources,omitempty"` // Referenced resource ids
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Warning describes an export file that could not be parsed.
type Warning struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Manifest describes how an artifact was produced.
type Manifest struct {
	SchemaVersion string    `json:"schema_version"`
	Parser        string    `json:"parser"`
	ParserVersion string    `json:"parser_version"`
	HashScheme    string    `json:"hash_scheme"`
	SourcePath    string    `json:"source_path"`
	NoteCount     int       `json:"note_count"`
	FilesScanned  int       `json:"files_scanned"`
	FilesSkipped  int       `json:"files_skipped"`
	Warnings      []Warning `json:"warnings,omitempty"`
}

// Artifact is the durable intermediate representation between parse and ingest.
// Notes are kept in canonical order (lexicographic by SourcePath).
type Artifact struct {
	Manifest Manifest `json:"manifest"`
	Notes    []Note   `json:"notes"`
}

// Record is the unit written to storage.
type Record struct {
	IdentityKey string
	Note        Note
	Vector      []float32
	ContentHash string
}

// OutcomeStatus is the per-note result of an ingest run.
type OutcomeStatus string

const (
	OutcomeInserted         OutcomeStatus = "inserted"
	OutcomeUpdated          OutcomeStatus = "updated"
	OutcomeSkippedUnchanged OutcomeStatus = "skipped-unchanged"
	OutcomeSkippedDryRun    OutcomeStatus = "skipped-dry-run"
	OutcomeFailed           OutcomeStatus = "failed"
)

// OutcomeStatuses lists every status in reporting order.
var OutcomeStatuses = []OutcomeStatus{
	OutcomeInserted,
	OutcomeUpdated,
	OutcomeSkippedUnchanged,
	OutcomeSkippedDryRun,
	OutcomeFailed,
}

// Outcome reports what happened to one note during ingestion.
type Outcome struct {
	SourceID    string
	IdentityKey string
	Status      OutcomeStatus
	Reason      string
	Retryable   bool // Set for timeouts and cancellations
}
