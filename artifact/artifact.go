// Package artifact persists parsed notes as a versioned, human-readable
// JSON document and reads them back for ingestion.
//
// The artifact is the contract between the parse and ingest stages. Every
// written artifact carries SchemaVersion and Read refuses anything else.
package artifact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/poiesic/pke/core"
	"github.com/poiesic/pke/dedup"
)

const (
	// SchemaVersion identifies the artifact layout written by this package.
	SchemaVersion = "pke.artifact/v1"

	// DefaultPath is where the CLI writes and reads artifacts by default.
	DefaultPath = "artifacts/parsed/parsed_notes.json"
)

var supportedVersions = map[string]struct{}{
	SchemaVersion: {},
}

// Stamp fills the manifest fields owned by the artifact format: schema
// version, hash scheme and note count.
func Stamp(a *core.Artifact) {
	a.Manifest.SchemaVersion = SchemaVersion
	if a.Manifest.HashScheme == "" {
		a.Manifest.HashScheme = dedup.HashScheme
	}
	a.Manifest.NoteCount = len(a.Notes)
	if a.Notes == nil {
		a.Notes = []core.Note{}
	}
}

// Write stamps a in place and writes it to path. The file is written to a
// temporary sibling and renamed into place so an existing artifact is
// never left half written. Parent directories are created as needed.
//
// Empty tag, resource and metadata collections are omitted from the
// document and read back as nil. Reading the file therefore yields a value
// equal to the stamped a when those collections are nil rather than empty,
// which is how parsers build notes.
func Write(a *core.Artifact, path string) error {
	if a == nil {
		return fmt.Errorf("%w: artifact is nil", core.ErrIncompatibleArtifact)
	}
	if err := core.ValidateNotes(a.Notes); err != nil {
		return fmt.Errorf("%w: %w", core.ErrIncompatibleArtifact, err)
	}
	Stamp(a)

	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding artifact: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating artifact directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp artifact: %w", err)
	}
	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("writing artifact: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("writing artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("writing artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("finalizing artifact: %w", err)
	}
	success = true
	return nil
}

// Read loads and validates the artifact at path. Any problem with the
// file, its version or its contents is reported as
// core.ErrIncompatibleArtifact.
func Read(path string) (*core.Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrIncompatibleArtifact, err)
	}
	return Decode(data)
}

// Decode validates and decodes an artifact document.
func Decode(data []byte) (*core.Artifact, error) {
	var header struct {
		Manifest struct {
			SchemaVersion string `json:"schema_version"`
		} `json:"manifest"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrIncompatibleArtifact, err)
	}
	version := header.Manifest.SchemaVersion
	if version == "" {
		return nil, fmt.Errorf("%w: missing schema version", core.ErrIncompatibleArtifact)
	}
	if _, ok := supportedVersions[version]; !ok {
		return nil, fmt.Errorf("%w: unsupported schema version %q", core.ErrIncompatibleArtifact, version)
	}

	var a core.Artifact
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&a); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrIncompatibleArtifact, err)
	}
	if err := Validate(&a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Validate checks the structural properties ingestion relies on.
func Validate(a *core.Artifact) error {
	if a == nil {
		return fmt.Errorf("%w: artifact is nil", core.ErrIncompatibleArtifact)
	}
	if _, ok := supportedVersions[a.Manifest.SchemaVersion]; !ok {
		return fmt.Errorf("%w: unsupported schema version %q", core.ErrIncompatibleArtifact, a.Manifest.SchemaVersion)
	}
	if a.Manifest.NoteCount != len(a.Notes) {
		return fmt.Errorf("%w: manifest declares %d notes, found %d",
			core.ErrIncompatibleArtifact, a.Manifest.NoteCount, len(a.Notes))
	}
	if err := core.ValidateNotes(a.Notes); err != nil {
		return fmt.Errorf("%w: %w", core.ErrIncompatibleArtifact, err)
	}
	return nil
}
