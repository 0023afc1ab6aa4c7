package artifact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/poiesic/pke/core"
)

const (
	// NoteFileParser names the manifest source of artifacts built from a
	// single note file.
	NoteFileParser = "note-file"

	// NoteFileParserVersion changes whenever the single note layout changes.
	NoteFileParserVersion = "1.0.0"
)

// ReadNote loads one note encoded as JSON in the same shape notes take
// inside an artifact. Unknown fields are rejected so a misnamed field
// cannot silently become an empty one.
func ReadNote(path string) (*core.Note, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading note file: %w", err)
	}

	var note core.Note
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&note); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrInvalidNote, path, err)
	}
	if err := core.ValidateNote(&note); err != nil {
		return nil, err
	}
	return &note, nil
}

// FromNote wraps a single note in a stamped artifact so it follows the
// same ingestion path as a parsed export.
func FromNote(note core.Note, source string) *core.Artifact {
	a := &core.Artifact{
		Manifest: core.Manifest{
			Parser:        NoteFileParser,
			ParserVersion: NoteFileParserVersion,
			SourcePath:    source,
			FilesScanned:  1,
		},
		Notes: []core.Note{note},
	}
	Stamp(a)
	return a
}
