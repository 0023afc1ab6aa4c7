package artifact

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/pke/core"
	"github.com/poiesic/pke/dedup"
	"github.com/poiesic/pke/parser"
)

func sampleArtifact() *core.Artifact {
	created := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	updated := time.UnixMilli(1709290000123).UTC()
	return &core.Artifact{
		Manifest: core.Manifest{
			Parser:        "joplin-markdown",
			ParserVersion: "1.0.0",
			SourcePath:    "/exports/joplin",
			FilesScanned:  3,
			FilesSkipped:  1,
			Warnings:      []core.Warning{{Path: "bad.md", Message: "invalid front matter"}},
		},
		Notes: []core.Note{
			{
				SourceID:   "b1",
				Title:      "Second by id, first by path",
				Body:       "- item\n\n```\ncode\n```",
				Tags:       []string{"a", "b"},
				CreatedAt:  &created,
				UpdatedAt:  &updated,
				SourcePath: "a.md",
				Notebook:   "Inbox",
				Resources:  []string{"ab12"},
				Metadata:   map[string]string{"author": "Jo"},
			},
			{
				SourceID:   "a1",
				ExternalID: "crm-7",
				Body:       "",
				SourcePath: "z/b.md",
			},
		},
	}
}

func TestWriteRead_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "parsed_notes.json")
	a := sampleArtifact()

	require.NoError(t, Write(a, path))

	assert.Equal(t, SchemaVersion, a.Manifest.SchemaVersion)
	assert.Equal(t, dedup.HashScheme, a.Manifest.HashScheme)
	assert.Equal(t, 2, a.Manifest.NoteCount)

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, a, got)
}

func TestWrite_Reproducible(t *testing.T) {
	dir := t.TempDir()
	p1 := filepath.Join(dir, "one.json")
	p2 := filepath.Join(dir, "two.json")

	require.NoError(t, Write(sampleArtifact(), p1))
	require.NoError(t, Write(sampleArtifact(), p2))

	b1, err := os.ReadFile(p1)
	require.NoError(t, err)
	b2, err := os.ReadFile(p2)
	require.NoError(t, err)
	assert.Equal(t, b1, b2)
}

func TestWrite_OverwritesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "parsed_notes.json")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	require.NoError(t, Write(sampleArtifact(), path))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")

	_, err = Read(path)
	assert.NoError(t, err)
}

func TestWrite_RejectsDuplicateIDs(t *testing.T) {
	a := sampleArtifact()
	a.Notes[1].SourceID = a.Notes[0].SourceID
	path := filepath.Join(t.TempDir(), "a.json")

	err := Write(a, path)
	assert.ErrorIs(t, err, core.ErrDuplicateSourceID)
	assert.NoFileExists(t, path)
}

func TestWrite_EmptyArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, Write(&core.Artifact{}, path))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Empty(t, got.Notes)
	assert.NotNil(t, got.Notes)
}

func TestRead_Incompatible(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "this is not json"},
		{"missing version", `{"manifest":{"note_count":0},"notes":[]}`},
		{"unknown version", `{"manifest":{"schema_version":"pke.artifact/v99","note_count":0},"notes":[]}`},
		{"count mismatch", `{"manifest":{"schema_version":"pke.artifact/v1","note_count":2},"notes":[{"source_id":"a","source_path":"a.md"}]}`},
		{"empty source id", `{"manifest":{"schema_version":"pke.artifact/v1","note_count":1},"notes":[{"source_id":"","source_path":"a.md"}]}`},
		{"duplicate source id", `{"manifest":{"schema_version":"pke.artifact/v1","note_count":2},"notes":[{"source_id":"a","source_path":"a.md"},{"source_id":"a","source_path":"b.md"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "a.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			got, err := Read(path)
			assert.ErrorIs(t, err, core.ErrIncompatibleArtifact)
			assert.Nil(t, got)
		})
	}
}

func TestRead_MissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, core.ErrIncompatibleArtifact)
}

func TestWriteRead_ParsedExportRoundTrip(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{
		"a.md":       "---\nid: a1\ntitle: Alpha\ntags: [work, ideas]\ncreated_time: 1709290000123\nauthor: Jo\n---\nSee :/0123abcd and #later\n",
		"Inbox/b.md": "# Heading only\n\nplain body\n",
	}
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "bad.md"), []byte{0xff, 0xfe, 0xfd}, 0o644))

	p, err := parser.NewJoplinExportParser(parser.WithConcurrency(2))
	require.NoError(t, err)
	parsed, err := p.Parse(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, parsed.Notes, 2)
	require.Len(t, parsed.Manifest.Warnings, 1)

	path := filepath.Join(t.TempDir(), "parsed.json")
	require.NoError(t, Write(parsed, path))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, parsed, got)
}

func TestWrite_EmptyCollectionsReadBackNil(t *testing.T) {
	a := &core.Artifact{Notes: []core.Note{{
		SourceID:   "a",
		SourcePath: "a.md",
		Tags:       []string{},
		Resources:  []string{},
		Metadata:   map[string]string{},
	}}}
	path := filepath.Join(t.TempDir(), "a.json")
	require.NoError(t, Write(a, path))
	assert.Equal(t, SchemaVersion, a.Manifest.SchemaVersion, "stamped in place")

	got, err := Read(path)
	require.NoError(t, err)
	note := got.Notes[0]
	assert.Nil(t, note.Tags)
	assert.Nil(t, note.Resources)
	assert.Nil(t, note.Metadata)
}
