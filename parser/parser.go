// Package parser turns a raw note export into a parsed artifact.
//
// A Parser walks an export directory, reads every note file with bounded
// concurrency and returns the notes in canonical order (lexicographic by
// source path) together with a manifest describing the run. Files that
// cannot be parsed are reported as warnings in the manifest and skipped.
// Conditions that make the whole export ambiguous, such as a missing root
// or a duplicate source id, fail the run with core.ErrParse.
package parser

import (
	"context"

	"github.com/poiesic/pke/core"
)

// Parser converts an export rooted at a directory into an artifact.
type Parser interface {
	// Name identifies the parser variant. It is recorded in the manifest.
	Name() string
	// Version is bumped whenever parser output for the same input changes.
	Version() string
	// Parse reads the export rooted at root.
	Parse(ctx context.Context, root string) (*core.Artifact, error)
}
