package parser

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/pke/core"
)

const (
	// JoplinParserName is the registered name of the Joplin Markdown parser.
	JoplinParserName = "joplin-markdown"

	// JoplinParserVersion changes whenever output for the same export changes.
	JoplinParserVersion = "1.0.0"
)

// Directories Joplin uses for attachments. They never hold notes.
var resourceDirs = map[string]struct{}{
	".resource":  {},
	"_resources": {},
	"resources":  {},
}

// JoplinExportParser reads a Joplin "Markdown + Front Matter" export.
type JoplinExportParser struct {
	concurrency int
	logger      *slog.Logger
}

// Option configures a JoplinExportParser.
type Option func(*JoplinExportParser) error

// WithConcurrency sets how many files are read in parallel.
// Default is runtime.NumCPU(), with a minimum of 1.
func WithConcurrency(n int) Option {
	return func(p *JoplinExportParser) error {
		if n < 1 {
			n = 1
		}
		p.concurrency = n
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *JoplinExportParser) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewJoplinExportParser creates a parser for Joplin Markdown exports.
func NewJoplinExportParser(opts ...Option) (*JoplinExportParser, error) {
	p := &JoplinExportParser{
		concurrency: max(runtime.NumCPU(), 1),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	p.logger = p.logger.With("component", "parser", "parser", JoplinParserName)
	return p, nil
}

// Name implements Parser.
func (p *JoplinExportParser) Name() string { return JoplinParserName }

// Version implements Parser.
func (p *JoplinExportParser) Version() string { return JoplinParserVersion }

type fileResult struct {
	note *core.Note
	err  error
}

// Parse implements Parser.
func (p *JoplinExportParser) Parse(ctx context.Context, root string) (*core.Artifact, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: export root %s: %v", core.ErrParse, root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: export root %s is not a directory", core.ErrParse, root)
	}

	files, walkWarnings, err := collectNoteFiles(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrParse, err)
	}
	p.logger.Debug("export scanned", "root", root, "files", len(files))

	pool, err := ants.NewPool(p.concurrency)
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	results := make([]fileResult, len(files))
	var wg sync.WaitGroup
	for i, rel := range files {
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				results[i] = fileResult{err: ctx.Err()}
				return
			}
			note, err := parseNoteFile(root, rel)
			results[i] = fileResult{note: note, err: err}
		})
		if submitErr != nil {
			wg.Done()
			results[i] = fileResult{err: submitErr}
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a := &core.Artifact{
		Manifest: core.Manifest{
			Parser:        JoplinParserName,
			ParserVersion: JoplinParserVersion,
			SourcePath:    root,
			FilesScanned:  len(files),
			Warnings:      walkWarnings,
		},
		Notes: make([]core.Note, 0, len(files)),
	}

	seen := make(map[string]string, len(files))
	for i, res := range results {
		if res.err != nil {
			p.logger.Warn("skipping note file", "path", files[i], "err", res.err)
			a.Manifest.Warnings = append(a.Manifest.Warnings, core.Warning{Path: files[i], Message: res.err.Error()})
			a.Manifest.FilesSkipped++
			continue
		}
		if prev, dup := seen[res.note.SourceID]; dup {
			return nil, fmt.Errorf("%w: %w %q in %s and %s",
				core.ErrParse, core.ErrDuplicateSourceID, res.note.SourceID, prev, res.note.SourcePath)
		}
		seen[res.note.SourceID] = res.note.SourcePath
		a.Notes = append(a.Notes, *res.note)
	}
	a.Manifest.NoteCount = len(a.Notes)

	p.logger.Info("export parsed",
		"notes", a.Manifest.NoteCount,
		"scanned", a.Manifest.FilesScanned,
		"skipped", a.Manifest.FilesSkipped,
		"warnings", len(a.Manifest.Warnings))
	return a, nil
}

// collectNoteFiles returns export-relative, slash-separated paths of every
// Markdown file under root in lexicographic order. Unreadable
// subdirectories become warnings; an unreadable root is an error.
func collectNoteFiles(root string) ([]string, []core.Warning, error) {
	var files []string
	var warnings []core.Warning

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if err != nil {
			if rel == "." {
				return err
			}
			warnings = append(warnings, core.Warning{Path: rel, Message: err.Error()})
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if rel == "." {
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if _, skip := resourceDirs[strings.ToLower(name)]; skip || strings.HasPrefix(name, ".") {
				return fs.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || !d.Type().IsRegular() {
			return nil
		}
		if strings.EqualFold(path.Ext(name), ".md") {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	sort.Strings(files)
	sort.SliceStable(warnings, func(i, j int) bool { return warnings[i].Path < warnings[j].Path })
	return files, warnings, nil
}

// parseNoteFile reads and parses a single export file.
func parseNoteFile(root, rel string) (*core.Note, error) {
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		return nil, ErrInvalidUTF8
	}

	text := normalizeLineEndings(strings.TrimPrefix(string(data), "\ufeff"))
	fm, rawBody, err := splitFrontMatter(text)
	if err != nil {
		return nil, err
	}
	return buildNote(rel, fm, rawBody), nil
}

// buildNote assembles a Note from decoded front matter and the raw body.
func buildNote(rel string, fm map[string]any, rawBody string) *core.Note {
	body := normalizeBody(rawBody)

	sourceID := fmString(fm, "id")
	if sourceID == "" {
		sourceID = strings.TrimSuffix(rel, path.Ext(rel))
	}

	title := fmString(fm, "title")
	if title == "" {
		title = headingTitle(body)
	}

	notebook := fmString(fm, "notebook")
	if notebook == "" {
		if dir := path.Dir(rel); dir != "." {
			notebook = dir
		}
	}

	return &core.Note{
		SourceID:   sourceID,
		ExternalID: fmString(fm, "external_id"),
		Title:      title,
		Body:       body,
		Tags:       tagSet(fmTags(fm), inlineTags(body)),
		CreatedAt:  fmTime(fm, "created_time", "created"),
		UpdatedAt:  fmTime(fm, "updated_time", "updated"),
		SourcePath: rel,
		Notebook:   notebook,
		Resources:  resourceIDs(body),
		Metadata:   fmMetadata(fm),
	}
}
