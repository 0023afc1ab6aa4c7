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


package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/pke"
	"github.com/poiesic/pke/artifact"
	"github.com/poiesic/pke/config"
	"github.com/poiesic/pke/core"
	"github.com/poiesic/pke/ingestion"
	"github.com/poiesic/pke/parser"
)

var errFailedRecords = errors.New("ingest finished with failed notes")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newApp(os.Stdout, os.Stderr).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "pke",
		Usage:     "Parse Joplin exports into artifacts and ingest them into an embedding store",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Load environment variables from this file when it exists",
				Value: ".env",
			},
		},
		Before:         setupLogger,
		ExitErrHandler: func(*cli.Context, error) {},
		Commands: []*cli.Command{
			{
				Name:   "parse",
				Usage:  "Parse an export directory into a versioned artifact",
				Action: parseCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "export",
						Aliases:  []string{"e"},
						Usage:    "Path to the Joplin Markdown export directory",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Where to write the artifact",
						Value:   artifact.DefaultPath,
					},
					&cli.StringFlag{
						Name:  "parser",
						Usage: "Export parser to use",
						Value: parser.JoplinParserName,
					},
					&cli.IntFlag{
						Name:  "concurrency",
						Usage: "Number of files read in parallel (0 = number of CPUs)",
					},
				},
			},
			{
				Name:   "ingest",
				Usage:  "Embed and store the notes of an artifact",
				Action: ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "artifact",
						Aliases: []string{"a"},
						Usage:   "Path to the artifact produced by parse",
						Value:   artifact.DefaultPath,
					},
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Classify and embed notes without writing anything",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Process at most this many notes (0 = all)",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Notes per wave (overrides " + config.EnvBatchSize + ")",
					},
					&cli.IntFlag{
						Name:  "concurrency",
						Usage: "Embedding workers (overrides " + config.EnvConcurrency + ")",
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "Bound on every storage and embedding call (overrides " + config.EnvCallTimeout + ")",
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Embedding attempts per note (overrides " + config.EnvMaxRetries + ")",
					},
					&cli.BoolFlag{
						Name:  "progress",
						Usage: "Report progress on stderr",
					},
				},
			},
			{
				Name:  "notes",
				Usage: "Work with individual notes",
				Subcommands: []*cli.Command{
					{
						Name:      "upsert",
						Usage:     "Embed and store a single note read from a JSON file",
						ArgsUsage: "<path>",
						Action:    notesUpsertCommand,
						Flags: []cli.Flag{
							&cli.BoolFlag{
								Name:  "dry-run",
								Usage: "Classify and embed the note without writing anything",
							},
							&cli.BoolFlag{
								Name:  "debug",
								Usage: "Print the note as loaded before ingesting it",
							},
							&cli.DurationFlag{
								Name:  "timeout",
								Usage: "Bound on every storage and embedding call (overrides " + config.EnvCallTimeout + ")",
							},
							&cli.IntFlag{
								Name:  "max-retries",
								Usage: "Embedding attempts (overrides " + config.EnvMaxRetries + ")",
							},
						},
					},
				},
			},
			{
				Name:   "reembed",
				Usage:  "Recompute the vector of every stored note with the configured embedder",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Records per embedding call (overrides " + config.EnvBatchSize + ")",
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "Bound on every storage and embedding call (overrides " + config.EnvCallTimeout + ")",
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Embedding attempts per batch (overrides " + config.EnvMaxRetries + ")",
					},
				},
			},
		},
	}
}

func parseCommand(c *cli.Context) error {
	opts := []parser.Option{parser.WithLogger(slog.Default())}
	if n := c.Int("concurrency"); n > 0 {
		opts = append(opts, parser.WithConcurrency(n))
	}
	p, err := pke.NewParser(c.String("parser"), opts...)
	if err != nil {
		return err
	}

	out := c.String("output")
	a, err := pke.ParseExport(c.Context, p, c.String("export"), out)
	if err != nil {
		return err
	}

	printParseReport(c.App.Writer, a, out)
	return nil
}

func printParseReport(w io.Writer, a *core.Artifact, out string) {
	m := a.Manifest
	fmt.Fprintf(w, "Parsed %s with %s %s\n", m.SourcePath, m.Parser, m.ParserVersion)
	fmt.Fprintf(w, "  files scanned:     %d\n", m.FilesScanned)
	fmt.Fprintf(w, "  files skipped:     %d\n", m.FilesSkipped)
	fmt.Fprintf(w, "  notes:             %d\n", m.NoteCount)
	for _, warn := range m.Warnings {
		fmt.Fprintf(w, "  ! %s: %s\n", warn.Path, warn.Message)
	}
	fmt.Fprintf(w, "Artifact written to %s\n", out)
}

// loadConfig reads the environment and applies any flag overrides the
// command defines.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("env-file"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("batch-size") {
		cfg.BatchSize = c.Int("batch-size")
	}
	if c.IsSet("concurrency") {
		cfg.Concurrency = c.Int("concurrency")
	}
	if c.IsSet("timeout") {
		cfg.CallTimeout = c.Duration("timeout")
	}
	if c.IsSet("max-retries") {
		cfg.MaxRetries = c.Int("max-retries")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func ingestCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	a, err := artifact.Read(c.String("artifact"))
	if err != nil {
		return err
	}
	return runIngest(c, cfg, a)
}

func notesUpsertCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("%w: expected exactly one note file, got %d arguments", core.ErrConfig, c.NArg())
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	path := c.Args().First()
	note, err := artifact.ReadNote(path)
	if err != nil {
		return err
	}
	slog.Debug("note loaded", "path", path, "source_id", note.SourceID)

	if c.Bool("debug") {
		data, err := json.MarshalIndent(note, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "%s\n", data)
	}

	return runIngest(c, cfg, artifact.FromNote(*note, path))
}

// runIngest sends a through a pipeline built from cfg and prints the
// summary. A dry run opens an existing store read-only and never creates
// one.
func runIngest(c *cli.Context, cfg *config.Config, a *core.Artifact) error {
	dryRun := c.Bool("dry-run")
	if !dryRun {
		if err := cfg.RequireStore(); err != nil {
			return err
		}
	}
	slog.Debug("configuration loaded", "config", cfg.String())

	engineOpts := []pke.EngineOption{pke.WithLogger(slog.Default())}
	if dryRun {
		engineOpts = append(engineOpts, pke.WithReadOnlyStore())
	}
	engine, err := pke.Open(cfg, engineOpts...)
	if err != nil {
		return err
	}
	defer engine.Close()

	var opts []ingestion.Option
	if c.Bool("progress") {
		opts = append(opts, ingestion.WithProgress(c.App.ErrWriter))
	}
	pipeline, err := engine.NewPipeline(opts...)
	if err != nil {
		return err
	}
	defer pipeline.Release()

	summary, err := pipeline.Ingest(c.Context, a, ingestion.IngestOptions{
		DryRun: dryRun,
		Limit:  c.Int("limit"),
	})
	if err != nil {
		return err
	}

	fmt.Fprint(c.App.Writer, summary.String())
	if summary.HasFailures() {
		return fmt.Errorf("%w: %d of %d", errFailedRecords, summary.Count(core.OutcomeFailed), summary.Processed)
	}
	return nil
}

func reembedCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := cfg.RequireStore(); err != nil {
		return err
	}

	engine, err := pke.Open(cfg, pke.WithLogger(slog.Default()))
	if err != nil {
		return err
	}
	defer engine.Close()

	r, err := engine.NewReembedder(c.App.ErrWriter)
	if err != nil {
		return err
	}
	n, err := r.Run(c.Context)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Reembedded %d notes\n", n)
	return nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	w := c.App.ErrWriter
	if w == nil {
		w = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
