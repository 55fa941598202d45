package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/semanticarchitectures/Framework/pkg/archive"
	"github.com/semanticarchitectures/Framework/pkg/config"
)

// runExportCmd implements `daosim export`.
//
// Archives a verified event chain as a content-addressed JSONL snapshot in
// the store selected by ARCHIVE_STORAGE_TYPE.
func runExportCmd(args []string, cfg *config.Config, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("export", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		dbPath     string
		jsonOutput bool
	)
	cmd.StringVar(&dbPath, "db", "", "Event store DSN (default: DATABASE_URL)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output snapshot descriptor as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	ctx := context.Background()
	entries, err := loadEntries(ctx, cfg, dbPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	store, err := archive.NewStoreFromEnv(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	snap, err := archive.ExportJSONL(ctx, store, entries)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: export failed: %v\n", err)
		return 1
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(snap, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
		return 0
	}
	_, _ = fmt.Fprintf(stdout, "%s✓ exported%s %d entries\n", ColorGreen, ColorReset, snap.Entries)
	_, _ = fmt.Fprintf(stdout, "  digest: %s\n", snap.Digest)
	_, _ = fmt.Fprintf(stdout, "  head:   %s\n", snap.Head)
	return 0
}
