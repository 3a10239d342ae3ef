package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pinsync/pinsync/internal/store"
)

// ImportOptions contains configuration for an import.
type ImportOptions struct {
	From   string // Input file path
	Format Format // Empty guesses from the extension
	DryRun bool   // Preview without writing
	Backup bool   // Snapshot the database first (needs a Backuper sink)
}

// ImportResult contains statistics about the import.
type ImportResult struct {
	CollectionsAdded int
	PinsAdded        int
	Skipped          int
	BackupCreated    string
	Errors           []string
}

// Import reads opts.From and inserts every record whose id is not yet in
// dst. Per-record failures are collected in the result; only unreadable
// input fails the whole import.
func Import(ctx context.Context, dst Sink, opts ImportOptions) (*ImportResult, error) {
	result := &ImportResult{}

	// #nosec G304 - controlled path from CLI
	f, err := os.Open(opts.From)
	if err != nil {
		return nil, fmt.Errorf("input file does not exist: %w", err)
	}
	defer f.Close()

	format := opts.Format
	if format == "" {
		format = FormatFromPath(opts.From)
	}
	doc, err := Read(f, format)
	if err != nil {
		return nil, err
	}

	if opts.Backup && !opts.DryRun {
		b, ok := dst.(Backuper)
		if !ok {
			return nil, fmt.Errorf("backup not supported by this store")
		}
		backupPath := b.Path() + ".backup." + time.Now().Format("20060102-150405")
		if err := b.Backup(ctx, backupPath); err != nil {
			return nil, err
		}
		result.BackupCreated = backupPath
	}

	for _, c := range doc.Collections {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		added, err := importOne(opts.DryRun,
			func() error { _, err := dst.GetCollection(ctx, c.ID); return err },
			func() error { return dst.InsertCollection(ctx, c) })
		switch {
		case err != nil:
			result.Errors = append(result.Errors, fmt.Sprintf("collection %s: %v", c.ID, err))
		case added:
			result.CollectionsAdded++
		default:
			result.Skipped++
		}
	}

	for _, p := range doc.Pins {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		added, err := importOne(opts.DryRun,
			func() error { _, err := dst.GetPin(ctx, p.ID); return err },
			func() error { return dst.InsertPin(ctx, p) })
		switch {
		case err != nil:
			result.Errors = append(result.Errors, fmt.Sprintf("pin %s: %v", p.ID, err))
		case added:
			result.PinsAdded++
		default:
			result.Skipped++
		}
	}

	return result, nil
}

// importOne reports whether the record was (or, in a dry run, would be)
// added. An existing id is a skip, not an error.
func importOne(dryRun bool, get, insert func() error) (bool, error) {
	err := get()
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, store.ErrNotFound):
		return false, err
	}
	if dryRun {
		return true, nil
	}
	if err := insert(); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Read parses a whole export. JSONL records with an unknown kind or a
// missing body are rejected with their line number.
func Read(r io.Reader, format Format) (*Document, error) {
	doc := &Document{}
	switch format {
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(doc); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}

	case FormatJSONL:
		dec := json.NewDecoder(r)
		for line := 1; ; line++ {
			var rec Record
			if err := dec.Decode(&rec); err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return nil, fmt.Errorf("invalid JSON at record %d: %w", line, err)
			}
			switch {
			case rec.Kind == KindCollection && rec.Collection != nil:
				doc.Collections = append(doc.Collections, rec.Collection)
			case rec.Kind == KindPin && rec.Pin != nil:
				doc.Pins = append(doc.Pins, rec.Pin)
			default:
				return nil, fmt.Errorf("record %d: unknown kind %q or missing body", line, rec.Kind)
			}
		}

	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
	return doc, nil
}
