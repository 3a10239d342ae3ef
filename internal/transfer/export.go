package transfer

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ExportResult counts what was written.
type ExportResult struct {
	Collections int
	Pins        int
}

// Export writes every collection and pin in src to w.
func Export(ctx context.Context, src Source, w io.Writer, format Format) (*ExportResult, error) {
	collections, err := src.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	pins, err := src.ListPins(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pins: %w", err)
	}
	result := &ExportResult{Collections: len(collections), Pins: len(pins)}

	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(Document{Collections: collections, Pins: pins}); err != nil {
			return nil, fmt.Errorf("failed to encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}

	case FormatJSONL:
		bw := bufio.NewWriter(w)
		enc := json.NewEncoder(bw)
		for _, c := range collections {
			if err := enc.Encode(Record{Kind: KindCollection, Collection: c}); err != nil {
				return nil, fmt.Errorf("failed to encode collection %s: %w", c.ID, err)
			}
		}
		for _, p := range pins {
			if err := enc.Encode(Record{Kind: KindPin, Pin: p}); err != nil {
				return nil, fmt.Errorf("failed to encode pin %s: %w", p.ID, err)
			}
		}
		if err := bw.Flush(); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}

	return result, nil
}

// ExportFile writes the export to path atomically via a temp file.
func ExportFile(ctx context.Context, src Source, path string, format Format) (*ExportResult, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	tmpPath := path + ".tmp"
	// #nosec G304 - controlled path from CLI
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	result, err := Export(ctx, src, f, format)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return nil, err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to rename temp file: %w", err)
	}
	return result, nil
}
