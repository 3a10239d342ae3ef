// Package transfer exports the local store to JSONL or YAML and imports
// those files back.
//
// JSONL holds one record per line:
//
//	{"kind":"collection","collection":{...}}
//	{"kind":"pin","pin":{...}}
//
// YAML holds a single document with collections and pins lists. Import
// never overwrites: a record whose id already exists locally is skipped.
package transfer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pinsync/pinsync/internal/schema"
)

// Format is an export file format.
type Format string

const (
	FormatJSONL Format = "jsonl"
	FormatYAML  Format = "yaml"
)

// ParseFormat accepts "jsonl", "yaml" and "yml".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "jsonl", "ndjson":
		return FormatJSONL, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown format %q (want jsonl or yaml)", s)
	}
}

// FormatFromPath guesses the format from a file extension, defaulting to
// JSONL.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSONL
	}
}

// Kind tags a JSONL record.
type Kind string

const (
	KindCollection Kind = "collection"
	KindPin        Kind = "pin"
)

// Record is one JSONL line.
type Record struct {
	Kind       Kind               `json:"kind"`
	Collection *schema.Collection `json:"collection,omitempty"`
	Pin        *schema.Pin        `json:"pin,omitempty"`
}

// Document is the YAML export layout.
type Document struct {
	Collections []*schema.Collection `yaml:"collections"`
	Pins        []*schema.Pin        `yaml:"pins"`
}

// Source is what Export reads.
//
// Implemented by *store.Store.
type Source interface {
	ListCollections(ctx context.Context) ([]*schema.Collection, error)
	ListPins(ctx context.Context) ([]*schema.Pin, error)
}

// Sink is what Import writes.
//
// Implemented by *store.Store.
type Sink interface {
	GetCollection(ctx context.Context, id string) (*schema.Collection, error)
	GetPin(ctx context.Context, id string) (*schema.Pin, error)
	InsertCollection(ctx context.Context, c *schema.Collection) error
	InsertPin(ctx context.Context, p *schema.Pin) error
}

// Backuper can snapshot itself before an import.
type Backuper interface {
	Backup(ctx context.Context, dest string) error
	Path() string
}
