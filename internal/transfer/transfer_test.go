package transfer

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pinsync/pinsync/internal/schema"
	"github.com/pinsync/pinsync/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "pins.db"))
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.InitSchema(context.Background()); err != nil {
		t.Fatal(err)
	}
	return s
}

func seed(t *testing.T, s *store.Store) {
	t.Helper()
	ctx := context.Background()
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := s.InsertCollection(ctx, &schema.Collection{ID: "c1", Name: "Go", Goal: "Learn Go", CreatedAt: created}); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertPin(ctx, &schema.Pin{
		ID:           "p1",
		CollectionID: "c1",
		Page:         schema.Page{URL: "https://go.dev/doc", Title: "Docs"},
		Summary:      &schema.Summary{Text: "Go docs.", CreatedAt: created},
		Note:         "start here",
		CreatedAt:    created,
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertPin(ctx, &schema.Pin{ID: "p2", Page: schema.Page{URL: "https://go.dev/blog"}, CreatedAt: created}); err != nil {
		t.Fatal(err)
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"jsonl": FormatJSONL, "YAML": FormatYAML, "yml": FormatYAML} {
		if got, err := ParseFormat(in); err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("csv"); err == nil {
		t.Error("ParseFormat(csv) should fail")
	}
	if FormatFromPath("x.yml") != FormatYAML || FormatFromPath("x.jsonl") != FormatJSONL {
		t.Error("FormatFromPath() picked the wrong format")
	}
}

func TestExportJSONL(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	var buf bytes.Buffer
	res, err := Export(context.Background(), s, &buf, FormatJSONL)
	if err != nil {
		t.Fatal(err)
	}
	if res.Collections != 1 || res.Pins != 2 {
		t.Errorf("Export() = %+v", res)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	if !strings.Contains(lines[0], `"kind":"collection"`) {
		t.Errorf("collections should come first: %s", lines[0])
	}
}

func TestExportImport_RoundTrip(t *testing.T) {
	for _, format := range []Format{FormatJSONL, FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			ctx := context.Background()
			src := newTestStore(t)
			seed(t, src)

			path := filepath.Join(t.TempDir(), "export."+string(format))
			if _, err := ExportFile(ctx, src, path, format); err != nil {
				t.Fatalf("ExportFile() failed: %v", err)
			}

			dst := newTestStore(t)
			res, err := Import(ctx, dst, ImportOptions{From: path})
			if err != nil {
				t.Fatalf("Import() failed: %v", err)
			}
			if res.CollectionsAdded != 1 || res.PinsAdded != 2 || len(res.Errors) != 0 {
				t.Errorf("Import() = %+v", res)
			}

			p, err := dst.GetPin(ctx, "p1")
			if err != nil {
				t.Fatal(err)
			}
			if p.Note != "start here" || p.Summary == nil || p.Summary.Text != "Go docs." || p.CollectionID != "c1" {
				t.Errorf("imported pin = %+v", p)
			}
		})
	}
}

func TestImport_SkipsExistingIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s)

	path := filepath.Join(t.TempDir(), "export.jsonl")
	if _, err := ExportFile(ctx, s, path, FormatJSONL); err != nil {
		t.Fatal(err)
	}
	_ = s.UpdatePinNote(ctx, "p1", "edited locally")

	res, err := Import(ctx, s, ImportOptions{From: path})
	if err != nil {
		t.Fatal(err)
	}
	if res.Skipped != 3 || res.PinsAdded != 0 || res.CollectionsAdded != 0 {
		t.Errorf("Import() = %+v, want everything skipped", res)
	}
	p, _ := s.GetPin(ctx, "p1")
	if p.Note != "edited locally" {
		t.Error("import must not overwrite existing records")
	}
}

func TestImport_DryRun(t *testing.T) {
	ctx := context.Background()
	src := newTestStore(t)
	seed(t, src)
	path := filepath.Join(t.TempDir(), "export.jsonl")
	if _, err := ExportFile(ctx, src, path, FormatJSONL); err != nil {
		t.Fatal(err)
	}

	dst := newTestStore(t)
	res, err := Import(ctx, dst, ImportOptions{From: path, DryRun: true, Backup: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.PinsAdded != 2 || res.BackupCreated != "" {
		t.Errorf("dry run = %+v", res)
	}
	if pins, _ := dst.ListPins(ctx); len(pins) != 0 {
		t.Errorf("dry run wrote %d pins", len(pins))
	}
}

func TestImport_Backup(t *testing.T) {
	ctx := context.Background()
	src := newTestStore(t)
	seed(t, src)
	path := filepath.Join(t.TempDir(), "export.jsonl")
	if _, err := ExportFile(ctx, src, path, FormatJSONL); err != nil {
		t.Fatal(err)
	}

	dst := newTestStore(t)
	res, err := Import(ctx, dst, ImportOptions{From: path, Backup: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.BackupCreated == "" {
		t.Fatal("backup path not reported")
	}
	if _, err := os.Stat(res.BackupCreated); err != nil {
		t.Errorf("backup missing: %v", err)
	}
}

func TestImport_RecordErrors(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	data := `{"kind":"collection","collection":{"id":"c1","name":""}}
{"kind":"pin","pin":{"id":"p1","page":{"url":"https://ok.test"}}}
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	res, err := Import(ctx, newTestStore(t), ImportOptions{From: path})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Errors) != 1 || res.PinsAdded != 1 {
		t.Errorf("Import() = %+v, want one collection error and one pin", res)
	}
}

func TestRead_Invalid(t *testing.T) {
	if _, err := Read(strings.NewReader(`{"kind":"tag","tag":{}}`), FormatJSONL); err == nil {
		t.Error("unknown kind should fail")
	}
	if _, err := Read(strings.NewReader("{not json"), FormatJSONL); err == nil {
		t.Error("malformed JSON should fail")
	}
	if _, err := Read(strings.NewReader("collections: [1"), FormatYAML); err == nil {
		t.Error("malformed YAML should fail")
	}
	if _, err := Import(context.Background(), newTestStore(t), ImportOptions{From: "/does/not/exist.jsonl"}); err == nil {
		t.Error("missing file should fail")
	}
}
