package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/pinsync/pinsync/internal/schema"
)

// newTestStore opens an initialized store in a temp directory.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "pins.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return s
}

func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "pins.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if s.Path() != path {
		t.Errorf("Path() = %q, want %q", s.Path(), path)
	}
}

func TestInitSchema_Tables(t *testing.T) {
	s := newTestStore(t)

	for _, table := range []string{"collections", "pins", "metadata"} {
		var count int
		err := s.conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count)
		if err != nil {
			t.Fatalf("Failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("Table %s does not exist", table)
		}
	}

	v, err := s.GetMetadata(context.Background(), keySchemaVersion)
	if err != nil {
		t.Fatalf("GetMetadata() failed: %v", err)
	}
	if v != "2" {
		t.Errorf("schema_version = %q, want 2", v)
	}
}

func TestInitSchema_Idempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.InitSchema(context.Background()); err != nil {
		t.Errorf("second InitSchema() failed: %v", err)
	}
}

func TestInitSchema_RejectsNewerRevision(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.SetMetadata(ctx, keySchemaVersion, "9"); err != nil {
		t.Fatal(err)
	}
	if err := s.InitSchema(ctx); err == nil {
		t.Error("expected error for newer schema revision")
	}
}

// schemaV1 is the revision 1 layout, with UNIQUE(url) on pins.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS collections (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	goal TEXT NOT NULL DEFAULT '',
	color TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS pins (
	id TEXT PRIMARY KEY,
	collection_id TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL DEFAULT '',
	og_image_url TEXT NOT NULL DEFAULT '',
	site_name TEXT NOT NULL DEFAULT '',
	summary_text TEXT,
	summary_created_at TEXT,
	note TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pins_collection ON pins(collection_id);
`

// initSchemaV1 creates a revision 1 database for upgrade tests.
func (s *Store) initSchemaV1(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, metadataTable); err != nil {
		return fmt.Errorf("failed to create metadata table: %w", err)
	}
	if _, err := s.conn.ExecContext(ctx, schemaV1); err != nil {
		return fmt.Errorf("failed to initialize revision 1 schema: %w", err)
	}
	return s.SetMetadata(ctx, keySchemaVersion, "1")
}

func TestUpgradeFromRevision1(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "v1.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if err := s.initSchemaV1(ctx); err != nil {
		t.Fatalf("initSchemaV1() failed: %v", err)
	}

	first := &schema.Pin{ID: "p1", CollectionID: "c1", Page: schema.Page{URL: "https://go.dev"}, Note: "keep me"}
	if err := s.InsertPin(ctx, first); err != nil {
		t.Fatalf("InsertPin() failed: %v", err)
	}

	// Revision 1 rejects a second pin for the same url.
	second := &schema.Pin{ID: "p2", CollectionID: "c2", Page: schema.Page{URL: "https://go.dev"}}
	if err := s.InsertPin(ctx, second); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("InsertPin() under revision 1 = %v, want ErrDuplicate", err)
	}

	if err := s.InitSchema(ctx); err != nil {
		t.Fatalf("InitSchema() upgrade failed: %v", err)
	}

	got, err := s.GetPin(ctx, "p1")
	if err != nil {
		t.Fatalf("GetPin() after upgrade failed: %v", err)
	}
	if got.Note != "keep me" {
		t.Errorf("Note = %q, data lost during upgrade", got.Note)
	}

	if err := s.InsertPin(ctx, second); err != nil {
		t.Fatalf("InsertPin() after upgrade failed: %v", err)
	}
	pins, err := s.ListPins(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pins) != 2 {
		t.Errorf("len(pins) = %d, want 2", len(pins))
	}
}

func TestInsertCollection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := &schema.Collection{Name: "Reading", Goal: "long reads", Color: "#336699"}
	if err := s.InsertCollection(ctx, c); err != nil {
		t.Fatalf("InsertCollection() failed: %v", err)
	}
	if c.ID == "" {
		t.Fatal("InsertCollection() did not assign an id")
	}
	if c.CreatedAt.IsZero() {
		t.Error("InsertCollection() did not set CreatedAt")
	}

	got, err := s.GetCollection(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCollection() failed: %v", err)
	}
	if got.Name != "Reading" || got.Goal != "long reads" || got.Color != "#336699" {
		t.Errorf("GetCollection() = %+v", got)
	}
	if !got.CreatedAt.Equal(c.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, c.CreatedAt)
	}

	dup := &schema.Collection{ID: c.ID, Name: "Other"}
	if err := s.InsertCollection(ctx, dup); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate InsertCollection() = %v, want ErrDuplicate", err)
	}
}

func TestInsertCollection_Invalid(t *testing.T) {
	s := newTestStore(t)
	if err := s.InsertCollection(context.Background(), &schema.Collection{ID: "c1"}); err == nil {
		t.Error("expected validation error for missing name")
	}
}

func TestGetCollection_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetCollection(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetCollection() = %v, want ErrNotFound", err)
	}
}

func TestDeleteCollection_UnassignsPins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.InsertCollection(ctx, &schema.Collection{ID: "c1", Name: "Go"}); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertPin(ctx, &schema.Pin{ID: "p1", CollectionID: "c1", Page: schema.Page{URL: "https://go.dev"}}); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteCollection(ctx, "c1"); err != nil {
		t.Fatalf("DeleteCollection() failed: %v", err)
	}
	p, err := s.GetPin(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if p.CollectionID != "" {
		t.Errorf("CollectionID = %q, want unassigned", p.CollectionID)
	}
	if p.Syncable() {
		t.Error("unassigned pin should not be syncable")
	}

	if err := s.DeleteCollection(ctx, "c1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteCollection() = %v, want ErrNotFound", err)
	}
}

func TestInsertPin_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	summaryAt := time.Date(2026, 5, 1, 8, 30, 0, 0, time.UTC)
	p := &schema.Pin{
		CollectionID: "c1",
		Page: schema.Page{
			URL:        "https://go.dev/blog/loopvar",
			Title:      "Fixing For Loops",
			OGImageURL: "https://go.dev/og.png",
		},
		Summary: &schema.Summary{Text: "loop variables are per-iteration", CreatedAt: summaryAt},
		Note:    "read later",
	}
	if err := s.InsertPin(ctx, p); err != nil {
		t.Fatalf("InsertPin() failed: %v", err)
	}

	got, err := s.GetPin(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPin() failed: %v", err)
	}
	if got.Page != p.Page {
		t.Errorf("Page = %+v, want %+v", got.Page, p.Page)
	}
	if got.Page.SiteName != "go.dev" {
		t.Errorf("SiteName = %q, want go.dev", got.Page.SiteName)
	}
	if got.Summary == nil || got.Summary.Text != p.Summary.Text || !got.Summary.CreatedAt.Equal(summaryAt) {
		t.Errorf("Summary = %+v", got.Summary)
	}
	if got.Note != "read later" {
		t.Errorf("Note = %q", got.Note)
	}
}

func TestInsertPin_DuplicateID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := &schema.Pin{ID: "p1", Page: schema.Page{URL: "https://a.test"}}
	if err := s.InsertPin(ctx, p); err != nil {
		t.Fatal(err)
	}
	again := &schema.Pin{ID: "p1", Page: schema.Page{URL: "https://b.test"}}
	if err := s.InsertPin(ctx, again); !errors.Is(err, ErrDuplicate) {
		t.Errorf("InsertPin() = %v, want ErrDuplicate", err)
	}
}

func TestInsertPin_SameURLAllowed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"p1", "p2"} {
		p := &schema.Pin{ID: id, Page: schema.Page{URL: "https://same.test"}}
		if err := s.InsertPin(ctx, p); err != nil {
			t.Fatalf("InsertPin(%s) failed: %v", id, err)
		}
	}

	p, err := s.FindPinByURL(ctx, "https://same.test")
	if err != nil {
		t.Fatalf("FindPinByURL() failed: %v", err)
	}
	if p.ID != "p1" && p.ID != "p2" {
		t.Errorf("FindPinByURL() returned %q", p.ID)
	}
	if _, err := s.FindPinByURL(ctx, "https://other.test"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindPinByURL() = %v, want ErrNotFound", err)
	}
}

func TestPinQueries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := time.Now().Add(-72 * time.Hour).UTC()
	pins := []*schema.Pin{
		{ID: "p1", CollectionID: "c1", Page: schema.Page{URL: "https://a.test"}, CreatedAt: old},
		{ID: "p2", CollectionID: "c1", Page: schema.Page{URL: "https://b.test"}},
		{ID: "p3", CollectionID: "c2", Page: schema.Page{URL: "https://c.test"}},
	}
	for _, p := range pins {
		if err := s.InsertPin(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	byColl, err := s.ListPinsByCollection(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(byColl) != 2 {
		t.Errorf("ListPinsByCollection(c1) = %d pins, want 2", len(byColl))
	}

	recent, err := s.ListPinsSince(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 {
		t.Errorf("ListPinsSince() = %d pins, want 2", len(recent))
	}
}

func TestPinLocalMutations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.InsertPin(ctx, &schema.Pin{ID: "p1", Page: schema.Page{URL: "https://a.test"}}); err != nil {
		t.Fatal(err)
	}

	if err := s.UpdatePinNote(ctx, "p1", "a note"); err != nil {
		t.Fatalf("UpdatePinNote() failed: %v", err)
	}
	if err := s.SetPinSummary(ctx, "p1", &schema.Summary{Text: "tl;dr"}); err != nil {
		t.Fatalf("SetPinSummary() failed: %v", err)
	}
	if err := s.SetPinCollection(ctx, "p1", "c9"); err != nil {
		t.Fatalf("SetPinCollection() failed: %v", err)
	}

	p, err := s.GetPin(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if p.Note != "a note" || p.Summary == nil || p.Summary.Text != "tl;dr" || p.CollectionID != "c9" {
		t.Errorf("GetPin() = %+v", p)
	}
	if p.Summary.CreatedAt.IsZero() {
		t.Error("summary CreatedAt should default to now")
	}

	if err := s.SetPinSummary(ctx, "p1", nil); err != nil {
		t.Fatal(err)
	}
	if p, _ := s.GetPin(ctx, "p1"); p.Summary != nil {
		t.Errorf("summary not cleared: %+v", p.Summary)
	}

	if err := s.DeletePin(ctx, "p1"); err != nil {
		t.Fatalf("DeletePin() failed: %v", err)
	}
	if err := s.DeletePin(ctx, "p1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeletePin() = %v, want ErrNotFound", err)
	}
	if err := s.UpdatePinNote(ctx, "p1", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdatePinNote() = %v, want ErrNotFound", err)
	}
}

func TestMetadata(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetMetadata(ctx, KeyAuthToken); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetMetadata() = %v, want ErrNotFound", err)
	}
	if err := s.SetMetadata(ctx, KeyAuthToken, "t1"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetMetadata(ctx, KeyAuthToken, "t2"); err != nil {
		t.Fatal(err)
	}
	v, err := s.GetMetadata(ctx, KeyAuthToken)
	if err != nil || v != "t2" {
		t.Errorf("GetMetadata() = %q, %v; want t2", v, err)
	}
	if err := s.DeleteMetadata(ctx, KeyAuthToken); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteMetadata(ctx, KeyAuthToken); err != nil {
		t.Errorf("deleting a missing key should succeed: %v", err)
	}
}

func TestSettings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.LoadSettings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got != schema.DefaultSyncSettings() {
		t.Errorf("LoadSettings() on fresh store = %+v, want defaults", got)
	}

	want := schema.SyncSettings{Enabled: true, AutoSync: false, SyncInterval: 30, WifiOnly: true}
	if err := s.SaveSettings(ctx, want); err != nil {
		t.Fatal(err)
	}
	got, err = s.LoadSettings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("LoadSettings() = %+v, want %+v", got, want)
	}

	if err := s.SaveSettings(ctx, schema.SyncSettings{SyncInterval: 0}); err == nil {
		t.Error("expected error saving invalid settings")
	}
}

func TestStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.LoadStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.IsSyncing || got.LastSyncTime != nil || got.Error != nil {
		t.Errorf("LoadStatus() on fresh store = %+v", got)
	}

	now := time.Now().UTC().Truncate(time.Second)
	msg := "network down"
	if err := s.SaveStatus(ctx, schema.SyncStatus{LastSyncTime: &now, Error: &msg, PendingChanges: 3}); err != nil {
		t.Fatal(err)
	}
	got, err = s.LoadStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.LastSyncTime == nil || !got.LastSyncTime.Equal(now) || got.ErrorMessage() != msg || got.PendingChanges != 3 {
		t.Errorf("LoadStatus() = %+v", got)
	}
}

func TestCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_ = s.InsertCollection(ctx, &schema.Collection{ID: "c1", Name: "Go"})
	_ = s.InsertPin(ctx, &schema.Pin{ID: "p1", CollectionID: "c1", Page: schema.Page{URL: "https://a.test"}})
	_ = s.InsertPin(ctx, &schema.Pin{ID: "p2", Page: schema.Page{URL: "https://b.test"}})

	c, err := s.Counts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if c != (Counts{Collections: 1, Pins: 2, Unassigned: 1}) {
		t.Errorf("Counts() = %+v", c)
	}
}

func TestBackup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_ = s.InsertCollection(ctx, &schema.Collection{ID: "c1", Name: "Go"})

	dest := filepath.Join(t.TempDir(), "backups", "pins.db.bak")
	if err := s.Backup(ctx, dest); err != nil {
		t.Fatalf("Backup() failed: %v", err)
	}

	copied, err := Open(dest)
	if err != nil {
		t.Fatal(err)
	}
	defer copied.Close()
	if _, err := copied.GetCollection(ctx, "c1"); err != nil {
		t.Errorf("backup missing collection: %v", err)
	}
	if err := s.Backup(ctx, dest); err == nil {
		t.Error("Backup() over an existing file should fail")
	}
}
