package sync

import (
	"context"
	"io"
	"log"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/pinsync/pinsync/internal/auth"
	"github.com/pinsync/pinsync/internal/backend"
	"github.com/pinsync/pinsync/internal/remote"
	"github.com/pinsync/pinsync/internal/schema"
	"github.com/pinsync/pinsync/internal/store"
)

const integrationSecret = "integration-secret-0123456789"

// device is one client: its own store, token provider and engine.
type device struct {
	store    *store.Store
	provider *auth.Provider
	engine   *Engine
}

func newDevice(t *testing.T, apiURL string, issuer *backend.Issuer) *device {
	t.Helper()
	ctx := context.Background()
	quiet := log.New(io.Discard, "", 0)

	s := newTestStore(t)
	settings := schema.DefaultSyncSettings()
	settings.Enabled = true
	if err := s.SaveSettings(ctx, settings); err != nil {
		t.Fatal(err)
	}

	refresh, _, err := issuer.Issue("alice", backend.RefreshToken)
	if err != nil {
		t.Fatal(err)
	}
	credsPath := filepath.Join(t.TempDir(), "credentials.toml")
	if err := auth.WriteCredentials(credsPath, auth.Credentials{
		RefreshToken: refresh,
		TokenURL:     apiURL + "/auth/refresh",
	}); err != nil {
		t.Fatal(err)
	}
	provider := auth.NewProvider(s, auth.NewFileSession(credsPath), quiet)

	client := remote.New(apiURL, provider, remote.WithLogger(quiet))
	e, err := New(Config{
		Local:     s,
		Remote:    client,
		Tokens:    provider,
		Settings:  s,
		Refresher: provider,
		Logger:    quiet,
	})
	if err != nil {
		t.Fatal(err)
	}
	return &device{store: s, provider: provider, engine: e}
}

func newTestBackend(t *testing.T) (*httptest.Server, *backend.Issuer) {
	t.Helper()
	repo, err := backend.OpenRepository(context.Background(), filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	issuer, err := backend.NewIssuer(integrationSecret, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	api, err := backend.NewServer(repo, issuer, &backend.Config{Logger: log.New(io.Discard, "", 0)})
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return srv, issuer
}

func TestIntegration_TwoDevicesConverge(t *testing.T) {
	ctx := context.Background()
	srv, issuer := newTestBackend(t)
	laptop := newDevice(t, srv.URL, issuer)
	phone := newDevice(t, srv.URL, issuer)

	for _, d := range []*device{laptop, phone} {
		if _, ok, err := d.provider.Refresh(ctx); err != nil || !ok {
			t.Fatalf("Refresh() = %v, %v", ok, err)
		}
	}

	if err := laptop.store.InsertCollection(ctx, &schema.Collection{ID: "c1", Name: "Reading", Goal: "long reads", Color: "ff8800"}); err != nil {
		t.Fatal(err)
	}
	mustInsertPin(t, laptop.store, &schema.Pin{
		ID:           "p1",
		CollectionID: "c1",
		Page:         schema.Page{URL: "https://example.com/essay", Title: "Essay"},
		Summary:      &schema.Summary{Text: "An essay.", CreatedAt: time.Now()},
	})
	mustInsertPin(t, laptop.store, &schema.Pin{ID: "loose", Page: schema.Page{URL: "https://example.com/loose"}})

	report, err := laptop.engine.Sync(ctx)
	if err != nil {
		t.Fatalf("laptop Sync() failed: %v", err)
	}
	if got := Count(report.Pushed, PhasePush, KindPin); got != 1 {
		t.Errorf("laptop pushed %d pins, want 1", got)
	}
	if got := Count(report.Skipped, PhasePush, KindPin); got != 1 {
		t.Errorf("laptop skipped %d pins, want 1 (no collection)", got)
	}

	if _, err := phone.engine.Sync(ctx); err != nil {
		t.Fatalf("phone Sync() failed: %v", err)
	}
	c, err := phone.store.GetCollection(ctx, "c1")
	if err != nil {
		t.Fatalf("collection not pulled: %v", err)
	}
	if c.Goal != "long reads" || c.Color != "#ff8800" {
		t.Errorf("pulled collection = %+v", c)
	}
	p, err := phone.store.GetPin(ctx, "p1")
	if err != nil {
		t.Fatalf("pin not pulled: %v", err)
	}
	if p.Page.URL != "https://example.com/essay" || p.Summary == nil || p.Summary.Text != "An essay." {
		t.Errorf("pulled pin = %+v", p)
	}
	if _, err := phone.store.GetPin(ctx, "loose"); err == nil {
		t.Error("unassigned pin should never reach the other device")
	}

	// Both sides agree; another round moves nothing.
	for name, d := range map[string]*device{"laptop": laptop, "phone": phone} {
		r, err := d.engine.Sync(ctx)
		if err != nil {
			t.Fatalf("%s second Sync() failed: %v", name, err)
		}
		if len(r.Pulled) != 0 || len(r.Pushed) != 0 {
			t.Errorf("%s second pass moved records: %s", name, r)
		}
	}
}

func TestIntegration_StaleTokenRefreshed(t *testing.T) {
	ctx := context.Background()
	srv, issuer := newTestBackend(t)
	d := newDevice(t, srv.URL, issuer)

	if err := d.provider.SetToken(ctx, "stale-token"); err != nil {
		t.Fatal(err)
	}
	mustInsertPin(t, d.store, &schema.Pin{ID: "p1", CollectionID: "c1", Page: schema.Page{URL: "https://example.com"}})

	report, err := d.engine.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync() with stale token failed: %v", err)
	}
	if len(report.Pushed) != 1 {
		t.Errorf("pushed %d records, want 1", len(report.Pushed))
	}
	token, ok, _ := d.provider.GetToken(ctx)
	if !ok || token == "stale-token" {
		t.Error("provider should hold the refreshed token")
	}
}
