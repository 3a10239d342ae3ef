package schema

import (
	"strings"
	"testing"
	"time"
)

func TestCollection_Validate(t *testing.T) {
	tests := []struct {
		name    string
		coll    Collection
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid collection",
			coll:    Collection{ID: "c1", Name: "Reading", Color: "#ff8800"},
			wantErr: false,
		},
		{
			name:    "short hex color",
			coll:    Collection{ID: "c1", Name: "Reading", Color: "fa0"},
			wantErr: false,
		},
		{
			name:    "missing id",
			coll:    Collection{Name: "Reading"},
			wantErr: true,
			errMsg:  "id is required",
		},
		{
			name:    "blank name",
			coll:    Collection{ID: "c1", Name: "   "},
			wantErr: true,
			errMsg:  "name is required",
		},
		{
			name:    "name too long",
			coll:    Collection{ID: "c1", Name: strings.Repeat("x", 201)},
			wantErr: true,
			errMsg:  "name must be 200 characters or less",
		},
		{
			name:    "goal at limit",
			coll:    Collection{ID: "c1", Name: "Reading", Goal: strings.Repeat("é", 2000)},
			wantErr: false,
		},
		{
			name:    "goal too long",
			coll:    Collection{ID: "c1", Name: "Reading", Goal: strings.Repeat("x", 2001)},
			wantErr: true,
			errMsg:  "goal must be 2000 characters or less",
		},
		{
			name:    "bad color",
			coll:    Collection{ID: "c1", Name: "Reading", Color: "orange"},
			wantErr: true,
			errMsg:  "color must be a hex value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.coll.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %q, want substring %q", err, tt.errMsg)
			}
		})
	}
}

func TestPin_Validate(t *testing.T) {
	tests := []struct {
		name    string
		pin     Pin
		wantErr bool
	}{
		{"valid pin", Pin{ID: "p1", CollectionID: "c1", Page: Page{URL: "https://go.dev/doc"}}, false},
		{"no collection is storable", Pin{ID: "p1", Page: Page{URL: "https://go.dev"}}, false},
		{"missing id", Pin{Page: Page{URL: "https://go.dev"}}, true},
		{"missing url", Pin{ID: "p1"}, true},
		{"relative url", Pin{ID: "p1", Page: Page{URL: "/doc"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.pin.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPin_Syncable(t *testing.T) {
	tests := []struct {
		name string
		pin  Pin
		want bool
	}{
		{"complete", Pin{CollectionID: "c1", Page: Page{URL: "https://a.test"}}, true},
		{"no collection", Pin{Page: Page{URL: "https://a.test"}}, false},
		{"no url", Pin{CollectionID: "c1"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pin.Syncable(); got != tt.want {
				t.Errorf("Syncable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPinMapping(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rp := RemotePin{
		ID:           "p1",
		URL:          "https://go.dev/blog",
		Title:        "The Go Blog",
		Description:  "Posts about Go",
		ImageURL:     "https://go.dev/og.png",
		CollectionID: "c1",
		CreatedAt:    created,
	}

	p := FromRemotePin(rp)
	if p.Page.URL != rp.URL || p.Page.Title != rp.Title || p.Page.OGImageURL != rp.ImageURL {
		t.Fatalf("page not mapped: %+v", p.Page)
	}
	if p.Summary == nil || p.Summary.Text != "Posts about Go" {
		t.Fatalf("description should map to summary text, got %+v", p.Summary)
	}

	in := p.ToRemote()
	if in.ID != "p1" || in.URL != rp.URL || in.Description != rp.Description || in.ImageURL != rp.ImageURL {
		t.Errorf("round trip lost fields: %+v", in)
	}
}

func TestPinToRemote_BackendLimits(t *testing.T) {
	p := &Pin{ID: "p1", CollectionID: "c1", Page: Page{URL: "https://a.test/" + strings.Repeat("x", 1200)}}
	for _, img := range []string{"/static/og.png", "og.png", "//cdn.test/og.png"} {
		p.Page.OGImageURL = img
		if in := p.ToRemote(); in.ImageURL != "" {
			t.Errorf("ToRemote() kept image URL %q", in.ImageURL)
		}
	}
	p.Page.OGImageURL = "https://cdn.test/og.png"
	in := p.ToRemote()
	if in.ImageURL != "https://cdn.test/og.png" {
		t.Errorf("absolute image URL dropped: %q", in.ImageURL)
	}
	if n := len([]rune(in.Title)); n != 1000 {
		t.Errorf("title from URL has %d characters, want 1000", n)
	}
}

func TestFromRemotePin_NoDescription(t *testing.T) {
	p := FromRemotePin(RemotePin{ID: "p1", URL: "https://a.test"})
	if p.Summary != nil {
		t.Errorf("expected no summary, got %+v", p.Summary)
	}
	if in := p.ToRemote(); in.Title != "https://a.test" {
		t.Errorf("empty title should fall back to url, got %q", in.Title)
	}
}

func TestCollectionMapping(t *testing.T) {
	c := FromRemoteCollection(RemoteCollection{ID: "c1", Name: "Go", Description: "language notes"})
	if c.Goal != "language notes" {
		t.Errorf("description should map to goal, got %q", c.Goal)
	}
	if in := c.ToRemote(); in.Description != "language notes" || in.ID != "c1" {
		t.Errorf("ToRemote() = %+v", in)
	}
}

func TestPin_SetDefaults(t *testing.T) {
	p := Pin{ID: "p1", Page: Page{URL: "https://news.ycombinator.com/item?id=1"}}
	p.SetDefaults()
	if p.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
	if p.Page.SiteName != "news.ycombinator.com" {
		t.Errorf("SiteName = %q", p.Page.SiteName)
	}
}

func TestSyncSettings_Validate(t *testing.T) {
	if err := DefaultSyncSettings().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	s := DefaultSyncSettings()
	s.SyncInterval = 0
	if err := s.Validate(); err == nil {
		t.Error("expected error for zero interval")
	}
	if got := DefaultSyncSettings().Interval(); got != 15*time.Minute {
		t.Errorf("Interval() = %v", got)
	}
}

func TestSyncStatus_Clone(t *testing.T) {
	now := time.Now()
	msg := "boom"
	s := SyncStatus{LastSyncTime: &now, Error: &msg}
	c := s.Clone()
	*c.Error = "changed"
	if s.ErrorMessage() != "boom" {
		t.Errorf("Clone shares error pointer")
	}
	if (SyncStatus{}).ErrorMessage() != "" {
		t.Errorf("empty status should have no error message")
	}
}
