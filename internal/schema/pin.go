package schema

import (
	"fmt"
	"net/url"
	"time"
	"unicode/utf8"
)

// Page holds the captured metadata of a pinned URL.
type Page struct {
	URL        string `json:"url" yaml:"url"`
	Title      string `json:"title,omitempty" yaml:"title,omitempty"`
	OGImageURL string `json:"ogImageUrl,omitempty" yaml:"ogImageUrl,omitempty"`
	SiteName   string `json:"siteName,omitempty" yaml:"siteName,omitempty"`
}

// Summary is an AI-produced digest of the page.
type Summary struct {
	Text      string    `json:"text" yaml:"text"`
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
}

// Pin is a saved reference to a URL belonging to one collection.
type Pin struct {
	ID           string   `json:"id" yaml:"id"`
	CollectionID string   `json:"collectionId,omitempty" yaml:"collectionId,omitempty"`
	Page         Page     `json:"page" yaml:"page"`
	Summary      *Summary `json:"summary,omitempty" yaml:"summary,omitempty"`
	Note         string   `json:"note,omitempty" yaml:"note,omitempty"`

	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
}

// Validate checks that the pin can be stored locally.
// A pin without a collection is storable but not syncable.
func (p *Pin) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("id is required")
	}
	if p.Page.URL == "" {
		return fmt.Errorf("page.url is required")
	}
	if _, err := url.Parse(p.Page.URL); err != nil {
		return fmt.Errorf("page.url is invalid: %w", err)
	}
	if !isAbsoluteURL(p.Page.URL) {
		return fmt.Errorf("page.url must be absolute (got %q)", p.Page.URL)
	}
	if len(p.Page.Title) > 1000 {
		return fmt.Errorf("page.title must be 1000 characters or less (got %d)", len(p.Page.Title))
	}
	return nil
}

// Syncable reports whether the push phase may transmit this pin.
func (p *Pin) Syncable() bool {
	return p.CollectionID != "" && p.Page.URL != ""
}

// ToRemote maps the pin to the input accepted by POST /pins. An image URL
// the backend would reject (relative, scheme-less) is dropped rather than
// failing the push, and the title is cut to the backend's limit.
func (p *Pin) ToRemote() PinInput {
	in := PinInput{
		ID:           p.ID,
		URL:          p.Page.URL,
		Title:        p.Page.Title,
		CollectionID: p.CollectionID,
	}
	if isAbsoluteURL(p.Page.OGImageURL) {
		in.ImageURL = p.Page.OGImageURL
	}
	if p.Summary != nil {
		in.Description = p.Summary.Text
	}
	if in.Title == "" {
		in.Title = p.Page.URL
	}
	in.Title = truncateRunes(in.Title, maxRemoteTitle)
	return in
}

const maxRemoteTitle = 1000

func isAbsoluteURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// FromRemotePin maps a remote pin into the local shape. A remote
// description becomes the local summary text.
func FromRemotePin(rp RemotePin) *Pin {
	p := &Pin{
		ID:           rp.ID,
		CollectionID: rp.CollectionID,
		Page: Page{
			URL:        rp.URL,
			Title:      rp.Title,
			OGImageURL: rp.ImageURL,
		},
		CreatedAt: rp.CreatedAt,
	}
	if rp.Description != "" {
		p.Summary = &Summary{Text: rp.Description, CreatedAt: rp.CreatedAt}
	}
	return p
}

// SetDefaults fills in creation time and derives the site name from the URL.
func (p *Pin) SetDefaults() {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.Page.SiteName == "" {
		if u, err := url.Parse(p.Page.URL); err == nil {
			p.Page.SiteName = u.Hostname()
		}
	}
}
