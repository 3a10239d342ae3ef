package schema

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Collection is a named, user-owned group of pins.
type Collection struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`

	// Goal is the purpose statement used for AI auto-categorization.
	Goal  string `json:"goal,omitempty" yaml:"goal,omitempty"`
	Color string `json:"color,omitempty" yaml:"color,omitempty"`

	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
}

// Validate checks that the collection can be stored.
func (c *Collection) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("id is required")
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if len(c.Name) > 200 {
		return fmt.Errorf("name must be 200 characters or less (got %d)", len(c.Name))
	}
	if n := utf8.RuneCountInString(c.Goal); n > 2000 {
		return fmt.Errorf("goal must be 2000 characters or less (got %d)", n)
	}
	if c.Color != "" && !isHexColor(c.Color) {
		return fmt.Errorf("color must be a hex value like #a1b2c3 (got %q)", c.Color)
	}
	return nil
}

// ToRemote maps the collection to the input accepted by POST /collections.
// The id is always carried so both sides agree on it.
func (c *Collection) ToRemote() CollectionInput {
	return CollectionInput{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Goal,
		Color:       normalizeColor(c.Color),
	}
}

// FromRemoteCollection maps a remote collection into the local shape.
func FromRemoteCollection(rc RemoteCollection) *Collection {
	return &Collection{
		ID:        rc.ID,
		Name:      rc.Name,
		Goal:      rc.Description,
		Color:     rc.Color,
		CreatedAt: rc.CreatedAt,
	}
}

func normalizeColor(s string) string {
	if s == "" || strings.HasPrefix(s, "#") {
		return s
	}
	return "#" + s
}

func isHexColor(s string) bool {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 3 && len(s) != 6 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
