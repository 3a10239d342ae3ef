package schema

import "time"

// RemoteCollection is the collection document served by GET /collections.
type RemoteCollection struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Color       string    `json:"color,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// RemotePin is the pin document served by GET /pins.
type RemotePin struct {
	ID           string    `json:"id"`
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	ImageURL     string    `json:"imageUrl,omitempty"`
	CollectionID string    `json:"collectionId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// CollectionInput is the body of POST /collections.
type CollectionInput struct {
	ID          string `json:"id,omitempty" validate:"omitempty,max=64"`
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description,omitempty" validate:"max=2000"`
	Color       string `json:"color,omitempty" validate:"omitempty,hexcolor"`
}

// PinInput is the body of POST /pins.
type PinInput struct {
	ID           string   `json:"id,omitempty" validate:"omitempty,max=64"`
	URL          string   `json:"url" validate:"required,url"`
	Title        string   `json:"title" validate:"max=1000"`
	Description  string   `json:"description,omitempty"`
	ImageURL     string   `json:"imageUrl,omitempty" validate:"omitempty,url"`
	CollectionID string   `json:"collectionId,omitempty" validate:"omitempty,max=64"`
	Tags         []string `json:"tags,omitempty" validate:"max=32,dive,max=64"`
}
