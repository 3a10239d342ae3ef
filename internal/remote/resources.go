package remote

import (
	"context"
	"net/http"
	"net/url"

	"github.com/pinsync/pinsync/internal/schema"
)

// ListCollections returns every collection owned by the caller.
func (c *Client) ListCollections(ctx context.Context) ([]schema.RemoteCollection, error) {
	var out []schema.RemoteCollection
	if err := c.do(ctx, "list collections", http.MethodGet, "/collections", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out, nil
}

// ListPins returns every pin owned by the caller.
func (c *Client) ListPins(ctx context.Context) ([]schema.RemotePin, error) {
	return c.listPins(ctx, "/pins")
}

// ListPinsByCollection returns the caller's pins in one collection.
func (c *Client) ListPinsByCollection(ctx context.Context, collectionID string) ([]schema.RemotePin, error) {
	return c.listPins(ctx, "/pins?collectionId="+url.QueryEscape(collectionID))
}

func (c *Client) listPins(ctx context.Context, path string) ([]schema.RemotePin, error) {
	var out []schema.RemotePin
	if err := c.do(ctx, "list pins", http.MethodGet, path, nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateCollection creates a collection, or returns the existing one when
// in.ID is already known to the backend.
func (c *Client) CreateCollection(ctx context.Context, in schema.CollectionInput) (*schema.RemoteCollection, error) {
	var out schema.RemoteCollection
	err := c.do(ctx, "create collection", http.MethodPost, "/collections", in, &out,
		http.StatusOK, http.StatusCreated)
	if err != nil {
		return nil, err
	}
	c.logger.Printf("created collection %s", out.ID)
	return &out, nil
}

// CreatePin creates a pin, or returns the existing one when in.ID is already
// known to the backend.
func (c *Client) CreatePin(ctx context.Context, in schema.PinInput) (*schema.RemotePin, error) {
	var out schema.RemotePin
	err := c.do(ctx, "create pin", http.MethodPost, "/pins", in, &out,
		http.StatusOK, http.StatusCreated)
	if err != nil {
		return nil, err
	}
	c.logger.Printf("created pin %s", out.ID)
	return &out, nil
}
