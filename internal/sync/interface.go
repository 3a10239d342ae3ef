package sync

import (
	"context"

	"github.com/pinsync/pinsync/internal/schema"
)

// LocalStore is the on-device side of a pass.
//
// Implemented by *store.Store.
type LocalStore interface {
	// ListCollections returns every local collection. Order is not relied on.
	ListCollections(ctx context.Context) ([]*schema.Collection, error)

	// ListPins returns every local pin. Order is not relied on.
	ListPins(ctx context.Context) ([]*schema.Pin, error)

	// InsertCollection stores a collection pulled from the remote. The id is
	// already set and must be kept.
	InsertCollection(ctx context.Context, c *schema.Collection) error

	// InsertPin stores a pin pulled from the remote. The id is already set
	// and must be kept.
	InsertPin(ctx context.Context, p *schema.Pin) error
}

// Remote is the backend side of a pass.
//
// Implemented by *remote.Client. Create calls must be idempotent by id: when
// the id already exists the backend returns the existing record.
type Remote interface {
	ListCollections(ctx context.Context) ([]schema.RemoteCollection, error)
	ListPins(ctx context.Context) ([]schema.RemotePin, error)
	CreateCollection(ctx context.Context, in schema.CollectionInput) (*schema.RemoteCollection, error)
	CreatePin(ctx context.Context, in schema.PinInput) (*schema.RemotePin, error)
}

// TokenSource reports whether a cached bearer token exists.
type TokenSource interface {
	GetToken(ctx context.Context) (token string, ok bool, err error)
}

// Refresher renews the bearer token after an authentication failure.
type Refresher interface {
	Refresh(ctx context.Context) (token string, ok bool, err error)
}

// SettingsSource loads the persisted sync settings.
type SettingsSource interface {
	LoadSettings(ctx context.Context) (schema.SyncSettings, error)
}

// Connectivity reports whether the device is online.
type Connectivity interface {
	Online(ctx context.Context) bool
}

// ConnectivityFunc adapts a function to Connectivity.
type ConnectivityFunc func(ctx context.Context) bool

// Online implements Connectivity.
func (f ConnectivityFunc) Online(ctx context.Context) bool {
	return f(ctx)
}
