// Package auth keeps a fresh bearer token for the remote client.
//
// The Provider caches the last access token in the local store's metadata
// table. Reads never leave the device; Refresh asks the identity Session for a
// new token and overwrites the cache. A background loop refreshes every five
// minutes, independent of sync scheduling, and a file watcher reacts to
// sign-in and sign-out by refreshing or clearing the cache.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pinsync/pinsync/internal/store"
)

// DefaultRefreshInterval is how often RunRefreshLoop refreshes the token.
const DefaultRefreshInterval = 5 * time.Minute

// ErrNoSession is returned by a Session when the user is signed out.
var ErrNoSession = errors.New("no identity session")

// Session issues access tokens from an identity service.
type Session interface {
	AccessToken(ctx context.Context) (string, error)
}

// TokenStore persists the cached token.
type TokenStore interface {
	GetMetadata(ctx context.Context, key string) (string, error)
	SetMetadata(ctx context.Context, key, value string) error
	DeleteMetadata(ctx context.Context, key string) error
}

// Provider supplies the cached bearer token and refreshes it on demand.
type Provider struct {
	store   TokenStore
	session Session
	logger  *log.Logger
}

// NewProvider creates a Provider. session may be nil, in which case Refresh
// always reports an absent token. A nil logger writes to stderr.
func NewProvider(ts TokenStore, session Session, logger *log.Logger) *Provider {
	if logger == nil {
		logger = log.New(os.Stderr, "[auth] ", log.LstdFlags)
	}
	return &Provider{store: ts, session: session, logger: logger}
}

// GetToken returns the cached token. It never contacts the identity service.
func (p *Provider) GetToken(ctx context.Context) (string, bool, error) {
	token, err := p.store.GetMetadata(ctx, store.KeyAuthToken)
	if errors.Is(err, store.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read cached token: %w", err)
	}
	return token, token != "", nil
}

// Refresh requests a new token, caches it and returns it. Without a session
// it logs and reports the token as absent.
func (p *Provider) Refresh(ctx context.Context) (string, bool, error) {
	if p.session == nil {
		p.logger.Printf("no identity session, skipping token refresh")
		return "", false, nil
	}

	token, err := p.session.AccessToken(ctx)
	if errors.Is(err, ErrNoSession) {
		p.logger.Printf("signed out, skipping token refresh")
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to refresh token: %w", err)
	}
	if token == "" {
		return "", false, fmt.Errorf("identity service returned an empty token")
	}

	if err := p.store.SetMetadata(ctx, store.KeyAuthToken, token); err != nil {
		return "", false, err
	}
	return token, true, nil
}

// SetToken caches a token obtained out of band.
func (p *Provider) SetToken(ctx context.Context, token string) error {
	return p.store.SetMetadata(ctx, store.KeyAuthToken, token)
}

// Clear drops the cached token. Used on sign-out.
func (p *Provider) Clear(ctx context.Context) error {
	return p.store.DeleteMetadata(ctx, store.KeyAuthToken)
}

// RunRefreshLoop refreshes the token every interval until ctx is done.
// A non-positive interval selects DefaultRefreshInterval.
func (p *Provider) RunRefreshLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := p.Refresh(ctx); err != nil && ctx.Err() == nil {
				p.logger.Printf("token refresh failed: %v", err)
			}
		}
	}
}
