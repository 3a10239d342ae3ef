package auth

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// CredentialsOp is the kind of change seen on the credentials file.
type CredentialsOp int

const (
	// SignedIn means the file was created or rewritten.
	SignedIn CredentialsOp = iota
	// SignedOut means the file was removed or renamed away.
	SignedOut
)

func (op CredentialsOp) String() string {
	switch op {
	case SignedIn:
		return "signed-in"
	case SignedOut:
		return "signed-out"
	default:
		return "unknown"
	}
}

// CredentialsWatcher reports sign-in and sign-out by watching the directory
// holding the credentials file. The directory is watched rather than the file
// so that creation after sign-out is observed.
type CredentialsWatcher struct {
	watcher *fsnotify.Watcher
	path    string
	events  chan CredentialsOp
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewCredentialsWatcher creates a watcher for the file at path. Call Start.
func NewCredentialsWatcher(path string) (*CredentialsWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &CredentialsWatcher{
		watcher: w,
		path:    abs,
		events:  make(chan CredentialsOp, 16),
		errors:  make(chan error, 4),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching. The credentials directory is created if needed.
func (cw *CredentialsWatcher) Start() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.running {
		return fmt.Errorf("watcher already running")
	}

	dir := filepath.Dir(cw.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}
	if err := cw.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	cw.running = true
	cw.wg.Add(1)
	go cw.processEvents()
	return nil
}

// Stop ends watching and blocks until the event loop exits. It also releases
// a watcher that was never started.
func (cw *CredentialsWatcher) Stop() error {
	cw.mu.Lock()
	wasRunning := cw.running
	cw.running = false
	cw.mu.Unlock()

	if !wasRunning {
		return cw.watcher.Close()
	}

	close(cw.done)
	if err := cw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	cw.wg.Wait()
	close(cw.events)
	close(cw.errors)
	return nil
}

// Events emits sign-in and sign-out notifications. Closed by Stop.
func (cw *CredentialsWatcher) Events() <-chan CredentialsOp {
	return cw.events
}

// Errors emits watcher errors. Closed by Stop.
func (cw *CredentialsWatcher) Errors() <-chan error {
	return cw.errors
}

func (cw *CredentialsWatcher) processEvents() {
	defer cw.wg.Done()

	for {
		select {
		case <-cw.done:
			return

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			op, ok := cw.convertEvent(event)
			if !ok {
				continue
			}
			select {
			case cw.events <- op:
			case <-cw.done:
				return
			}

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			select {
			case cw.errors <- err:
			case <-cw.done:
				return
			}
		}
	}
}

func (cw *CredentialsWatcher) convertEvent(event fsnotify.Event) (CredentialsOp, bool) {
	name, err := filepath.Abs(event.Name)
	if err != nil || name != cw.path {
		return 0, false
	}
	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		return SignedIn, true
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return SignedOut, true
	default:
		return 0, false
	}
}

// WatchCredentials keeps the provider's cache in step with the credentials
// file until ctx is done: sign-out clears the cached token, sign-in refreshes
// it.
func WatchCredentials(ctx context.Context, path string, p *Provider) error {
	cw, err := NewCredentialsWatcher(path)
	if err != nil {
		return err
	}
	if err := cw.Start(); err != nil {
		_ = cw.Stop()
		return err
	}
	defer func() { _ = cw.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case op := <-cw.Events():
			switch op {
			case SignedOut:
				if err := p.Clear(ctx); err != nil {
					p.logger.Printf("failed to clear token on sign-out: %v", err)
				} else {
					p.logger.Printf("credentials removed, token cleared")
				}
			case SignedIn:
				if _, _, err := p.Refresh(ctx); err != nil {
					p.logger.Printf("token refresh after sign-in failed: %v", err)
				}
			}
		case err := <-cw.Errors():
			p.logger.Printf("credentials watcher error: %v", err)
		}
	}
}
