// Package daemon runs the background sync process.
//
// The daemon:
// 1. Owns the sync settings and status (Service) and publishes every status
// change on a Broker
// 2. Runs reconciliation passes on a timer, on demand and when sync is enabled
// 3. Keeps the cached access token fresh and follows sign-in/sign-out
// 4. Serves the control surface (dashboard) for the CLI and other clients
// 5. Handles graceful shutdown
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/pinsync/pinsync/internal/auth"
	"github.com/pinsync/pinsync/internal/dashboard"
)

// Config holds configuration for the daemon.
type Config struct {
	// Service is the sync orchestrator. Required.
	Service *Service

	// Provider keeps the access token fresh. Optional.
	Provider *auth.Provider

	// CredentialsPath is watched for sign-in/sign-out when Provider is set.
	CredentialsPath string

	// RefreshInterval is how often the token is refreshed
	// (default: auth.DefaultRefreshInterval)
	RefreshInterval time.Duration

	// Server is the control server. Optional.
	Server *dashboard.Server

	// Logger for daemon activity
	Logger *log.Logger
}

// Daemon ties the orchestrator, token upkeep and control server together.
type Daemon struct {
	config *Config
	logger *log.Logger
	wg     sync.WaitGroup
}

// New creates a daemon. Use Run to start it.
func New(config *Config) (*Daemon, error) {
	if config == nil || config.Service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}
	return &Daemon{config: config, logger: config.Logger}, nil
}

// Run starts everything and blocks until ctx is cancelled, then shuts down
// in reverse order.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Println("Starting daemon")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	svc := d.config.Service
	if p := d.config.Provider; p != nil {
		if _, ok, err := p.Refresh(runCtx); err != nil {
			d.logger.Printf("Warning: initial token refresh failed: %v", err)
		} else if !ok {
			d.logger.Println("Not signed in, sync waits for credentials")
		}

		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			p.RunRefreshLoop(runCtx, d.config.RefreshInterval)
		}()

		if d.config.CredentialsPath != "" {
			d.wg.Add(1)
			go func() {
				defer d.wg.Done()
				if err := auth.WatchCredentials(runCtx, d.config.CredentialsPath, p); err != nil {
					d.logger.Printf("Warning: not watching credentials: %v", err)
				}
			}()
		}
	}

	if err := svc.Start(runCtx); err != nil {
		cancel()
		d.wg.Wait()
		return fmt.Errorf("failed to start sync service: %w", err)
	}

	if srv := d.config.Server; srv != nil {
		updates, unsubscribe := svc.Subscribe(32)
		defer unsubscribe()
		srv.Forward(updates)
		if err := srv.Start(); err != nil {
			cancel()
			d.wg.Wait()
			svc.Stop()
			return err
		}
	}

	if svc.Settings().Enabled {
		svc.Trigger()
	}

	<-runCtx.Done()
	d.logger.Println("Shutdown signal received")

	if srv := d.config.Server; srv != nil {
		if err := srv.Stop(); err != nil {
			d.logger.Printf("Error stopping control server: %v", err)
		}
	}
	d.wg.Wait()
	svc.Stop()

	d.logger.Println("Daemon stopped")
	return nil
}
