package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/pinsync/pinsync/internal/auth"
	"github.com/pinsync/pinsync/internal/daemon"
	"github.com/pinsync/pinsync/internal/dashboard"
	"github.com/pinsync/pinsync/internal/logging"
	"github.com/pinsync/pinsync/internal/remote"
	"github.com/pinsync/pinsync/internal/store"
	pinsync "github.com/pinsync/pinsync/internal/sync"
)

// fatal prints the error and exits.
func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// openStore opens and initializes the local database.
func openStore(ctx context.Context) *store.Store {
	s, err := store.Open(cfg.DBPath)
	if err != nil {
		fatal("opening database: %v", err)
	}
	if err := s.InitSchema(ctx); err != nil {
		_ = s.Close()
		fatal("initializing schema: %v", err)
	}
	return s
}

// stack is everything a sync pass needs.
type stack struct {
	store    *store.Store
	provider *auth.Provider
	engine   *pinsync.Engine
	service  *daemon.Service
}

// newStack builds the sync stack on top of s. Loggers come from sink.
func newStack(ctx context.Context, s *store.Store, sink *logging.Sink, metrics *dashboard.Metrics) (*stack, error) {
	provider := auth.NewProvider(s, auth.NewFileSession(cfg.CredentialsPath), sink.Logger("auth"))
	client := remote.New(cfg.APIURL, provider, remote.WithLogger(sink.Logger("remote")))

	checker, err := pinsync.NewDialChecker(cfg.APIURL)
	if err != nil {
		return nil, fmt.Errorf("invalid api_url: %w", err)
	}
	engine, err := pinsync.New(pinsync.Config{
		Local:        s,
		Remote:       client,
		Tokens:       provider,
		Settings:     s,
		Connectivity: checker,
		Refresher:    provider,
		Logger:       sink.Logger("sync"),
	})
	if err != nil {
		return nil, err
	}

	svcCfg := daemon.ServiceConfig{
		Engine: engine,
		Store:  s,
		Lease:  s,
		Logger: sink.Logger("daemon"),
	}
	if metrics != nil {
		svcCfg.OnPass = metrics.ObservePass
	}
	svc, err := daemon.NewService(ctx, svcCfg)
	if err != nil {
		return nil, err
	}
	return &stack{store: s, provider: provider, engine: engine, service: svc}, nil
}

// daemonClient returns a client for the running daemon, or nil when none
// answers.
func daemonClient(ctx context.Context) *dashboard.Client {
	c := dashboard.NewClient(cfg.Control.Addr())
	if _, err := c.Status(ctx); err != nil {
		if !errors.Is(err, dashboard.ErrDaemonUnavailable) {
			fmt.Fprintf(os.Stderr, "Warning: daemon at %s: %v\n", cfg.Control.Addr(), err)
		}
		return nil
	}
	return c
}

// commandSink is the log destination of one-shot commands: the configured
// log file, stderr with --verbose, or nowhere.
func commandSink() *logging.Sink {
	if cfg.Log.File != "" {
		sink, err := logging.Open(cfg.Log)
		if err == nil {
			return sink
		}
		fmt.Fprintf(os.Stderr, "Warning: opening log file: %v\n", err)
	}
	if verbose {
		return logging.NewSink(os.Stderr)
	}
	return logging.NewSink(io.Discard)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Printf("Error encoding JSON: %v", err)
	}
}
