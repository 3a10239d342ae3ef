package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pinsync/pinsync/internal/backend"
	"github.com/pinsync/pinsync/internal/logging"
	"github.com/pinsync/pinsync/internal/ui"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "server",
	Short:   "Run the pinsync backend API",
	Long: `Run the REST backend that clients sync with.

Data lives in server.dsn: a SQLite path (default) or a postgres:// URL.
Tokens are signed with server.jwt_secret; mint refresh tokens for users with
'pinsync token issue <owner>'.

Endpoints:
  POST /auth/refresh
  GET|POST /collections, GET|PATCH|DELETE /collections/{id}
  GET|POST /pins,        GET|PATCH|DELETE /pins/{id}
  GET /health`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Addr = addr
		}

		sink, err := logging.Open(cfg.Log)
		if err != nil {
			fatal("opening log: %v", err)
		}
		defer sink.Close()

		issuer, err := backend.NewIssuer(cfg.Server.JWTSecret, cfg.Server.AccessTTL, cfg.Server.RefreshTTL)
		if err != nil {
			fatal("%v (set server.jwt_secret or PINSYNC_SERVER_JWT_SECRET)", err)
		}

		repo, err := openRepository(ctx, cfg.Server.DSN)
		if err != nil {
			fatal("%v", err)
		}
		defer repo.Close()

		srv, err := backend.NewServer(repo, issuer, &backend.Config{
			Addr:           cfg.Server.Addr,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			Logger:         sink.Logger("backend"),
		})
		if err != nil {
			fatal("%v", err)
		}

		fmt.Printf("%s pinsync API on http://%s\n", ui.RenderAccent("🚀"), cfg.Server.Addr)
		fmt.Printf("   Database: %s\n", redactDSN(cfg.Server.DSN))
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		if err := srv.ListenAndServe(ctx); err != nil {
			fatal("%v", err)
		}
		fmt.Println("Server stopped")
	},
}

// openRepository creates the parent directory of a SQLite DSN before opening.
func openRepository(ctx context.Context, dsn string) (*backend.Repository, error) {
	if !isPostgresDSN(dsn) {
		path := strings.TrimPrefix(dsn, "sqlite://")
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	return backend.OpenRepository(ctx, dsn)
}

func isPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// redactDSN hides the password of a postgres URL.
func redactDSN(dsn string) string {
	if !isPostgresDSN(dsn) {
		return dsn
	}
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://") + 3
	colon := strings.Index(dsn[scheme:], ":")
	if at < 0 || colon < 0 || scheme+colon > at {
		return dsn
	}
	return dsn[:scheme+colon+1] + "****" + dsn[at:]
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default: server.addr)")
	rootCmd.AddCommand(serveCmd)
}
