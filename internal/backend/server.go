// Package backend is the reference REST API that pinsync clients sync
// against.
//
// Every record belongs to the owner named by the access token's subject.
// POST is create-if-absent: posting an id the owner already has returns the
// stored record with 200 instead of creating a second one, which lets
// clients retry pushes without duplicating data.
//
// Routes:
//
//	POST   /auth/refresh            {refresh_token} -> {access_token, expires_in}
//	GET    /collections
//	POST   /collections
//	GET    /collections/{id}
//	PATCH  /collections/{id}
//	DELETE /collections/{id}
//	GET    /pins[?collectionId=]
//	POST   /pins
//	GET    /pins/{id}
//	PATCH  /pins/{id}
//	DELETE /pins/{id}
package backend

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
)

// Config holds server configuration.
type Config struct {
	// Addr to listen on (default: 127.0.0.1:8080)
	Addr string

	// AllowedOrigins for CORS (default: none)
	AllowedOrigins []string

	// RequestTimeout bounds every request (default: 30s)
	RequestTimeout time.Duration

	// Logger for request and server activity (default: stderr logger)
	Logger *log.Logger
}

// Server serves the REST API.
type Server struct {
	repo      *Repository
	issuer    *Issuer
	validator *Validator
	config    *Config
	logger    *log.Logger
	router    chi.Router
}

// NewServer wires the router.
func NewServer(repo *Repository, issuer *Issuer, config *Config) (*Server, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository cannot be nil")
	}
	if issuer == nil {
		return nil, fmt.Errorf("issuer cannot be nil")
	}
	if config == nil {
		config = &Config{}
	}
	if config.Addr == "" {
		config.Addr = "127.0.0.1:8080"
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 30 * time.Second
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[backend] ", log.LstdFlags)
	}

	s := &Server{
		repo:      repo,
		issuer:    issuer,
		validator: NewValidator(),
		config:    config,
		logger:    config.Logger,
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(middleware.Timeout(s.config.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/auth/refresh", s.handleRefresh)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAccess)

		r.Route("/collections", func(r chi.Router) {
			r.Get("/", s.listCollections)
			r.Post("/", s.createCollection)
			r.Get("/{id}", s.getCollection)
			r.Patch("/{id}", s.updateCollection)
			r.Delete("/{id}", s.deleteCollection)
		})
		r.Route("/pins", func(r chi.Router) {
			r.Get("/", s.listPins)
			r.Post("/", s.createPin)
			r.Get("/{id}", s.getPin)
			r.Patch("/{id}", s.updatePin)
			r.Delete("/{id}", s.deletePin)
		})
	})

	return r
}

// Handler returns the root handler. Exposed for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("API listening on %s", ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Println("Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		return nil
	}
}

// requestLogger logs one line per request with status and duration.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Printf("%s %s %d %s [%s]", r.Method, r.URL.Path, ww.Status(),
			time.Since(start).Round(time.Microsecond), middleware.GetReqID(r.Context()))
	})
}

func newID() string {
	return uuid.NewString()
}
