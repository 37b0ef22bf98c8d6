// Package api serves the operator HTTP API: health, the command catalog,
// registry reloads, recent command history and a live event stream.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/herald/internal/audit"
	"github.com/mattjoyce/herald/internal/auth"
	"github.com/mattjoyce/herald/internal/command"
	"github.com/mattjoyce/herald/internal/events"
	"github.com/mattjoyce/herald/internal/transport"
)

// Reloader rebuilds the command registry.
type Reloader interface {
	Reload(ctx context.Context) (commands, failures int, err error)
}

// StateSource reports the bridge connection state.
type StateSource interface {
	State() transport.ConnectionState
}

// EventSource is the read side of the event hub.
type EventSource interface {
	Since(lastID int64) []events.Event
	Subscribe() (<-chan events.Event, func())
}

// HistorySource lists recent command outcomes.
type HistorySource interface {
	Recent(ctx context.Context, limit int) ([]audit.Record, error)
}

// Config holds API server configuration.
type Config struct {
	Listen string
	// APIKey is the single bearer token with full access.
	APIKey string
	// Tokens is an optional list of scoped bearer tokens.
	Tokens []auth.TokenConfig
}

// Deps are the components the API reads from. Reloader and History may be
// nil; their endpoints then answer 503.
type Deps struct {
	Registry *command.Live
	State    StateSource
	Events   EventSource
	Reloader Reloader
	History  HistorySource
}

// Server is the operator HTTP API.
type Server struct {
	config    Config
	deps      Deps
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
	keepAlive time.Duration
}

// New creates an API server.
func New(config Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		config:    config,
		deps:      deps,
		logger:    logger,
		startedAt: time.Now(),
		keepAlive: 15 * time.Second,
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("api listen %s: %w", s.config.Listen, err)
	}

	s.server = &http.Server{
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
		// SSE connections outlive any write timeout.
		WriteTimeout: 0,
	}

	s.logger.Info("API server starting", "listen", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.With(s.requireScopes(auth.ScopeCommandsRead)).Get("/commands", s.handleCommands)
		r.With(s.requireScopes(auth.ScopeCommandsRead)).Get("/commands/{name}", s.handleCommand)
		r.With(s.requireScopes(auth.ScopeReload)).Post("/reload", s.handleReload)
		r.With(s.requireScopes(auth.ScopeAuditRead)).Get("/audit", s.handleAudit)
		r.With(s.requireScopes(auth.ScopeEventsRead)).Get("/events", s.handleEvents)
	})

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
