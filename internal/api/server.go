package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/modhost/internal/display"
	"github.com/mattjoyce/modhost/internal/events"
	"github.com/mattjoyce/modhost/internal/journal"
	"github.com/mattjoyce/modhost/internal/loader"
	"github.com/mattjoyce/modhost/internal/module"
)

// CategoryRegistry exposes per-category dispatch state.
type CategoryRegistry interface {
	State(c module.Category) module.State
	Entries(c module.Category) []module.Entry
}

// ModuleSet lists the modules known to the loader.
type ModuleSet interface {
	Modules() []loader.Module
}

// SubsystemSet reports which operation tables are bound.
type SubsystemSet interface {
	Status() map[string]bool
}

// History reads the load-attempt journal.
type History interface {
	Recent(ctx context.Context, moduleID string, limit int) ([]journal.Attempt, error)
}

// Feed is the startup event stream.
type Feed interface {
	Since(after int64) []events.Event
	Subscribe() (<-chan events.Event, func())
}

// Config holds API server configuration
type Config struct {
	Listen string
	// APIKey guards the /v1 routes when set.
	APIKey string
	BootID string
}

// Deps are the host components the API reads from. History, Display and
// Events are optional.
type Deps struct {
	Registry   CategoryRegistry
	Modules    ModuleSet
	Subsystems SubsystemSet
	History    History
	Display    *display.Table
	Events     Feed
}

// Server is the read-only introspection HTTP server.
type Server struct {
	config    Config
	deps      Deps
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance
func New(config Config, deps Deps, logger *slog.Logger) *Server {
	return &Server{
		config:    config,
		deps:      deps,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)

	r.Route("/v1", func(r chi.Router) {
		if s.config.APIKey != "" {
			r.Use(s.authMiddleware)
		}
		r.Get("/categories", s.handleCategories)
		r.Get("/categories/{category}", s.handleCategory)
		r.Get("/modules", s.handleModules)
		r.Get("/modules/{id}/history", s.handleModuleHistory)
		r.Get("/subsystems", s.handleSubsystems)
		r.Get("/display", s.handleDisplay)
		r.Get("/events", s.handleEvents)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
