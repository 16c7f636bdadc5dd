// Package web exposes the ingest, enrollment and notification HTTP API.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/reunite/internal/config"
	"github.com/kozaktomas/reunite/internal/database"
	"github.com/kozaktomas/reunite/internal/logging"
	"github.com/kozaktomas/reunite/internal/metrics"
	"github.com/kozaktomas/reunite/internal/web/handlers"
	"github.com/kozaktomas/reunite/internal/web/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// Deps are the components served over HTTP.
type Deps struct {
	Ingester   handlers.Ingester
	Enroller   handlers.Enroller
	Alerts     handlers.AlertService
	Identities database.IdentityWriter
	Gallery    database.GalleryReader
	Stations   database.StationReader
	Directory  handlers.NearestFinder
	Ready      func() bool
	Gatherer   prometheus.Gatherer
	Metrics    *metrics.Metrics
	Ingest     config.IngestConfig
	Origins    []string
	Logger     *slog.Logger
}

// Server represents the web server
type Server struct {
	deps       Deps
	router     *chi.Mux
	httpServer *http.Server
	log        *slog.Logger
}

// NewServer creates a new web server
func NewServer(deps Deps, host string, port int) *Server {
	r := chi.NewRouter()
	logger := logging.OrDiscard(deps.Logger)

	s := &Server{
		deps:   deps,
		router: r,
		log:    logger,
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(time.Minute))
	r.Use(middleware.CORS(deps.Origins))
	r.Use(middleware.SecurityHeaders())

	// Set up routes
	s.setupRoutes()

	// Create HTTP server
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute, // enrollment uploads run the model per image
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info("starting web server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down web server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
