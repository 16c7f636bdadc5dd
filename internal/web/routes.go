package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/reunite/internal/web/handlers"
	"github.com/kozaktomas/reunite/internal/web/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) setupRoutes() {
	d := s.deps

	// Create handlers
	healthHandler := handlers.NewHealthHandler(d.Ready)
	ingestHandler := handlers.NewIngestHandler(d.Ingester)
	identitiesHandler := handlers.NewIdentitiesHandler(d.Identities, d.Gallery, d.Enroller)
	alertsHandler := handlers.NewAlertsHandler(d.Alerts)
	stationsHandler := handlers.NewStationsHandler(d.Stations, d.Directory)

	limiter := middleware.NewCameraLimiter(d.Ingest.RatePerCamera, d.Ingest.Burst)

	// Health and metrics (no auth required)
	s.router.Get("/health", healthHandler.Check)
	s.router.Get("/api/v1/health", healthHandler.Check)
	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		// Camera feeds
		r.With(middleware.RateLimit(limiter, d.Metrics.RecordRateLimited)).Post("/ingest", ingestHandler.Ingest)

		// Identities and enrollment
		r.Get("/identities", identitiesHandler.List)
		r.Post("/identities", identitiesHandler.Create)
		r.Get("/identities/{id}", identitiesHandler.Get)
		r.Post("/identities/{id}/enroll", identitiesHandler.Enroll)

		// Stations
		r.Get("/stations", stationsHandler.List)
		r.Get("/stations/nearest", stationsHandler.Nearest)

		// Notifications of the authenticated handler
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireHandler())

			r.Get("/alerts", alertsHandler.List)
			r.Get("/alerts/{id}", alertsHandler.Get)
			r.Post("/alerts/{id}/action", alertsHandler.Action)
		})
	})
}
