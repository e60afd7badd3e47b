// Package server provides the HTTP server and routing for Horizon.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/horizon/internal/database"
	"github.com/aristath/horizon/internal/events"
	"github.com/aristath/horizon/internal/run"
	"github.com/aristath/horizon/internal/snapshots"
)

// Config holds server configuration
type Config struct {
	Log          zerolog.Logger
	Port         int
	DevMode      bool
	SnapshotsDB  *database.DB
	Repository   *snapshots.Repository
	Orchestrator *run.Orchestrator
	EventBus     *events.Bus
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
}

// Request timeouts. Triggers get a longer budget: a run fans out a forecast
// per instrument and a backfill replays a whole date range.
const (
	requestTimeout = 60 * time.Second
	triggerTimeout = 5 * time.Minute
)

// New creates a new HTTP server with all routes registered
func New(cfg Config) *Server {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	log := cfg.Log.With().Str("component", "server").Logger()

	allocationHandlers := NewAllocationHandlers(cfg.Repository, cfg.Orchestrator, log)
	systemHandlers := NewSystemHandlers(cfg.SnapshotsDB, log)
	eventsHandler := NewEventsHandler(cfg.EventBus, log)

	router.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))
			r.Get("/allocations", allocationHandlers.ReadRange)
			r.Get("/allocations/latest", allocationHandlers.Latest)
			r.Get("/system/health", systemHandlers.Health)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(triggerTimeout))
			r.Post("/runs", allocationHandlers.TriggerRun)
			r.Post("/backfill", allocationHandlers.TriggerBackfill)
		})

		// Long-lived stream; the connection is hijacked, no request timeout.
		r.Get("/events/ws", eventsHandler.ServeWS)
	})

	return &Server{
		router: router,
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: triggerTimeout, // the slowest non-hijacked routes
		},
		log: log,
	}
}

// Start begins serving HTTP requests. Blocks until the server stops.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP server starting")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("HTTP server shutting down")
	return s.server.Shutdown(ctx)
}
