package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/riskdesk/internal/domain"
	"github.com/opensource-finance/riskdesk/internal/metrics"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, deps Deps, version string) *Server {
	handler := NewHandler(deps, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	// Operational endpoints (no analyst required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Method(http.MethodGet, "/metrics", metrics.Handler())

	router.Route("/api", func(r chi.Router) {
		r.Use(AnalystMiddleware)

		// Feed and audit
		r.Get("/feed", handler.GetFeed)
		r.Get("/feed/{id}/audit", handler.GetAudit)
		r.Post("/feed/{id}/explain", handler.ExplainTransaction)
		r.Get("/model/metrics", handler.GetModelMetrics)

		// Simulator sessions
		r.Post("/sessions", handler.CreateSession)
		r.Get("/sessions/{id}", handler.GetSession)
		r.Delete("/sessions/{id}", handler.DeleteSession)
		r.Put("/sessions/{id}/threshold", handler.SetThreshold)
		r.Put("/sessions/{id}/selection", handler.SetSelection)
		r.Post("/sessions/{id}/simulations", handler.Simulate)

		// Audit log
		r.Get("/simulations", handler.ListSimulations)
		r.Get("/simulations/{id}", handler.GetSimulation)
		r.Get("/explanations", handler.ListExplanations)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
