// Package api exposes the HTTP surface: prediction, configuration
// management, and health.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/ranges"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, scorer *scoring.Engine, interpreter *ranges.Interpreter, ruleEngine *rules.Engine, processor *decision.Processor, version string, rateLimit domain.RateLimitConfig) *Server {
	handler := NewHandler(repo, cache, bus, scorer, interpreter, ruleEngine, processor, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (tenant required, rate limited)
	router.Route("/", func(r chi.Router) {
		r.Use(TenantMiddleware)
		r.Use(RateLimitMiddleware(cache, rateLimit))

		// Applicant evaluation
		r.Post("/predict", handler.Predict)

		// Decision retrieval
		r.Get("/decisions/{id}", handler.GetDecision)
		r.Get("/decisions/{id}/executions", handler.GetDecisionExecutions)

		// Rule management
		r.Get("/rules", handler.ListRules)
		r.Post("/rules", handler.CreateRule)
		r.Post("/rules/execute", handler.ExecuteRules)
		r.Post("/rules/reload", handler.ReloadRules)
		r.Get("/rules/{id}", handler.GetRule)
		r.Put("/rules/{id}", handler.UpdateRule)
		r.Patch("/rules/{id}", handler.PatchRule)
		r.Delete("/rules/{id}", handler.DeleteRule)

		// Score range management
		r.Get("/score-range", handler.ListScoreRanges)
		r.Post("/score-range", handler.CreateScoreRange)
		r.Get("/score-range/validate", handler.ValidateScoreRanges)
		r.Post("/score-range/seed", handler.SeedScoreRanges)
		r.Post("/score-range/reload", handler.ReloadScoreRanges)
		r.Get("/score-range/{id}", handler.GetScoreRange)
		r.Put("/score-range/{id}", handler.UpdateScoreRange)
		r.Patch("/score-range/{id}", handler.PatchScoreRange)
		r.Delete("/score-range/{id}", handler.DeleteScoreRange)

		// Scoring factor management
		r.Get("/scoring-config", handler.ListScoringFactors)
		r.Post("/scoring-config", handler.CreateScoringFactor)
		r.Post("/scoring-config/seed", handler.SeedScoringFactors)
		r.Post("/scoring-config/reload", handler.ReloadScoringFactors)
		r.Get("/scoring-config/{id}", handler.GetScoringFactor)
		r.Put("/scoring-config/{id}", handler.UpdateScoringFactor)
		r.Delete("/scoring-config/{id}", handler.DeleteScoringFactor)
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
