// Package server exposes the engine over HTTP.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dativo-io/piiguard/internal/engine"
	"github.com/dativo-io/piiguard/internal/otel"
)

const defaultTimeout = 60 * time.Second

// Server holds the dependencies of the HTTP API.
type Server struct {
	router       *chi.Mux
	engine       *engine.Engine
	corsOrigins  []string
	maxBodyBytes int64
	timeout      time.Duration
	startTime    time.Time
}

// Option configures the Server.
type Option func(*Server)

// WithCORSOrigins sets allowed CORS origins (e.g. ["*"] for any).
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithMaxBodyBytes bounds request bodies. Non-positive values keep the default.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithRequestTimeout sets the per-request deadline for API routes.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewServer builds a Server around eng.
func NewServer(eng *engine.Engine, opts ...Option) *Server {
	s := &Server{
		router:       chi.NewRouter(),
		engine:       eng,
		maxBodyBytes: 4 << 20,
		timeout:      defaultTimeout,
		startTime:    time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the configured http.Handler (chi router with all middleware and routes).
func (s *Server) Routes() http.Handler {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(otel.MiddlewareWithStatus())
	if len(s.corsOrigins) > 0 {
		r.Use(CORSMiddleware(s.corsOrigins))
	}

	r.Get("/health", s.handleHealth)
	r.Get("/v1/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.timeout))
		r.Use(MaxBodyMiddleware(s.maxBodyBytes))

		r.Post("/v1/analyze", s.handleAnalyze)
		r.Post("/v1/anonymize", s.handleAnonymize)
		r.Post("/v1/deanonymize", s.handleDeanonymize)
		r.Get("/v1/entities", s.handleEntities)
		r.Get("/v1/entities/{language}", s.handleEntities)
		r.Get("/v1/config", s.handleConfig)

		// Unversioned aliases for clients written against Presidio-style services.
		r.Post("/analyze", s.handleAnalyze)
		r.Post("/anonymize", s.handleAnonymize)
	})

	return r
}
