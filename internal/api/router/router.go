package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	httpmiddleware "github.com/atulwalsh/legal-intake-ai/internal/http/middleware"
	"github.com/atulwalsh/legal-intake-ai/internal/session"
	"github.com/atulwalsh/legal-intake-ai/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	SessionHandler     *session.Handler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// Requests/sec and burst per client IP on the session routes.
	// Zero disables rate limiting.
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", cfg.SessionHandler.HealthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/sessions", func(sessions chi.Router) {
		if cfg.RateLimitPerSecond > 0 {
			sessions.Use(httpmiddleware.RateLimit(cfg.RateLimitPerSecond, cfg.RateLimitBurst))
		}
		sessions.Post("/", cfg.SessionHandler.Start)
		sessions.Route("/{caseID}", func(sr chi.Router) {
			sr.Get("/", cfg.SessionHandler.State)
			sr.Post("/messages", cfg.SessionHandler.Message)
			sr.Post("/uploads", cfg.SessionHandler.Upload)
		})
	})

	return r
}
