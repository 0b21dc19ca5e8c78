package server

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/reurl/reurl/internal/handler"
	"github.com/reurl/reurl/internal/middleware"
)

// RouterConfig carries the handlers and middleware settings for NewRouter.
type RouterConfig struct {
	Logger        *slog.Logger
	IsDevelopment bool
	CORSOrigins   []string
	MaxBodySize   int64

	Root     *handler.Handler
	Health   *handler.HealthHandler
	Metrics  *handler.MetricsHandler
	Links    *handler.LinkHandler
	Stats    *handler.StatsHandler
	Redirect *handler.RedirectHandler

	Identity  middleware.IdentityConfig
	RateLimit middleware.RateLimitConfig
}

// NewRouter configures the chi router with all routes and middleware.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recoverer(cfg.Logger))
	r.Use(middleware.Security(middleware.SecurityConfig{IsDevelopment: cfg.IsDevelopment}))

	r.Get("/", cfg.Root.Root)
	r.Get("/healthz", cfg.Health.Healthz)
	r.Get("/readyz", cfg.Health.Readyz)
	r.Get("/metrics", cfg.Metrics.Metrics)

	// Static targets of the redirect responder. They are registered
	// explicitly so they never fall through to alias resolution.
	r.Get("/404", cfg.Root.NotFoundPage)
	r.Get("/password/{alias}", cfg.Root.PasswordPage)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins)))
		r.Use(middleware.MaxBodySize(cfg.MaxBodySize))
		r.Use(middleware.Identity(cfg.Identity))
		r.Use(middleware.RateLimitAPI(cfg.RateLimit))

		r.Post("/shorten", cfg.Links.Create)
		r.Get("/links", cfg.Links.List)
		r.Delete("/links/{id}", cfg.Links.Delete)
		r.Get("/stats", cfg.Stats.Stats)
		r.Get("/analytics", cfg.Stats.Analytics)

		r.NotFound(cfg.Root.NotFound)
		r.MethodNotAllowed(cfg.Root.MethodNotAllowed)
	})

	r.With(middleware.RateLimitIP(cfg.RateLimit)).Get("/{alias}", cfg.Redirect.Redirect)

	r.NotFound(cfg.Root.NotFound)
	r.MethodNotAllowed(cfg.Root.MethodNotAllowed)

	return r
}
