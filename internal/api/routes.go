package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"env.share/config"
	"env.share/internal/envstore"
	"env.share/internal/share"
)

func SetupRouter(shares *share.Service, env envstore.Store, cfg *config.Config) *chi.Mux {
	h := NewHandler(shares, env, cfg)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(RequestID)
	r.Use(Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// CORS
	r.Use(CORS(CORSConfig{
		AllowedOrigins: []string{"127.0.0.1"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		MaxAge:         86400,
	}))

	// Health
	r.Get("/health", h.Health)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(JSONOnly)
		if cfg.RateLimit.Enabled {
			apiLimiter := NewRateLimiter(cfg.RateLimit.RequestsPerMin, time.Minute)
			r.Use(apiLimiter.Middleware)
		}

		// Owner surface: grant lifecycle and variable management.
		r.Route("/environments/{environmentID}", func(r chi.Router) {
			r.Post("/shares", h.CreateShare)
			r.Get("/shares", h.ListShares)
			r.Get("/variables", h.ListVariables)
			r.Put("/variables", h.PutVariable)
			r.Delete("/variables/{key}", h.DeleteVariable)
		})
		r.Delete("/shares/{shareID}", h.RevokeShare)

		// Holder surface: token-addressed access with a tighter limiter.
		r.Route("/share/{token}", func(r chi.Router) {
			if cfg.RateLimit.Enabled {
				accessLimiter := NewRateLimiter(cfg.RateLimit.AccessPerMin, time.Minute)
				r.Use(accessLimiter.Middleware)
			}
			r.Post("/view", h.ViewShare)
			r.Post("/download", h.DownloadShare)
			r.Get("/status", h.ShareStatus)
		})
	})

	return r
}
