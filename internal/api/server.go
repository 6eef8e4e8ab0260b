// Package api wires the HTTP command layer: middleware, routes and docs.
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	corslib "github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/oshri1997/Deal-Hunter/internal/api/handler"
	"github.com/oshri1997/Deal-Hunter/internal/config"
)

// NewRouter creates and configures the Chi router with all middleware and routes.
func NewRouter(h *handler.Handler, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	// --- Middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(TimingMiddleware)
	r.Use(middleware.Compress(5)) // gzip

	// CORS
	c := corslib.New(corslib.Options{
		AllowedOrigins:   cfg.CORSAllowOrigins,
		AllowedMethods:   []string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Encoding", "Authorization", "Content-Type", "If-None-Match", "Cache-Control"},
		ExposedHeaders:   []string{"X-Process-Time", "X-Cache", "ETag"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	// Rate limiting
	if cfg.RateLimitEnabled {
		r.Use(RateLimitMiddleware(cfg.RateLimitRequests, cfg.RateLimitWindow))
	}

	// --- Routes ---

	// Root
	r.Get("/", h.Root)

	// Health checks
	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.HealthCheck)
		r.Get("/db", h.HealthCheckDB)
		r.Get("/cache", h.HealthCheckCache)
	})

	// Prometheus
	r.Handle("/metrics", promhttp.Handler())

	// Swagger UI
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/docs/doc.json")))

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/regions", h.GetRegions)
		r.Get("/deals/{region}", h.GetRegionDeals)

		// Games
		r.Get("/games/search", h.SearchGames)
		r.Get("/games/{gameID}/compare", h.CompareGame)

		// Users
		r.Route("/users/{userID}", func(r chi.Router) {
			r.Put("/", h.PutUser)
			r.Get("/", h.GetUser)
			r.Put("/cadence", h.PutCadence)
			r.Get("/deals", h.GetUserDeals)

			r.Get("/regions", h.GetUserRegions)
			r.Post("/regions", h.PostUserRegion)
			r.Delete("/regions/{code}", h.DeleteUserRegion)

			r.Get("/wishlist", h.GetWishlist)
			r.Post("/wishlist", h.PostWishlist)
			r.Delete("/wishlist/{gameID}", h.DeleteWishlist)

			r.Get("/alerts", h.GetAlerts)
			r.Post("/alerts", h.PostAlert)
			r.Delete("/alerts/{alertID}", h.DeleteAlert)
		})
	})

	// Admin routes exist only when a signing secret is configured
	if cfg.AdminJWTSecret != "" {
		r.Route("/admin", func(r chi.Router) {
			r.Use(AdminMiddleware(AdminTokens{Secret: []byte(cfg.AdminJWTSecret)}))
			r.Post("/scrape", h.PostScrape)
			r.Post("/observations", h.PostObservations)
			r.Put("/users/{userID}/tier", h.PutUserTier)
		})
	}

	return r
}
