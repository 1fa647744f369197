package router

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"atstore-api/internal/handler"
	"atstore-api/internal/metrics"
	"atstore-api/internal/middleware"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler          *handler.Handler
	InventoryHandler *handler.InventoryHandler
	OrderHandler     *handler.OrderHandler
	WebhookHandler   *handler.WebhookHandler
	Auth             *middleware.Authenticator
	Logger           *zap.Logger
	Metrics          *metrics.Metrics
	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.NewRecovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.NewLogging(logger, cfg.Metrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
	}
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	auth := cfg.Auth
	if auth == nil {
		auth = middleware.NewAuthenticator(middleware.AuthConfig{Logger: logger})
	}

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Handler != nil {
			r.Get("/health", cfg.Handler.Health)
			r.Get("/ready", cfg.Handler.Ready)
		}

		// Authenticated by the Apikey header inside the handler
		if cfg.WebhookHandler != nil {
			r.Post("/webhooks/payment", cfg.WebhookHandler.Payment)
		}

		if cfg.OrderHandler != nil {
			r.Route("/orders", func(r chi.Router) {
				r.With(auth.Optional).Post("/", cfg.OrderHandler.Create)
				r.With(auth.Admin).Get("/", cfg.OrderHandler.List)
				r.With(auth.Required).Get("/mine", cfg.OrderHandler.Mine)
				r.Get("/{orderId}", cfg.OrderHandler.Get)
			})
		}

		if cfg.InventoryHandler != nil {
			h := cfg.InventoryHandler
			r.Route("/listings", func(r chi.Router) {
				// Public
				r.Get("/game/{game}", h.ListByGame)
				r.Get("/{id}", h.GetListing)
				r.Get("/{id}/categories", h.ListCategories)

				// Owner
				r.Group(func(r chi.Router) {
					r.Use(auth.Required)
					r.Get("/owner", h.ListMine)
					r.Get("/owner/stats", h.Stats)
					r.Post("/", h.CreateListing)
					r.Delete("/{id}", h.DeleteListing)
					r.Put("/{id}/type", h.UpdateType)
					r.Post("/{id}/categories", h.AddCategory)
					r.Put("/{id}/categories/{categoryId}", h.UpdateCategory)
					r.Post("/{id}/categories/{categoryId}/items", h.AddItem)
					r.Put("/{id}/categories/{categoryId}/items/{itemId}", h.UpdateItem)
					r.Delete("/{id}/categories/{categoryId}/items/{itemId}", h.RemoveItem)
				})
			})
		}
	})

	return r
}
