package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/echomem/echomem/config"
	"github.com/echomem/echomem/pkg/api/handlers"
	"github.com/echomem/echomem/pkg/api/middleware"
	"github.com/echomem/echomem/pkg/logger"
)

// Handlers holds all HTTP handlers.
type Handlers struct {
	// Memory handles the memory ingestion and recall endpoints.
	Memory *handlers.MemoryHandler

	// Health handles health check endpoints.
	Health *handlers.HealthHandler

	// Metrics is the optional metrics recorder.
	Metrics middleware.MetricsRecorder
}

// NewRouter creates a new chi router with middleware and routes.
func NewRouter(cfg *config.Config, log logger.Logger, handlers *Handlers) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID())
	if cfg.Tracing.Enabled {
		r.Use(middleware.Tracing(middleware.DefaultTracingOptions()))
	}
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))

	if handlers.Metrics != nil {
		r.Use(middleware.Metrics(handlers.Metrics))
	}

	r.Use(middleware.CORS(&cfg.Server.CORS))
	r.Use(middleware.Timeout(cfg.Server.HTTP.RequestTimeout))

	RegisterRoutes(r, handlers)

	return r
}

// RegisterRoutes registers all API routes.
func RegisterRoutes(r chi.Router, handlers *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		if handlers.Memory != nil {
			r.Route("/memory", func(r chi.Router) {
				r.Post("/turns", handlers.Memory.RememberTurn)
				r.Post("/recall", handlers.Memory.Recall)
				r.Post("/flush", handlers.Memory.FlushSession)
				r.Get("/stats", handlers.Memory.Stats)
			})
		}
	})

	if handlers.Health != nil {
		r.Get("/health", handlers.Health.Health)
		r.Get("/ready", handlers.Health.Ready)
		r.Get("/status", handlers.Health.Status)
	}
}
