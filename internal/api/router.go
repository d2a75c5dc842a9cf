// Package api serves the cascade preview and apply endpoints used by the
// confirmation dialog.
package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/satyaki-up/matorral/internal/cascade"
	"github.com/satyaki-up/matorral/internal/issues"
)

// NewRouter creates the Chi router with all routes and middleware.
func NewRouter(svc *issues.Service, engine *cascade.Engine, apiKey string, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Recovery(logger))

	healthH := NewHealthHandler(svc)
	cascadeH := NewCascadeHandler(svc, engine, logger)

	r.Get("/health", healthH.Health)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(apiKey))

		r.Route("/w/{workspace}", func(r chi.Router) {
			r.Use(WorkspaceResolver(svc))
			r.Post("/status", cascadeH.SetStatus)
			r.Get("/cascade/preview", cascadeH.Preview)
			r.Post("/cascade/apply", cascadeH.Apply)
		})
	})

	return r
}
