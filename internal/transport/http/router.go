// Package httptransport is the thin HTTP layer over the registry service.
// Handlers decode, validate and delegate; business rules live in the service.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"landledger/internal/platform/middleware"
)

// NewRouter assembles the middleware chain and mounts all endpoints. Health
// and metrics stay outside the auth boundary; everything under /api/v1
// requires a bearer token.
func NewRouter(h *Handler, admin *AdminHandler, auth *middleware.JWTValidator, logger *slog.Logger, requestTimeout time.Duration) http.Handler {
	if requestTimeout <= 0 {
		requestTimeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.ContentTypeJSON)

	r.Get("/health", h.HandleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.RequireAuth(auth, logger))
		h.Register(api)
		admin.Register(api)
	})
	return r
}
