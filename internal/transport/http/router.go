// Package http exposes the published pipeline output tables as a read-only
// JSON API for external dashboard and report tooling.
package http

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grantlens/internal/config"
	"grantlens/internal/middleware"
	"grantlens/internal/store"
)

// NewRouter builds the API router with the standard middleware chain.
func NewRouter(cfg config.ServerConfig, st *store.Store, logger *slog.Logger) chi.Router {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))

	handler := NewResultsHandler(st, logger)
	r.Route("/api", handler.RegisterRoutes)

	r.Handle("/metrics", promhttp.Handler())

	return r
}
