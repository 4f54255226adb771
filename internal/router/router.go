// Package router sets up the HTTP routes and middleware chains of the
// taxonomy service. Routes are split into the admin API and the public
// storefront API, each with its own caching and throttling rules.
package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"taxonomy/internal/handlers"
	"taxonomy/internal/middleware"
)

// storefrontMaxAge is how long shared caches may keep storefront reads.
const storefrontMaxAge = 60 * time.Second

// Deps holds everything the router mounts.
type Deps struct {
	Nodes      *handlers.Nodes
	Storefront *handlers.Storefront

	// Limiter throttles storefront reads. Nil disables rate limiting.
	Limiter middleware.Limiter

	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// New creates the configured Chi router with all middleware and route
// groups wired up.
func New(d Deps) chi.Router {
	r := chi.NewRouter()

	// Global middleware, applied to every request.
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.SecureHeaders)

	r.Get("/health", healthHandler)

	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Admin API. Responses reflect writes immediately and are never cached.
	r.Route("/admin/nodes", func(r chi.Router) {
		r.Use(middleware.NoStore)
		d.Nodes.Routes(r)
	})

	// Storefront API. Read-only, cacheable and throttled per client.
	r.Route("/store/nodes", func(r chi.Router) {
		if d.Limiter != nil {
			r.Use(middleware.RateLimit(d.Limiter))
		}
		r.Use(middleware.PublicCache(storefrontMaxAge))
		d.Storefront.Routes(r)
	})

	return r
}

// healthHandler returns a simple JSON health check response.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
