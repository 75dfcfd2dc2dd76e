// Package api exposes the audience engine over HTTP: segment CRUD and
// estimation for the authoring UI, and audience resolution for the
// campaign-send pipeline.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ignite/audience-engine/internal/audience"
	"github.com/ignite/audience-engine/internal/auth"
	"github.com/ignite/audience-engine/internal/telemetry"
)

// Deps bundles the wired audience components.
type Deps struct {
	Store      *audience.Store
	Estimator  *audience.Estimator
	Resolver   *audience.Resolver
	Aggregator *audience.Aggregator
}

// NewRouter builds the HTTP router with all routes and middleware.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(telemetry.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", auth.TenantHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	segments := &SegmentAPI{store: deps.Store, estimator: deps.Estimator}
	resolve := &AudienceAPI{estimator: deps.Estimator, resolver: deps.Resolver, aggregator: deps.Aggregator}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware)
		segments.RegisterRoutes(r)
		resolve.RegisterRoutes(r)
	})

	return r
}
