// Package httptransport assembles the HTTP surface: middleware stack,
// health and metrics endpoints, and the consent routes split into
// authenticated, public, and admin groups.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"consentd/internal/consent/handler"
	"consentd/internal/platform/health"
	"consentd/internal/platform/metrics"
	"consentd/internal/platform/middleware"
)

// Deps carries everything the router needs wired together.
type Deps struct {
	Consent         *handler.Handler
	Health          *health.Handler
	Metrics         *metrics.Metrics
	APIKeys         map[string]string
	BearerValidator middleware.BearerValidator
	AdminToken      string
	Logger          *slog.Logger
}

// NewRouter wires all endpoints with the middleware stack.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(endpointLatency(deps.Metrics))

	deps.Health.Register(r)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Agent-facing API: API key or bearer token required.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(deps.APIKeys, deps.BearerValidator, deps.Logger))
		r.Use(middleware.ContentTypeJSON)
		deps.Consent.Register(r)
	})

	// Click-to-consent: the response token in the URL is the credential.
	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		deps.Consent.RegisterPublic(r)
	})

	// Test tooling. An unset admin token means the routes do not exist at all
	// rather than existing behind an empty-string check.
	if deps.AdminToken != "" {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdminToken(deps.AdminToken, deps.Logger))
			r.Use(middleware.ContentTypeJSON)
			deps.Consent.RegisterAdmin(r)
		})
	}

	return r
}

// endpointLatency records per-route latency using the chi route pattern so
// that IDs and tokens do not explode metric cardinality.
func endpointLatency(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			next.ServeHTTP(w, r)
			pattern := chi.RouteContext(r.Context()).RoutePattern()
			if pattern == "" {
				pattern = "unmatched"
			}
			m.ObserveEndpointLatency(pattern, time.Since(start).Seconds())
		})
	}
}
