// Package app wires application components and startup helpers.
//
// It provides dependency injection and application initialization,
// coordinating between the domain's core resilience components and their
// adapters.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpserver "github.com/briskprint/printservice/internal/adapter/httpserver"
	"github.com/briskprint/printservice/internal/adapter/observability"
	"github.com/briskprint/printservice/internal/config"
)

// ParseOrigins splits a comma-separated origin list into a slice, trimming spaces.
// If the input is empty, returns ["*"].
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return []string{"*"}
	}
	if s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the HTTP handler with all middlewares and routes.
func BuildRouter(cfg config.Config, srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(httpserver.TimeoutMiddleware(30 * time.Second))
	r.Use(httpserver.TraceMiddleware)
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Order ingest is the one externally-driven write path; rate limit it.
	r.Group(func(wr chi.Router) {
		wr.Use(httprate.LimitByIP(cfg.RateLimitPerMin, 1*time.Minute))
		wr.Post("/v1/orders", srv.SubmitOrderHandler())
	})

	// Operator surface: status, recovery, statistics, circuit breakers,
	// notifications. Read-mostly, not rate limited beyond the defaults.
	r.Get("/v1/status/recovery", srv.RecoveryStatusHandler())
	r.Post("/v1/recovery/trigger", srv.TriggerRecoveryHandler())
	r.Get("/v1/statistics/queue", srv.QueueStatisticsHandler())
	r.Get("/v1/statistics/jobs", srv.JobStatisticsHandler())
	r.Get("/v1/health", srv.HealthStatusHandler())
	r.Post("/v1/health/check", srv.TriggerHealthCheckHandler())
	r.Get("/v1/circuit/{name}", srv.CircuitStatusHandler())
	r.Post("/v1/circuit/{name}/reset", srv.CircuitResetHandler())
	r.Get("/v1/notifications/status", srv.NotificationStatusHandler())
	r.Post("/v1/notifications/test", srv.NotificationTestHandler())

	r.Get("/healthz", srv.HealthzHandler())
	r.Get("/readyz", srv.ReadyzHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) { promhttp.Handler().ServeHTTP(w, r) })

	return httpserver.SecurityHeaders(r)
}
