// Package httptransport assembles the HTTP surface: middleware chain,
// reservation routes, health and metrics endpoints.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"egireserve/internal/reservation/handler"
	"egireserve/pkg/platform/middleware/auth"
	"egireserve/pkg/platform/middleware/requestid"
	"egireserve/pkg/platform/middleware/requesttime"
)

// NewRouter wires the middleware chain and mounts the reservation API.
// Identity is optional on the outer chain; individual routes opt into
// requiring it.
func NewRouter(h *handler.Handler, validator auth.TokenValidator, logger *slog.Logger, registry *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(requestid.Middleware)
	r.Use(requesttime.Middleware)
	r.Use(chimiddleware.Timeout(30 * time.Second))
	r.Use(auth.OptionalAuth(validator, logger))

	h.Register(r)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}
	return r
}
