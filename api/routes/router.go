package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/guildlytics/guildlytics-backend/api/handlers"
	"github.com/guildlytics/guildlytics-backend/api/middleware"
	"github.com/guildlytics/guildlytics-backend/pkg/config"
	"github.com/guildlytics/guildlytics-backend/pkg/logger"
)

// NewRouter builds the collector's operational HTTP surface: liveness,
// readiness, and Prometheus metrics. There is no business API; events arrive
// over Pub/Sub.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	deps handlers.Dependencies,
	registry *prometheus.Registry,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Get("/healthz", handlers.Healthz(cfg))
	r.Get("/readyz", handlers.Readyz(cfg, logg, deps))

	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	return r
}
