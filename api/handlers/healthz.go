package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/guildlytics/guildlytics-backend/api/responses"
	"github.com/guildlytics/guildlytics-backend/pkg/config"
	pkgerrors "github.com/guildlytics/guildlytics-backend/pkg/errors"
	"github.com/guildlytics/guildlytics-backend/pkg/logger"
)

const readinessTimeout = 5 * time.Second

// Pinger verifies a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies are the backing services the readiness probe checks.
type Dependencies struct {
	Redis    Pinger
	PubSub   Pinger
	BigQuery Pinger
}

func Healthz(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Guildlytics-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "ok"})
	}
}

func Readyz(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.HandlerFunc {
	checks := []struct {
		name   string
		pinger Pinger
	}{
		{"redis", deps.Redis},
		{"pubsub", deps.PubSub},
		{"bigquery", deps.BigQuery},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		w.Header().Set("X-Guildlytics-Env", cfg.App.Env)
		for _, check := range checks {
			if check.pinger == nil {
				continue
			}
			if err := check.pinger.Ping(ctx); err != nil {
				failCtx := logg.WithField(ctx, "dependency", check.name)
				responses.WriteError(failCtx, logg, w,
					pkgerrors.Wrap(pkgerrors.CodeDependency, err, check.name+" unreachable"))
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
