package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/forkpoint/loyalty-backend/api/responses"
	"github.com/forkpoint/loyalty-backend/pkg/config"
	pkgerrors "github.com/forkpoint/loyalty-backend/pkg/errors"
	"github.com/forkpoint/loyalty-backend/pkg/logger"
)

// Pinger is any dependency that can report liveness.
type Pinger interface {
	Ping(context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Loyalty-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every hard dependency with a short deadline.
func HealthReady(cfg *config.Config, logg *logger.Logger, db Pinger, redis Pinger, pubsub Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Loyalty-Env", cfg.App.Env)
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks := map[string]Pinger{
			"database": db,
			"redis":    redis,
			"pubsub":   pubsub,
		}
		status := map[string]string{}
		failed := false
		for name, dep := range checks {
			if dep == nil {
				status[name] = "skipped"
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				status[name] = "down"
				failed = true
				continue
			}
			status[name] = "ok"
		}

		if failed {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeDependency, "dependency not ready").WithDetails(status))
			return
		}
		responses.WriteSuccess(w, status)
	}
}
