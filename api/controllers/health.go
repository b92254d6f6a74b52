package controllers

import (
	"context"
	"net/http"

	"github.com/unibazzar/unibazzar-cart/api/responses"
	"github.com/unibazzar/unibazzar-cart/pkg/config"
	pkgerrors "github.com/unibazzar/unibazzar-cart/pkg/errors"
	"github.com/unibazzar/unibazzar-cart/pkg/logger"
)

const envHeader = "X-Unibazzar-Env"

// ReadinessChecker reports whether the snapshot storage is reachable.
type ReadinessChecker interface {
	Ready(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady fails with 503 while the snapshot storage cannot be reached.
// A cart running on the in-memory fallback reports ready but degraded.
func HealthReady(cfg *config.Config, logg *logger.Logger, storageName string, degraded bool, checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		if checker != nil {
			if err := checker.Ready(r.Context()); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "snapshot storage unreachable").
					WithDetails(map[string]any{"storage": storageName}))
				return
			}
		}

		status := "ready"
		if degraded {
			status = "degraded"
		}
		responses.WriteSuccess(w, map[string]string{"status": status, "storage": storageName})
	}
}
