// Package httpapi assembles the module handlers into one chi router.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"policykernel/internal/platform/metrics"
	"policykernel/pkg/platform/httputil"
	"policykernel/pkg/platform/middleware/auth"
	"policykernel/pkg/platform/middleware/metadata"
	"policykernel/pkg/platform/middleware/requestid"
	"policykernel/pkg/platform/middleware/requesttime"
)

// Routes is implemented by every module handler.
type Routes interface {
	Register(r chi.Router)
}

// PublicRoutes mounts endpoints that carry their own credential.
type PublicRoutes interface {
	RegisterPublic(r chi.Router)
}

// Check reports whether a backing dependency is reachable.
type Check func(ctx context.Context) error

type Config struct {
	Validator auth.TokenValidator
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Checks    map[string]Check
}

// NewRouter mounts public routes first, then every module behind bearer
// authentication. Capability checks live in each module's Register.
func NewRouter(cfg Config, modules ...Routes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestid.Middleware)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
		r.Handle("/metrics", metrics.Handler())
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readiness(cfg.Checks, cfg.Logger))

	for _, m := range modules {
		if p, ok := m.(PublicRoutes); ok {
			p.RegisterPublic(r)
		}
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(cfg.Validator, cfg.Logger))
		for _, m := range modules {
			m.Register(r)
		}
	})
	return r
}

func readiness(checks map[string]Check, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		result := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.WarnContext(ctx, "readiness check failed", "dependency", name, "error", err)
				result[name] = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			result[name] = "ok"
		}
		httputil.WriteJSON(w, status, result)
	}
}
