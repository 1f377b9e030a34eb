package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"go-business-hub/internal/config"
	"go-business-hub/internal/handler"
	"go-business-hub/internal/metrics"
	"go-business-hub/internal/middleware"
)

type Handlers struct {
	Auth  *handler.AuthHandler
	User  *handler.UserHandler
	RBAC  *handler.RBACHandler
	Audit *handler.AuditHandler
}

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker func(ctx context.Context) error

func New(
	cfg *config.Config,
	authMiddleware *middleware.AuthMiddleware,
	rateLimitMiddleware *middleware.RateLimitMiddleware,
	h Handlers,
	health HealthChecker,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.ClientAddress(middleware.NewProxyTrust(cfg.TrustProxyHeaders, cfg.TrustedProxies)))
	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(metrics.Instrument)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(rateLimitMiddleware.Handler)
	r.Use(authMiddleware.Authenticate)

	r.Get("/health", healthHandler(health))
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Post("/api/auth/login", h.Auth.Login)
		api.Post("/api/auth/refresh", h.Auth.Refresh)

		guarded := api.With(middleware.Authorize(AccessPolicy()))
		guarded.Post("/api/auth/logout", h.Auth.Logout)
		guarded.Get("/api/auth/me", h.Auth.Me)

		guarded.Get("/api/users", h.User.List)
		guarded.Get("/api/users/{id}", h.User.Get)
		guarded.Patch("/api/users/{id}/status", h.User.UpdateStatus)
		guarded.Delete("/api/users/{id}", h.User.Delete)

		guarded.Get("/api/roles", h.RBAC.Roles)
		guarded.Get("/api/permissions", h.RBAC.Permissions)
		guarded.Get("/api/company", h.RBAC.Company)
		guarded.Get("/api/companies", h.RBAC.Companies)

		guarded.Get("/api/audit", h.Audit.List)
	})

	return r
}

func healthHandler(check HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			if err := check(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("unavailable"))
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
