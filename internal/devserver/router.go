// Package devserver is an in-memory reference implementation of the grading
// backend's REST API. It backs the end-to-end tests and `edusync devserver`.
package devserver

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/edusync/edusync/internal/metrics"
	"github.com/edusync/edusync/internal/ratelimit"
)

// RouterDeps holds all dependencies for the API router.
type RouterDeps struct {
	Store   *Store
	Tokens  *Tokens
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	// LoginLimiter throttles POST /api/login per client address. Nil
	// disables throttling.
	LoginLimiter *ratelimit.Limiter
}

// NewRouter builds the chi router with all routes and middleware. API routes
// live under /api; health and metrics sit at the root.
func NewRouter(deps RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	var rec HTTPRecorder
	if deps.Metrics != nil {
		rec = deps.Metrics
	}

	r.Use(chimw.Recoverer)
	r.Use(requestLogger(logger, rec))

	auth := &authHandler{store: deps.Store, tokens: deps.Tokens, limiter: deps.LoginLimiter, logger: logger}
	teachers := &teachersHandler{store: deps.Store, logger: logger}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler())
		r.Get("/metrics/summary", deps.Metrics.SummaryHandler())
	}

	r.Route("/api", func(ar chi.Router) {
		ar.With(ratelimit.Middleware(deps.LoginLimiter, ratelimit.ByRemoteIP, func() {
			logger.Warn("login throttled")
			if deps.Metrics != nil {
				deps.Metrics.IncRateLimitRejection("login")
			}
		})).Post("/login", auth.Login)

		ar.Group(func(authed chi.Router) {
			authed.Use(requireAuth(deps.Tokens, deps.Store))

			authed.Get("/me", auth.Me)

			authed.Group(func(admin chi.Router) {
				admin.Use(requireRole(RoleAdmin))

				admin.Get("/maestros", teachers.List)
				admin.Post("/register-maestro", teachers.Register)
				admin.Put("/edit-maestro/{id}", teachers.Edit)
				admin.Delete("/delete-maestro/{id}", teachers.Delete)
			})
		})
	})

	return r
}
