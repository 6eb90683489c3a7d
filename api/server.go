/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     zap request logging (method, path, status, duration)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the portal front-end
  5. Identity:   X-User-ID -> scheduling.Caller (maintenance + directory routes)

ROUTE GROUPS:
  /api/maintenance/*    Availability, lifecycle, audit trail, export
  /api/directory/*      Company-scoped lookups for the booking form
  /api/scenarios/*      Demo scenarios (no identity required)
  /metrics              Prometheus scrape endpoint, when enabled
  /healthz              Liveness

IDENTITY:
  Authentication happens at the gateway, which forwards the user id in
  X-User-ID. The identity middleware resolves it through the directory;
  a missing or unknown id is answered with 401.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/gearguard/maintenance-engine/scheduling"
)

// UserHeader carries the pre-authenticated user id.
const UserHeader = "X-User-ID"

// RouterOptions configures NewRouter.
type RouterOptions struct {
	AllowedOrigins []string

	// Metrics is mounted at /metrics when non-nil.
	Metrics http.Handler
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", UserHeader},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(identity(h.Store, h.Logger))

			// Maintenance routes
			r.Route("/maintenance", func(r chi.Router) {
				r.Get("/", h.ListMaintenance)
				r.Post("/", h.CreateMaintenance)
				r.Post("/availability", h.Availability)
				r.Post("/worklog", h.PostWorkLog)
				r.Post("/reassign", h.Reassign)
				r.Get("/export", h.ExportMaintenance)
				r.Get("/{id}", h.GetMaintenance)
				r.Get("/{id}/worklogs", h.ListWorkLogs)
				r.Get("/{id}/reassignments", h.ListReassignments)
				r.Post("/{id}/cancel", h.CancelMaintenance)
			})

			// Directory routes
			r.Route("/directory", func(r chi.Router) {
				r.Get("/equipment", h.ListEquipment)
				r.Get("/work-centers", h.ListWorkCenters)
				r.Get("/teams", h.ListTeams)
			})
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("http request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

type callerKey struct{}

// WithCaller returns a context carrying caller.
func WithCaller(ctx context.Context, caller scheduling.Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFrom returns the caller placed by the identity middleware.
func CallerFrom(ctx context.Context) (scheduling.Caller, bool) {
	caller, ok := ctx.Value(callerKey{}).(scheduling.Caller)
	return caller, ok
}

func identity(dir scheduling.Directory, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(UserHeader)
			if raw == "" {
				writeError(w, http.StatusUnauthorized, "Missing caller identity", nil)
				return
			}
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Invalid caller identity", err)
				return
			}
			user, err := dir.GetUser(r.Context(), scheduling.UserID(id))
			if err != nil {
				logger.Error("failed to resolve caller", zap.Int64("user_id", id), zap.Error(err))
				writeError(w, http.StatusInternalServerError, "Failed to resolve caller", err)
				return
			}
			if user == nil || !user.Role.Valid() {
				writeError(w, http.StatusUnauthorized, "Unknown caller", nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), user.Caller())))
		})
	}
}
