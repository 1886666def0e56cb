/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging through slog, tagged with the request ID
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for frontend
  5. Actor:      Caller identity from a bearer token or dev headers

ROUTE GROUPS:
  /api/policies/*       Policy management and resolution
  /api/contributions/*  Filing, editing, review transitions, credits
  /api/suggestions/*    Suggestion responses
  /api/admin/*          Recalculation and audit trail
  /api/scenarios/*      Demo scenarios
  /api/reset            Database reset (dev only)
  /healthz              Liveness

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Actor middleware
  - cmd/server/main.go: Server startup
*/
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig carries the settings the router needs from the environment.
type RouterConfig struct {
	CORSOrigins []string
	JWTSecret   string
	Logger      *slog.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	logger := cfg.Logger
	if logger == nil {
		logger = h.Logger
	}
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor-ID", "X-Actor-Role"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(ActorMiddleware(cfg.JWTSecret))

		// Policy routes
		r.Route("/policies", func(r chi.Router) {
			r.Get("/", h.ListPolicies)
			r.Post("/", h.CreatePolicy)
			r.Get("/resolve", h.ResolvePolicy)
			r.Get("/{id}", h.GetPolicy)
			r.Post("/{id}/deactivate", h.DeactivatePolicy)
		})

		// Contribution routes
		r.Route("/contributions", func(r chi.Router) {
			r.Get("/", h.ListContributions)
			r.Post("/", h.CreateContribution)
			r.Post("/preview", h.Preview)
			r.Get("/{id}", h.GetContribution)
			r.Put("/{id}", h.UpdateContribution)
			r.Put("/{id}/authors", h.UpdateAuthors)
			r.Post("/{id}/transitions", h.Transition)
			r.Get("/{id}/history", h.GetHistory)
			r.Get("/{id}/suggestions", h.GetSuggestions)
			r.Get("/{id}/credits", h.GetCredits)
			r.Post("/{id}/credits", h.CreditContribution)
			r.Post("/{id}/credits/{txID}/reverse", h.ReverseCredit)
			r.Post("/{id}/recalculate", h.Recalculate)
		})

		// Suggestion routes
		r.Post("/suggestions/{id}/respond", h.RespondToSuggestion)

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/recalculate", h.RecalculateAll)
			r.Get("/audit", h.QueryAudit)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
		r.Post("/reset", h.ResetDatabase)
	})

	return r
}

// requestLogger logs one line per request through slog.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("http request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
					"request_id", middleware.GetReqID(r.Context()))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
