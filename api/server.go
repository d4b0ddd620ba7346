/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  X-Request-Id header or a fresh uuid, attached to the context logger
  2. Logging:    request.start / request.complete through zerolog
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the partner portal

ROUTE GROUPS:
  /api/reports/*        Recomputed rankings, partner totals, scheduled runs
  /api/tiers/*          Multiplier tier administration
  /api/settings/*       Submission cutoff day
  /api/companies/*      Point submissions by partner companies
  /api/points/preview   Point credit calculator
  /api/scenarios/*      Demo scenarios
  /metrics              Prometheus exposition
  /health               Liveness

SECURITY NOTE:
  No authentication middleware. The company id in the path is trusted.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warp/loyalty-engine/logger"
)

const requestIDHeader = "X-Request-Id"

type RouterOptions struct {
	CORSOrigins []string
	// Gatherer backs /metrics. Nil leaves the route unmounted.
	Gatherer prometheus.Gatherer
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Middleware
	r.Use(RequestID(h.Logger))
	r.Use(Logging(h.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/reports", func(r chi.Router) {
			r.Get("/offices", h.OfficeReport)
			r.Get("/professionals", h.ProfessionalReport)
			r.Get("/partners", h.PartnerReport)
			r.Get("/runs", h.ListReportRuns)
		})

		r.Route("/tiers", func(r chi.Router) {
			r.Get("/", h.ListTiers)
			r.Put("/", h.ReplaceTiers)
			r.Post("/", h.CreateTier)
			r.Delete("/{id}", h.DeleteTier)
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/cutoff-day", h.GetCutoffDay)
			r.Put("/cutoff-day", h.UpdateCutoffDay)
		})

		r.Route("/companies/{companyID}/points", func(r chi.Router) {
			r.Post("/", h.SubmitPoints)
			r.Put("/{id}", h.UpdatePoints)
			r.Delete("/{id}", h.DeletePoints)
		})

		r.Get("/points/preview", h.PreviewPoints)

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

// RequestID propagates or creates a request id and attaches it to the
// context logger.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get(requestIDHeader)
			if reqID == "" {
				reqID = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, reqID)

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithRequestID(ctx, reqID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Logging emits structured start/completion logs for each request.
func Logging(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logg == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			ctx := logg.WithFields(r.Context(), map[string]any{
				"method": r.Method,
				"path":   r.URL.Path,
			})
			logg.Debug(ctx, "request.start")

			next.ServeHTTP(rec, r.WithContext(ctx))

			ctx = logg.WithFields(ctx, map[string]any{
				"status":      rec.status,
				"duration_ms": time.Since(start).Milliseconds(),
			})
			if rec.status >= http.StatusInternalServerError {
				logg.Warn(ctx, "request.complete")
				return
			}
			logg.Info(ctx, "request.complete")
		})
	}
}
