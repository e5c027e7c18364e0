// Package app assembles the HTTP router, readiness probes and background
// jobs from the adapters and usecases.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpserver "github.com/fairyhunter13/interview-prep/internal/adapter/httpserver"
	"github.com/fairyhunter13/interview-prep/internal/adapter/observability"
	"github.com/fairyhunter13/interview-prep/internal/config"
)

// ParseOrigins splits a comma-separated origin list, trimming spaces. An
// empty list means "*".
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the HTTP handler with all middlewares and routes.
func BuildRouter(cfg config.Config, srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(httpserver.TraceMiddleware)
	r.Use(srv.Sessions.Session)
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	origins := ParseOrigins(cfg.CORSAllowOrigins)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "Retry-After"},
		AllowCredentials: len(origins) > 0 && origins[0] != "*",
		MaxAge:           300,
	}))

	limit := cfg.RateLimitPerMin
	if limit <= 0 {
		limit = 30
	}
	perIP := httprate.LimitByIP(limit, time.Minute)

	r.Route("/api", func(api chi.Router) {
		api.Use(httpserver.TimeoutMiddleware(cfg.RequestTimeout))

		api.Group(func(w chi.Router) {
			w.Use(perIP)
			w.Post("/create-interview", srv.CreateInterviewHandler())
			w.Post("/generate-questions", srv.GenerateQuestionsHandler(""))
			w.Post("/groq-generate-questions", srv.GenerateQuestionsHandler("groq"))
			w.Post("/gemini-generate-questions", srv.GenerateQuestionsHandler("gemini"))
			w.Post("/fast-feedback", srv.FastFeedbackHandler())
			w.Post("/setanswers", srv.SetAnswersHandler())
			w.Post("/complete-interview", srv.CompleteInterviewHandler())
		})
		api.Get("/fast-feedback", srv.FeedbackStatusHandler())

		api.Group(func(a chi.Router) {
			a.Use(httpserver.RequireSession)
			a.Get("/user-interviews", srv.UserInterviewsHandler())
			a.Get("/performance-stats", srv.PerformanceStatsHandler())
			a.Get("/interview-debug", srv.InterviewDebugHandler())
			a.Group(func(w chi.Router) {
				w.Use(perIP)
				w.Post("/save-performance", srv.SavePerformanceHandler())
				w.Post("/fix-completed-interviews", srv.FixCompletedHandler())
				w.Delete("/delete-interview", srv.DeleteInterviewHandler())
			})
		})

		if cfg.IsDev() && srv.Sessions.Enabled() {
			api.Post("/dev/session", srv.DevSessionHandler())
		}
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", srv.ReadyzHandler())
	r.Handle("/metrics", promhttp.Handler())

	return httpserver.SecurityHeaders(r)
}
