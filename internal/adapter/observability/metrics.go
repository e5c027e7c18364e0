package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
		},
		[]string{"route", "method"},
	)

	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Total number of AI requests by provider and operation",
		},
		[]string{"provider", "operation"},
	)
	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "AI request duration in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"provider", "operation"},
	)

	ProviderFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_fallbacks_total",
			Help: "Provider attempts that failed or were skipped, by reason",
		},
		[]string{"provider", "reason"},
	)
	QuestionSetsGeneratedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "question_sets_generated_total",
			Help: "Question sets stored, by provenance",
		},
		[]string{"provenance"},
	)

	InterviewsScoredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interviews_scored_total",
			Help: "Performance records written, by source",
		},
		[]string{"source"},
	)
	OverallScoreHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "interview_overall_score",
			Help:    "Distribution of overall interview scores ([0,100])",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)

	RepairFixedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repair_fixed_total",
			Help: "Interviews rewritten by the consistency repair, by kind",
		},
		[]string{"kind"},
	)
	LockConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_lock_conflicts_total",
			Help: "Requests rejected because the interview lock was held",
		},
		[]string{"scope"},
	)
)

var initOnce sync.Once

// InitMetrics registers the collectors with the default registry. Safe to call
// more than once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			AIRequestsTotal,
			AIRequestDuration,
			ProviderFallbacksTotal,
			QuestionSetsGeneratedTotal,
			InterviewsScoredTotal,
			OverallScoreHistogram,
			RepairFixedTotal,
			LockConflictsTotal,
		)
	})
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}

// ObserveAIRequest records one upstream provider call.
func ObserveAIRequest(provider, operation string, start time.Time) {
	AIRequestsTotal.WithLabelValues(provider, operation).Inc()
	AIRequestDuration.WithLabelValues(provider, operation).Observe(time.Since(start).Seconds())
}

// RecordProviderFallback counts a failed or skipped provider attempt.
func RecordProviderFallback(provider, reason string) {
	if reason == "" {
		reason = "error"
	}
	ProviderFallbacksTotal.WithLabelValues(provider, reason).Inc()
}

// RecordQuestionSet counts a stored question set.
func RecordQuestionSet(provenance string) {
	QuestionSetsGeneratedTotal.WithLabelValues(provenance).Inc()
}

// ObserveScore records a written performance record.
func ObserveScore(source string, overall float64) {
	InterviewsScoredTotal.WithLabelValues(source).Inc()
	if overall >= 0 && overall <= 100 {
		OverallScoreHistogram.Observe(overall)
	}
}

// RecordRepair counts repaired interviews of a kind (status, owner).
func RecordRepair(kind string, n int) {
	if n > 0 {
		RepairFixedTotal.WithLabelValues(kind).Add(float64(n))
	}
}

// RecordLockConflict counts a lock rejection for scope (generate, score).
func RecordLockConflict(scope string) {
	LockConflictsTotal.WithLabelValues(scope).Inc()
}

// Recorder forwards use case outcomes to the package-level collectors.
type Recorder struct{}

func (Recorder) ProviderFallback(provider, reason string) { RecordProviderFallback(provider, reason) }
func (Recorder) QuestionSet(provenance string)            { RecordQuestionSet(provenance) }
func (Recorder) Scored(source string, overall float64)    { ObserveScore(source, overall) }
func (Recorder) Repaired(kind string, n int)              { RecordRepair(kind, n) }
func (Recorder) LockConflict(scope string)                { RecordLockConflict(scope) }
