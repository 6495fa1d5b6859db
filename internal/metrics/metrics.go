// Package metrics exposes Prometheus collectors for HTTP traffic and the
// onboarding flow.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcomes recorded by the domain counters.
const (
	OutcomeCreated = "created"
	OutcomeUpdated = "updated"
	OutcomeNoop    = "noop"
	OutcomeFailed  = "failed"
	OutcomeSent    = "sent"
)

// Recorder holds the collectors. A nil *Recorder records nothing.
type Recorder struct {
	service   string
	requests  *prometheus.CounterVec
	durations *prometheus.HistogramVec
	status    *prometheus.CounterVec
	steps     *prometheus.CounterVec
	emails    *prometheus.CounterVec
	gatherer  prometheus.Gatherer
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in tests.
func New(service string, reg *prometheus.Registry) *Recorder {
	m := &Recorder{
		service: service,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"service", "method", "path", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"service", "method", "path", "status"}),
		status: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_status_category_total",
			Help: "Total number of responses by status category (2xx, 4xx, 5xx)",
		}, []string{"service", "category", "method", "path"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_steps_total",
			Help: "Onboarding step executions by outcome",
		}, []string{"step", "outcome"}),
		emails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "emails_total",
			Help: "Transactional emails by kind and outcome",
		}, []string{"kind", "outcome"}),
		gatherer: reg,
	}
	reg.MustRegister(m.requests, m.durations, m.status, m.steps, m.emails)
	return m
}

// Step counts one execution of an onboarding step.
func (m *Recorder) Step(step, outcome string) {
	if m == nil {
		return
	}
	m.steps.WithLabelValues(step, outcome).Inc()
}

// Email counts one email send attempt.
func (m *Recorder) Email(kind string, sent bool) {
	if m == nil {
		return
	}
	outcome := OutcomeSent
	if !sent {
		outcome = OutcomeFailed
	}
	m.emails.WithLabelValues(kind, outcome).Inc()
}

func category(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	}
	return ""
}

// Middleware records request counts and durations labelled by route pattern.
func (m *Recorder) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			path = rc.RoutePattern()
		}
		code := strconv.Itoa(status)
		m.requests.WithLabelValues(m.service, r.Method, path, code).Inc()
		m.durations.WithLabelValues(m.service, r.Method, path, code).Observe(time.Since(start).Seconds())
		if c := category(status); c != "" {
			m.status.WithLabelValues(m.service, c, r.Method, path).Inc()
		}
	})
}

// Handler serves the registry in the Prometheus text format.
func (m *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
