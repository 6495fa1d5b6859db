package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareLabelsRoutePattern(t *testing.T) {
	m := New("greasedesk", prometheus.NewRegistry())
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/jobcards/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/jobcards/jc-1001", nil))

	got := testutil.ToFloat64(m.requests.WithLabelValues("greasedesk", http.MethodGet, "/api/jobcards/{id}", "404"))
	if got != 1 {
		t.Fatalf("expected 1 request on route pattern, got %v", got)
	}
	if testutil.ToFloat64(m.status.WithLabelValues("greasedesk", "4xx", http.MethodGet, "/api/jobcards/{id}")) != 1 {
		t.Fatal("expected 4xx category count")
	}
}

func TestDomainCounters(t *testing.T) {
	m := New("greasedesk", prometheus.NewRegistry())
	m.Step("setup", OutcomeCreated)
	m.Step("setup", OutcomeCreated)
	m.Email("verification", false)
	if testutil.ToFloat64(m.steps.WithLabelValues("setup", OutcomeCreated)) != 2 {
		t.Fatal("expected two setup steps")
	}
	if testutil.ToFloat64(m.emails.WithLabelValues("verification", OutcomeFailed)) != 1 {
		t.Fatal("expected a failed email")
	}

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rr.Body.String(), "onboarding_steps_total") {
		t.Fatal("metrics endpoint should expose onboarding counters")
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var m *Recorder
	m.Step("setup", OutcomeCreated)
	m.Email("invite", true)
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}
