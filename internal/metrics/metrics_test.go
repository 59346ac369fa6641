package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorders(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordPreview("file", 120)
	m.RecordPreview("file", 30)
	m.RecordPreview("not_found", 40)
	m.RecordPreferenceChange("project")
	m.RecordPreferenceReload("user", false)
	m.RecordStateWrite()

	if got := testutil.ToFloat64(m.previewBytesServed); got != 150 {
		t.Errorf("expected 150 bytes served, got %v", got)
	}
	if got := testutil.ToFloat64(m.previewRequestsTotal.WithLabelValues("not_found")); got != 1 {
		t.Errorf("expected one not_found, got %v", got)
	}
	if got := testutil.ToFloat64(m.prefReloadsTotal.WithLabelValues("user", "error")); got != 1 {
		t.Errorf("expected one failed reload, got %v", got)
	}
	if got := testutil.ToFloat64(m.stateWritesTotal); got != 1 {
		t.Errorf("expected one state write, got %v", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.RecordPreview("file", 1)
	m.RecordPreferenceChange("user")
	m.RecordStateWrite()

	rec := httptest.NewRecorder()
	m.Middleware(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected pass-through status, got %d", rec.Code)
	}
}

func TestMiddlewareAndHandler(t *testing.T) {
	m := New(prometheus.NewRegistry())

	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fs/", nil))

	if got := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "418")); got != 1 {
		t.Errorf("expected one 418 request, got %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "livefs_http_requests_total") {
		t.Error("expected exposition to include request counter")
	}
}
