package observability

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsExposedOnHandler(t *testing.T) {
	ns := fmt.Sprintf("mockwise_test_metrics_%d", time.Now().UnixNano())
	m := NewMetrics(ns)
	m.SessionEvents.WithLabelValues("created").Inc()
	m.ObserveUpstream("realtime_sessions", 120*time.Millisecond)

	if got := testutil.ToFloat64(m.SessionEvents.WithLabelValues("created")); got != 1 {
		t.Fatalf("session_events_total{created} = %v, want 1", got)
	}

	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), ns+"_upstream_latency_ms_bucket") {
		t.Fatalf("metrics output missing upstream latency histogram")
	}
}
