package metrics

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestHTTPMetricsLabelsRouteAndStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)
	m.Observe(http.MethodPost, "/api/v1/orders", http.StatusCreated, 10*time.Millisecond)
	m.Observe(http.MethodGet, "", http.StatusNotFound, time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "http_requests_total", "route", "/api/v1/orders"); err != nil {
		t.Fatalf("fetch orders route: %v", err)
	} else if got != 1 {
		t.Fatalf("expected 1 request, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "http_requests_total", "route", "unmatched"); err != nil {
		t.Fatalf("fetch unmatched route: %v", err)
	} else if got != 1 {
		t.Fatalf("expected 1 unmatched request, got %f", got)
	}
}

func TestHTTPMetricsNilSafe(t *testing.T) {
	var m *HTTPMetrics
	m.Observe(http.MethodGet, "/", http.StatusOK, time.Millisecond)
	NewHTTPMetrics(nil).Observe(http.MethodGet, "/", http.StatusOK, time.Millisecond)
}
