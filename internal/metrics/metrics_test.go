package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	if requestsTotal == nil || scansTotal == nil || httpRequestsTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveRequestCountsRateLimits(t *testing.T) {
	Init()
	before := testutil.ToFloat64(rateLimitHitsTotal)
	okBefore := testutil.ToFloat64(requestsTotal.WithLabelValues(OutcomeSuccess))

	ObserveRequest(OutcomeRateLimited)
	ObserveRequest(OutcomeSuccess)

	if got := testutil.ToFloat64(rateLimitHitsTotal) - before; got != 1 {
		t.Fatalf("rate limit hits delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(requestsTotal.WithLabelValues(OutcomeSuccess)) - okBefore; got != 1 {
		t.Fatalf("success delta = %v, want 1", got)
	}
}

func TestObserveVariantCountsFree(t *testing.T) {
	Init()
	before := testutil.ToFloat64(freeItemsTotal)

	ObserveVariant("catalog", true)
	ObserveVariant("catalog", false)

	if got := testutil.ToFloat64(freeItemsTotal) - before; got != 1 {
		t.Fatalf("free items delta = %v, want 1", got)
	}
}

func TestHandlerServesCollectors(t *testing.T) {
	ObserveHTTPRequest(http.MethodGet, "/healthz", http.StatusOK, 10*time.Millisecond)
	SetAdaptiveDelay(15 * time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	for _, name := range []string{"storescan_http_requests_total", "storescan_adaptive_delay_seconds"} {
		if !strings.Contains(body, name) {
			t.Fatalf("metrics output missing %s", name)
		}
	}
}
