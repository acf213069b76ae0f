package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareRecordsRoute(t *testing.T) {
	h := Middleware(func(*http.Request) string { return "/api/things/{id}" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}))

	before := testutil.CollectAndCount(HTTPRequestDuration)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/things/1", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}
	if after := testutil.CollectAndCount(HTTPRequestDuration); after != before+1 {
		t.Errorf("series count = %d, want %d", after, before+1)
	}
}

func TestCounters(t *testing.T) {
	RequestDecisions.WithLabelValues("voucher", "approved").Inc()
	if got := testutil.ToFloat64(RequestDecisions.WithLabelValues("voucher", "approved")); got < 1 {
		t.Errorf("counter = %v, want >= 1", got)
	}
}
