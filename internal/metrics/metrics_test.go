package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRegistersIndependentRegistries(t *testing.T) {
	a := New()
	b := New()

	a.RecordsAcceptedTotal.Inc()
	if got := testutil.ToFloat64(a.RecordsAcceptedTotal); got != 1 {
		t.Fatalf("expected a's counter to be 1, got %v", got)
	}
	if got := testutil.ToFloat64(b.RecordsAcceptedTotal); got != 0 {
		t.Fatalf("expected b's counter to remain 0, got %v", got)
	}
}

func TestHandlerServesRegisteredMetrics(t *testing.T) {
	m := New()
	m.RecordsAcceptedTotal.Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !contains(w.Body.String(), "gateway_records_accepted_total 1") {
		t.Fatalf("expected metric in output, got:\n%s", w.Body.String())
	}
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
