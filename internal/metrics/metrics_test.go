package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounts(t *testing.T) {
	r := New()

	r.ObserveExchange("dialogue", "completed")
	r.ObserveExchange("dialogue", "completed")
	r.ObserveExchange("onboarding", "failed")
	r.ObserveExp(300)
	r.ObserveExp(-5)
	r.ObserveQuote()
	r.SetActiveSessions("dialogue", 4)

	if got := testutil.ToFloat64(r.exchanges.WithLabelValues("dialogue", "completed")); got != 2 {
		t.Errorf("dialogue completed = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.exchanges.WithLabelValues("onboarding", "failed")); got != 1 {
		t.Errorf("onboarding failed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.exp); got != 300 {
		t.Errorf("exp = %v, want 300", got)
	}
	if got := testutil.ToFloat64(r.quotes); got != 1 {
		t.Errorf("quotes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.sessions.WithLabelValues("dialogue")); got != 4 {
		t.Errorf("sessions = %v, want 4", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := New()
	r.ObserveQuote()

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), "junrei_quotes_collected_total 1") {
		t.Errorf("expected quotes counter in output:\n%s", body)
	}
}
