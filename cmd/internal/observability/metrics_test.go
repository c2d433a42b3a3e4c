package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_AuthOutcomes(t *testing.T) {
	m := newMetrics(prometheus.NewRegistry())

	m.RecordAuthOutcome("success")
	m.RecordAuthOutcome("verify_failed")
	m.RecordAuthOutcome("verify_failed")

	if got := testutil.ToFloat64(m.authOutcomes.WithLabelValues("success")); got != 1 {
		t.Fatalf("success=%v want=1", got)
	}
	if got := testutil.ToFloat64(m.authOutcomes.WithLabelValues("verify_failed")); got != 2 {
		t.Fatalf("verify_failed=%v want=2", got)
	}
}

func TestMetrics_RealtimeCollectors(t *testing.T) {
	m := newMetrics(prometheus.NewRegistry())

	m.ChannelAuthFailures().Inc()
	m.Connections().Inc()
	m.Connections().Inc()
	m.Connections().Dec()
	m.BuildEventsDelivered(3)
	m.BuildEventsDelivered(0)

	if got := testutil.ToFloat64(m.ChannelAuthFailures()); got != 1 {
		t.Fatalf("channel auth failures=%v want=1", got)
	}
	if got := testutil.ToFloat64(m.wsConnections); got != 1 {
		t.Fatalf("connections=%v want=1", got)
	}
	if got := testutil.ToFloat64(m.buildEvents); got != 3 {
		t.Fatalf("build events=%v want=3", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.RecordAuthOutcome("success")

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	body, _ := io.ReadAll(rr.Body)
	if !strings.Contains(string(body), `sitegate_auth_signin_outcomes_total{outcome="success"} 1`) {
		t.Fatalf("missing outcome series in:\n%s", body)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Fatalf("missing runtime collectors")
	}
}
