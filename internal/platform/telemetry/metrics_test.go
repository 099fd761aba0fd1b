package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.HTTPStarted()
	m.HTTPFinished("GET", "/x", 200, time.Millisecond)
	m.OrderCreated(time.Millisecond)
	m.OrderFailed("insufficient_stock", time.Millisecond)
	m.LockRetry()
	m.AuditEnqueued()
	m.AuditDropped()
	m.AuditWritten("sql")
	m.AuditFailed("kafka")
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()
	m.OrderCreated(10 * time.Millisecond)
	m.OrderCreated(20 * time.Millisecond)
	m.OrderFailed("insufficient_stock", time.Millisecond)
	m.LockRetry()
	m.AuditDropped()
	m.AuditWritten("sql")

	if got := testutil.ToFloat64(m.ordersCreated); got != 2 {
		t.Errorf("expected 2 orders created, got %v", got)
	}
	if got := testutil.ToFloat64(m.orderFailures.WithLabelValues("insufficient_stock")); got != 1 {
		t.Errorf("expected 1 failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.lockRetries); got != 1 {
		t.Errorf("expected 1 retry, got %v", got)
	}
	if got := testutil.ToFloat64(m.auditDropped); got != 1 {
		t.Errorf("expected 1 drop, got %v", got)
	}
	if got := testutil.ToFloat64(m.auditWritten.WithLabelValues("sql")); got != 1 {
		t.Errorf("expected 1 sql write, got %v", got)
	}
}

func TestMetrics_HTTPInFlight(t *testing.T) {
	m := NewMetrics()
	m.HTTPStarted()
	if got := testutil.ToFloat64(m.httpInFlight); got != 1 {
		t.Errorf("expected 1 in flight, got %v", got)
	}
	m.HTTPFinished(http.MethodPost, "/api/v1/prescriptions", 201, 5*time.Millisecond)
	if got := testutil.ToFloat64(m.httpInFlight); got != 0 {
		t.Errorf("expected 0 in flight, got %v", got)
	}
	if got := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("POST", "/api/v1/prescriptions", "201")); got != 1 {
		t.Errorf("expected 1 request, got %v", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.OrderCreated(time.Millisecond)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := m.Handler()(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "clinic_orders_created_total 1") {
		t.Error("expected orders counter in exposition output")
	}
}

func TestStatementVerb(t *testing.T) {
	tests := map[string]string{
		"SELECT 1":                    "SELECT",
		"  update inventory SET x=1": "UPDATE",
		"":                            "query",
	}
	for in, want := range tests {
		if got := statementVerb(in); got != want {
			t.Errorf("statementVerb(%q) = %q, want %q", in, got, want)
		}
	}
}
