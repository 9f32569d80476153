package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMetricsHandlerExposesPrometheusMetrics(t *testing.T) {
	metrics := NewMetrics()
	metrics.RecordTick()
	metrics.RecordPostings(2, 1, 0)
	metrics.RecordSyncSummary(3, 1, 1)
	metrics.RecordReconciliation("major", 5.0)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	metrics.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}

	body := rr.Body.String()
	for _, want := range []string{
		"ledgerlink_ticks_total 1",
		`ledgerlink_journal_postings_total{result="posted"} 2`,
		`ledgerlink_sync_transitions_total{status="dead_letter"} 1`,
		`ledgerlink_reconciliation_records_total{classification="major"} 1`,
		"ledgerlink_reconciliation_variance_pct_bucket",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected body to contain %q, got: %s", want, body)
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.RecordTick()
	metrics.RecordTaskFailure("posting")
	metrics.RecordPostings(1, 0, 0)
	metrics.RecordSyncSummary(0, 0, 0)
	metrics.RecordReconciliation("matched", 0)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 from nil metrics handler, got %d", rr.Code)
	}
}
