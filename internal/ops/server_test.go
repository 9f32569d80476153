package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ledgerlink/ledgerlink/internal/alerts"
	"github.com/ledgerlink/ledgerlink/internal/reconcile"
	"github.com/ledgerlink/ledgerlink/internal/syncqueue"
)

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(context.Context) error { return p.err }

type stubQueue struct {
	counts map[syncqueue.Status]int64
	err    error
}

func (q stubQueue) CountByStatus(context.Context) (map[syncqueue.Status]int64, error) {
	return q.counts, q.err
}

type stubAlerts struct {
	alerts []alerts.Alert
}

func (a stubAlerts) Recent(_ context.Context, limit int) ([]alerts.Alert, error) {
	if limit < len(a.alerts) {
		return a.alerts[:limit], nil
	}
	return a.alerts, nil
}

func TestHealthzReportsBackingStores(t *testing.T) {
	router := NewRouter(RouterParams{
		DB:    stubPinger{},
		Redis: stubPinger{},
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Healthy bool              `json:"healthy"`
		Checks  map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.True(t, body.Healthy)
	require.Equal(t, "ok", body.Checks["postgres"])
	require.Equal(t, "ok", body.Checks["redis"])
}

func TestHealthzDegradedWhenPostgresDown(t *testing.T) {
	router := NewRouter(RouterParams{
		DB:    stubPinger{err: errors.New("connection refused")},
		Redis: stubPinger{},
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestQueueDepthEndpoint(t *testing.T) {
	router := NewRouter(RouterParams{
		Queue: stubQueue{counts: map[syncqueue.Status]int64{
			syncqueue.StatusPending:    3,
			syncqueue.StatusDeadLetter: 1,
		}},
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/queue", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var counts map[string]int64
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &counts))
	require.Equal(t, int64(3), counts["PENDING"])
	require.Equal(t, int64(1), counts["DEAD_LETTER"])
}

func TestRecentAlertsEndpointHonorsLimit(t *testing.T) {
	history := []alerts.Alert{
		{Kind: alerts.KindMajorVariance, Severity: alerts.SeverityCritical, At: time.Now()},
		{Kind: alerts.KindDeadLetter, Severity: alerts.SeverityCritical, At: time.Now()},
		{Kind: alerts.KindUnbalancedEntry, Severity: alerts.SeverityWarning, At: time.Now()},
	}
	router := NewRouter(RouterParams{Alerts: stubAlerts{alerts: history}})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/alerts/recent?limit=2", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var got []alerts.Alert
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 2)
	require.Equal(t, alerts.KindMajorVariance, got[0].Kind)
}

type stubRecon struct {
	records []reconcile.Record
}

func (s stubRecon) ListSince(_ context.Context, since time.Time) ([]reconcile.Record, error) {
	var out []reconcile.Record
	for _, rec := range s.records {
		if !rec.CreatedAt.Before(since) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func TestReconciliationRecentEndpoint(t *testing.T) {
	now := time.Now()
	router := NewRouter(RouterParams{Recon: stubRecon{records: []reconcile.Record{
		{Material: "MAT-1", Location: "WH-1", VariancePct: 5, Classification: reconcile.ClassMajor, CreatedAt: now},
		{Material: "MAT-2", Location: "WH-1", Classification: reconcile.ClassMatched, CreatedAt: now.Add(-48 * time.Hour)},
	}}})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/reconciliation/recent", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var got []reconcile.Record
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 1)
	require.Equal(t, "MAT-1", got[0].Material)
}

func TestReconciliationRecentRejectsBadSince(t *testing.T) {
	router := NewRouter(RouterParams{Recon: stubRecon{}})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/reconciliation/recent?since=yesterday", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMetricsRouteMounted(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router := NewRouter(RouterParams{Metrics: metrics})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
}
