// Package observability collects Prometheus metrics for the daemon.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the daemon's Prometheus registry and collectors. All record
// methods are safe on a nil receiver so callers can run without metrics.
type Metrics struct {
	registry *prometheus.Registry
	handler  http.Handler

	ticksTotal      prometheus.Counter
	taskFailures    *prometheus.CounterVec
	postingsTotal   *prometheus.CounterVec
	syncTransitions *prometheus.CounterVec
	reconRecords    *prometheus.CounterVec
	reconVariance   prometheus.Histogram
}

// NewMetrics initialises the registry and base collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	ticks := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledgerlink_ticks_total",
		Help: "Number of orchestrator ticks executed.",
	})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgerlink_task_failures_total",
		Help: "Sub-task failures by task name.",
	}, []string{"task"})
	postings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgerlink_journal_postings_total",
		Help: "Journal posting attempts by result.",
	}, []string{"result"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgerlink_sync_transitions_total",
		Help: "Sync queue entry transitions by resulting status.",
	}, []string{"status"})
	recon := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgerlink_reconciliation_records_total",
		Help: "Reconciliation records by classification.",
	}, []string{"classification"})
	variance := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ledgerlink_reconciliation_variance_pct",
		Help:    "Observed inventory variance per reconciled pair, in percent.",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 25, 100},
	})
	registry.MustRegister(ticks, failures, postings, transitions, recon, variance)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ticksTotal:      ticks,
		taskFailures:    failures,
		postingsTotal:   postings,
		syncTransitions: transitions,
		reconRecords:    recon,
		reconVariance:   variance,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// RecordTick counts one orchestrator tick.
func (m *Metrics) RecordTick() {
	if m == nil {
		return
	}
	m.ticksTotal.Inc()
}

// RecordTaskFailure counts a sub-task failure.
func (m *Metrics) RecordTaskFailure(task string) {
	if m == nil {
		return
	}
	m.taskFailures.WithLabelValues(task).Inc()
}

// RecordPostings counts posting cycle outcomes.
func (m *Metrics) RecordPostings(posted, alreadyPosted, failed int) {
	if m == nil {
		return
	}
	m.postingsTotal.WithLabelValues("posted").Add(float64(posted))
	m.postingsTotal.WithLabelValues("already_posted").Add(float64(alreadyPosted))
	m.postingsTotal.WithLabelValues("failed").Add(float64(failed))
}

// RecordSyncSummary counts sync queue transitions from one cycle.
func (m *Metrics) RecordSyncSummary(succeeded, retried, deadLettered int) {
	if m == nil {
		return
	}
	m.syncTransitions.WithLabelValues("succeeded").Add(float64(succeeded))
	m.syncTransitions.WithLabelValues("retried").Add(float64(retried))
	m.syncTransitions.WithLabelValues("dead_letter").Add(float64(deadLettered))
}

// RecordReconciliation counts one reconciliation record and observes its variance.
func (m *Metrics) RecordReconciliation(classification string, variancePct float64) {
	if m == nil {
		return
	}
	m.reconRecords.WithLabelValues(classification).Inc()
	m.reconVariance.Observe(variancePct)
}
