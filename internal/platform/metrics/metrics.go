// Package metrics exposes Prometheus instrumentation for the registry core.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the registry core.
type Metrics struct {
	LedgerSubmits    *prometheus.CounterVec
	LedgerEvaluates  *prometheus.CounterVec
	IndexFallbacks   prometheus.Counter
	MirrorTasks      *prometheus.CounterVec
	MirrorFailed     prometheus.Counter
	MirrorQueueDepth prometheus.Gauge
	ReconcileBacklog prometheus.Gauge
	VerifyMismatches prometheus.Counter
	OperationLatency *prometheus.HistogramVec
	SessionsActive   prometheus.Gauge
	SessionConnects  prometheus.Counter
}

// New registers all metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers all metrics on the given registerer. Tests use a fresh
// registry per case to avoid duplicate registration.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		LedgerSubmits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "landledger_ledger_submits_total",
			Help: "Ledger submit transactions by operation and outcome",
		}, []string{"operation", "outcome"}),
		LedgerEvaluates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "landledger_ledger_evaluates_total",
			Help: "Ledger evaluate queries by operation and outcome",
		}, []string{"operation", "outcome"}),
		IndexFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "landledger_index_fallbacks_total",
			Help: "Reads served ledger-only because the index was unavailable",
		}),
		MirrorTasks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "landledger_mirror_tasks_total",
			Help: "Index mirroring tasks by kind and outcome",
		}, []string{"kind", "outcome"}),
		MirrorFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "landledger_mirror_failed_total",
			Help: "Mirror tasks that exhausted retries and were flagged for reconciliation",
		}),
		MirrorQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "landledger_mirror_queue_depth",
			Help: "Mirror tasks queued and not yet applied to the index",
		}),
		ReconcileBacklog: factory.NewGauge(prometheus.GaugeOpts{
			Name: "landledger_reconcile_backlog",
			Help: "Index rows currently flagged failed and awaiting operator reconciliation",
		}),
		VerifyMismatches: factory.NewCounter(prometheus.CounterOpts{
			Name: "landledger_verification_mismatches_total",
			Help: "Reads where the index and ledger disagreed on record content",
		}),
		OperationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "landledger_operation_seconds",
			Help:    "Orchestrator operation latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "landledger_ledger_sessions_active",
			Help: "Pooled ledger sessions currently open",
		}),
		SessionConnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "landledger_ledger_session_connects_total",
			Help: "New ledger sessions established",
		}),
	}
}

// ObserveOperation records one orchestrator operation latency sample.
func (m *Metrics) ObserveOperation(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.OperationLatency.WithLabelValues(op).Observe(d.Seconds())
}
