package state

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/attestra-network/attestra-executor/state/runtime"
)

// Metrics holds the execution counters. A nil-object instance (from
// NilMetrics) records into unregistered collectors so callers never
// branch on instrumentation being enabled.
type Metrics struct {
	blockSeconds prometheus.Histogram
	blockGas     prometheus.Histogram
	txApplied    prometheus.Counter
	txFailed     prometheus.Counter
	txReverted   prometheus.Counter
}

func newMetrics() *Metrics {
	return &Metrics{
		blockSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "executor",
			Name:      "block_execution_seconds",
			Help:      "Wall time of one block execution.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		blockGas: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "executor",
			Name:      "block_gas_used",
			Help:      "Total gas consumed by an executed block.",
			Buckets:   prometheus.ExponentialBuckets(21000, 4, 10),
		}),
		txApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "executor",
			Name:      "transactions_applied_total",
			Help:      "Transactions applied successfully.",
		}),
		txFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "executor",
			Name:      "transactions_failed_total",
			Help:      "Transactions that failed during execution.",
		}),
		txReverted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "executor",
			Name:      "transactions_reverted_total",
			Help:      "Transactions that reverted intentionally.",
		}),
	}
}

// NewMetrics creates the execution collectors and registers them with
// the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := newMetrics()

	reg.MustRegister(m.blockSeconds, m.blockGas, m.txApplied, m.txFailed, m.txReverted)

	return m
}

// NilMetrics creates collectors that are never registered or scraped.
func NilMetrics() *Metrics {
	return newMetrics()
}

// BlockTimer starts timing a block execution; the returned func stops it.
func (m *Metrics) BlockTimer() func() {
	start := time.Now()

	return func() {
		m.blockSeconds.Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) ObserveBlock(result *BlockResult) {
	m.blockGas.Observe(float64(result.TotalGas))
}

func (m *Metrics) ObserveTx(result *runtime.ExecutionResult) {
	switch {
	case result.Reverted():
		m.txReverted.Inc()
	case result.Failed():
		m.txFailed.Inc()
	default:
		m.txApplied.Inc()
	}
}
