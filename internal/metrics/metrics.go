// Package metrics exposes Prometheus collectors for contract operations and
// transfer delivery.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/tiplink/internal/ir"
)

const namespace = "tiplink"

// Metrics owns a private registry so tests and multiple engines in one
// process do not collide.
type Metrics struct {
	registry *prometheus.Registry

	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	transfers  *prometheus.CounterVec
	escrowed   prometheus.Counter
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "contract",
				Name:      "operations_total",
				Help:      "Contract operations by name and outcome code.",
			},
			[]string{"operation", "code"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "contract",
				Name:      "operation_duration_seconds",
				Help:      "Duration of contract operations including the store step.",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
			},
			[]string{"operation"},
		),
		transfers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "transfer",
				Name:      "deliveries_total",
				Help:      "Outbound transfers by kind and delivery state.",
			},
			[]string{"kind", "state"},
		),
		escrowed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "escrow_inflow_total",
				Help:      "Value credited to escrow, in native units (approximate above 2^53).",
			},
		),
	}
	m.registry.MustRegister(m.operations, m.duration, m.transfers, m.escrowed)
	return m
}

// Outcome labels that are not contract error codes.
const (
	OutcomeOK    = "OK"
	OutcomeError = "ERROR"
)

// Outcome labels err: OK on success, the contract code on a rejection,
// ERROR on any other failure.
func Outcome(err error) string {
	if err == nil {
		return OutcomeOK
	}
	if code := ir.CodeOf(err); code != "" {
		return string(code)
	}
	return OutcomeError
}

// ObserveOperation counts one operation under its outcome.
func (m *Metrics) ObserveOperation(op string, err error, elapsed time.Duration) {
	m.operations.WithLabelValues(op, Outcome(err)).Inc()
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObserveTransfer implements transfer.Observer.
func (m *Metrics) ObserveTransfer(kind ir.TransferKind, state ir.DeliveryState) {
	m.transfers.WithLabelValues(string(kind), string(state)).Inc()
}

// ObserveEscrow adds an escrowed tip.
func (m *Metrics) ObserveEscrow(amount ir.Amount) {
	m.escrowed.Add(amount.Float64())
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
