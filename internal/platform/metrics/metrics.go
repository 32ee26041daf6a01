package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	ConnectionsActive        prometheus.Gauge
	ContextsActive           prometheus.Gauge
	PairingsCommitted        prometheus.Counter
	OverwritesDetected       prometheus.Counter
	ProductMoves             prometheus.Counter
	DeliveryFailures         prometheus.Counter
	ReconciliationsByOutcome *prometheus.CounterVec
}

// New creates and registers all metrics on the default registerer.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the metrics on a caller supplied registerer. Tests pass a
// fresh registry so suites can construct metrics independently.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ConnectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "scanhub_connections_active",
			Help: "Number of websocket connections currently registered",
		}),
		ContextsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "scanhub_identity_contexts_active",
			Help: "Number of identity contexts currently alive in the registry",
		}),
		PairingsCommitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "scanhub_pairings_committed_total",
			Help: "Total number of pairing records committed",
		}),
		OverwritesDetected: factory.NewCounter(prometheus.CounterOpts{
			Name: "scanhub_overwrites_detected_total",
			Help: "Total number of pairings that superseded a prior record",
		}),
		ProductMoves: factory.NewCounter(prometheus.CounterOpts{
			Name: "scanhub_product_moves_total",
			Help: "Total number of pairings that moved a product between platforms",
		}),
		DeliveryFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "scanhub_broadcast_delivery_failures_total",
			Help: "Total number of per-recipient event delivery failures",
		}),
		ReconciliationsByOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scanhub_reconciliations_total",
			Help: "Total number of legacy reconciliation tasks by terminal outcome",
		}, []string{"outcome"}),
	}
}
