package chain

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	kitprom "github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

// MetricsSubsystem is a subsystem shared by all metrics exposed by this
// package.
const MetricsSubsystem = "chain"

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Wall-clock slot derived from the genesis time.
	Slot metrics.Gauge

	// Slot of the current head block.
	HeadSlot metrics.Gauge

	// Number of blocks imported since startup.
	BlocksImported metrics.Counter

	// Number of blocks waiting in the import queue.
	ImportQueueDepth metrics.Gauge
}

// PrometheusMetrics returns Metrics built using the Prometheus client
// library, registered with the given registry.
func PrometheusMetrics(registry *stdprometheus.Registry, namespace string) *Metrics {
	slot := stdprometheus.NewGaugeVec(stdprometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: MetricsSubsystem,
		Name:      "slot",
		Help:      "Wall-clock slot derived from the genesis time.",
	}, nil)
	headSlot := stdprometheus.NewGaugeVec(stdprometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: MetricsSubsystem,
		Name:      "head_slot",
		Help:      "Slot of the current head block.",
	}, nil)
	blocksImported := stdprometheus.NewCounterVec(stdprometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: MetricsSubsystem,
		Name:      "blocks_imported_total",
		Help:      "Number of blocks imported since startup.",
	}, nil)
	queueDepth := stdprometheus.NewGaugeVec(stdprometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: MetricsSubsystem,
		Name:      "import_queue_depth",
		Help:      "Number of blocks waiting in the import queue.",
	}, nil)

	registry.MustRegister(slot, headSlot, blocksImported, queueDepth)

	return &Metrics{
		Slot:             kitprom.NewGauge(slot),
		HeadSlot:         kitprom.NewGauge(headSlot),
		BlocksImported:   kitprom.NewCounter(blocksImported),
		ImportQueueDepth: kitprom.NewGauge(queueDepth),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Slot:             discard.NewGauge(),
		HeadSlot:         discard.NewGauge(),
		BlocksImported:   discard.NewCounter(),
		ImportQueueDepth: discard.NewGauge(),
	}
}
