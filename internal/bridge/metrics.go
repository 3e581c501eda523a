package bridge

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	kitprom "github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const MetricsSubsystem = "bridge"

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Latest execution-layer block number observed.
	BlockNumber metrics.Gauge

	// Number of polls that failed.
	PollFailures metrics.Counter
}

// PrometheusMetrics returns Metrics built using the Prometheus client
// library, registered with the given registry.
func PrometheusMetrics(registry *stdprometheus.Registry, namespace string) *Metrics {
	blockNumber := stdprometheus.NewGaugeVec(stdprometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: MetricsSubsystem,
		Name:      "block_number",
		Help:      "Latest execution-layer block number observed.",
	}, nil)
	pollFailures := stdprometheus.NewCounterVec(stdprometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: MetricsSubsystem,
		Name:      "poll_failures_total",
		Help:      "Number of polls of the execution endpoint that failed.",
	}, nil)

	registry.MustRegister(blockNumber, pollFailures)

	return &Metrics{
		BlockNumber:  kitprom.NewGauge(blockNumber),
		PollFailures: kitprom.NewCounter(pollFailures),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		BlockNumber:  discard.NewGauge(),
		PollFailures: discard.NewCounter(),
	}
}
