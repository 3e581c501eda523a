package network

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	kitprom "github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

// MetricsSubsystem is a subsystem shared by all metrics exposed by this
// package.
const MetricsSubsystem = "p2p"

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Number of connected peers.
	Peers metrics.Gauge

	// Number of gossip messages received, labeled by topic.
	MessagesReceived metrics.Counter

	// Number of gossip messages published, labeled by topic.
	MessagesPublished metrics.Counter
}

// PrometheusMetrics returns Metrics built using the Prometheus client
// library, registered with the given registry.
func PrometheusMetrics(registry *stdprometheus.Registry, namespace string) *Metrics {
	peers := stdprometheus.NewGaugeVec(stdprometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: MetricsSubsystem,
		Name:      "peers",
		Help:      "Number of connected peers.",
	}, nil)
	received := stdprometheus.NewCounterVec(stdprometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: MetricsSubsystem,
		Name:      "messages_received_total",
		Help:      "Number of gossip messages received.",
	}, []string{"topic"})
	published := stdprometheus.NewCounterVec(stdprometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: MetricsSubsystem,
		Name:      "messages_published_total",
		Help:      "Number of gossip messages published.",
	}, []string{"topic"})

	registry.MustRegister(peers, received, published)

	return &Metrics{
		Peers:             kitprom.NewGauge(peers),
		MessagesReceived:  kitprom.NewCounter(received),
		MessagesPublished: kitprom.NewCounter(published),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Peers:             discard.NewGauge(),
		MessagesReceived:  discard.NewCounter(),
		MessagesPublished: discard.NewCounter(),
	}
}
