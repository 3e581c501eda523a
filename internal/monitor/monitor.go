package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/ethDreamer/lighthouse/config"
	"github.com/ethDreamer/lighthouse/internal/lifecycle"
	"github.com/ethDreamer/lighthouse/libs/log"
	"github.com/ethDreamer/lighthouse/libs/service"
)

const subsystemName = "monitoring"

// maxConsecutiveFailures bounds how long the exporter keeps retrying a dead
// endpoint before reporting itself failed.
const maxConsecutiveFailures = 10

// Monitor periodically gathers the node's metric registry and exports the
// samples to a remote InfluxDB endpoint. Every session is tagged with a
// fresh UUID so restarts are distinguishable on the remote side.
type Monitor struct {
	service.BaseService

	cfg      *config.MonitoringConfig
	registry *prometheus.Registry
	moniker  string
	failer   lifecycle.Failer

	sessionID string
	client    influxdb2.Client
	writeAPI  api.WriteAPIBlocking

	stopping chan struct{}
	done     chan struct{}
}

// New returns an unstarted monitoring exporter for the given registry.
func New(
	logger log.Logger,
	cfg *config.MonitoringConfig,
	registry *prometheus.Registry,
	moniker string,
	failer lifecycle.Failer,
) *Monitor {
	m := &Monitor{
		cfg:       cfg,
		registry:  registry,
		moniker:   moniker,
		failer:    failer,
		sessionID: uuid.NewString(),
		stopping:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	m.BaseService = *service.NewBaseService(logger, "Monitor", m)
	return m
}

// SessionID returns the tag identifying this run of the node.
func (m *Monitor) SessionID() string { return m.sessionID }

func (m *Monitor) OnStart(ctx context.Context) error {
	m.client = influxdb2.NewClient(m.cfg.Endpoint, m.cfg.Token)
	m.writeAPI = m.client.WriteAPIBlocking(m.cfg.Org, m.cfg.Bucket)

	m.Logger().Info("monitoring exporter started",
		"endpoint", m.cfg.Endpoint,
		"interval", m.cfg.Interval,
		"session", m.sessionID,
	)

	go m.exportRoutine(ctx)
	return nil
}

func (m *Monitor) OnStop() {
	close(m.stopping)
	<-m.done
	m.client.Close()
}

func (m *Monitor) exportRoutine(ctx context.Context) {
	defer lifecycle.Trap(subsystemName, m.failer)
	defer close(m.done)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ticker.C:
		case <-m.stopping:
			return
		case <-ctx.Done():
			return
		}

		if err := m.export(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			m.Logger().Error("telemetry export failed",
				"endpoint", m.cfg.Endpoint, "failures", failures, "err", err)
			if failures >= maxConsecutiveFailures {
				m.failer.Fail(subsystemName, fmt.Errorf("monitoring endpoint unreachable after %d exports: %w", failures, err))
				return
			}
			continue
		}
		failures = 0
	}
}

// export gathers the registry once and ships the samples.
func (m *Monitor) export(ctx context.Context) error {
	families, err := m.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	points := m.points(families, time.Now())
	if len(points) == 0 {
		return nil
	}
	if err := m.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("failed to write points: %w", err)
	}

	m.Logger().Debug("telemetry exported", "points", len(points))
	return nil
}

// points converts gathered metric families to InfluxDB points. Only counter
// and gauge samples are exported; histogram and summary quantiles stay local
// to the Prometheus endpoint.
func (m *Monitor) points(families []*dto.MetricFamily, ts time.Time) []*write.Point {
	points := make([]*write.Point, 0, len(families))
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			var value float64
			switch {
			case metric.GetCounter() != nil:
				value = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				value = metric.GetGauge().GetValue()
			default:
				continue
			}

			tags := map[string]string{
				"session": m.sessionID,
				"moniker": m.moniker,
			}
			for _, label := range metric.GetLabel() {
				tags[label.GetName()] = label.GetValue()
			}

			points = append(points, influxdb2.NewPoint(
				family.GetName(),
				tags,
				map[string]interface{}{"value": value},
				ts,
			))
		}
	}
	return points
}
