package telemetry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/netutil"

	"github.com/ethDreamer/lighthouse/config"
	"github.com/ethDreamer/lighthouse/internal/lifecycle"
	"github.com/ethDreamer/lighthouse/libs/log"
	"github.com/ethDreamer/lighthouse/libs/service"
)

// subsystemName is the name the builder registers the metrics server under;
// failure reports must use the same name or the criticality policy cannot
// find the entry.
const subsystemName = "http_metrics"

// NewRegistry builds the process metrics registry. The registry is threaded
// explicitly through every stage that reports metrics; there is no ambient
// global registry anywhere in the node.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// Server serves the registry under /metrics for Prometheus collectors.
type Server struct {
	service.BaseService

	cfg      *config.InstrumentationConfig
	registry *prometheus.Registry
	failer   lifecycle.Failer

	listener net.Listener
	srv      *http.Server
}

// NewServer creates the metrics server. It does not bind until started.
func NewServer(
	logger log.Logger,
	cfg *config.InstrumentationConfig,
	registry *prometheus.Registry,
	failer lifecycle.Failer,
) *Server {
	s := &Server{
		cfg:      cfg,
		registry: registry,
		failer:   failer,
	}
	s.BaseService = *service.NewBaseService(logger, "Metrics", s)
	return s
}

func (s *Server) OnStart(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.PrometheusListenAddr)
	if err != nil {
		return err
	}
	if s.cfg.MaxOpenConnections > 0 {
		listener = netutil.LimitListener(listener, s.cfg.MaxOpenConnections)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.InstrumentMetricHandler(
		s.registry,
		promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{MaxRequestsInFlight: s.cfg.MaxOpenConnections}),
	))
	s.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		defer lifecycle.Trap(subsystemName, s.failer)
		if err := s.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.failer.Fail(subsystemName, err)
		}
	}()

	s.Logger().Info("serving prometheus metrics", "addr", s.Addr())
	return nil
}

func (s *Server) OnStop() {
	if s.srv != nil {
		if err := s.srv.Close(); err != nil {
			s.Logger().Error("error closing metrics server", "err", err)
		}
	}
}

// Addr returns the bound listen address, useful when the configured port was
// 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.cfg.PrometheusListenAddr
	}
	return s.listener.Addr().String()
}

// Registry returns the registry the server exposes.
func (s *Server) Registry() *prometheus.Registry { return s.registry }
