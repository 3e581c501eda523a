package telemetry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/ethDreamer/lighthouse/config"
	"github.com/ethDreamer/lighthouse/internal/lifecycle"
	"github.com/ethDreamer/lighthouse/libs/log"
)

type nopFailer struct{}

func (nopFailer) Fail(string, error) {}

type recordingFailer struct {
	mtx       sync.Mutex
	subsystem string
	cause     error
}

func (f *recordingFailer) Fail(subsystem string, cause error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.subsystem = subsystem
	f.cause = cause
}

func (f *recordingFailer) recorded() (string, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return f.subsystem, f.cause
}

func TestServerServesRegistry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lighthouse",
		Name:      "test_total",
		Help:      "Test counter.",
	})
	registry.MustRegister(counter)
	counter.Add(3)

	cfg := config.DefaultInstrumentationConfig()
	cfg.PrometheusListenAddr = "127.0.0.1:0"

	srv := NewServer(log.NewTestingLogger(t), cfg, registry, nopFailer{})
	require.NoError(t, srv.Start(ctx))
	defer func() {
		require.NoError(t, srv.Stop())
		srv.Wait()
	}()

	client := &http.Client{Timeout: time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/metrics", srv.Addr()))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "lighthouse_test_total 3")
}

func TestServerFailureReportsRegisteredName(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.DefaultInstrumentationConfig()
	cfg.PrometheusListenAddr = "127.0.0.1:0"

	failer := &recordingFailer{}
	srv := NewServer(log.NewTestingLogger(t), cfg, NewRegistry(), failer)
	require.NoError(t, srv.Start(ctx))
	defer func() { _ = srv.Stop() }()

	// Kill the listener underneath Serve; the failure report must carry the
	// name the builder registers the server under.
	require.NoError(t, srv.listener.Close())

	require.Eventually(t, func() bool {
		subsystem, _ := failer.recorded()
		return subsystem != ""
	}, 2*time.Second, 10*time.Millisecond)

	subsystem, cause := failer.recorded()
	require.Equal(t, subsystemName, subsystem)
	require.Error(t, cause)
}

func TestServerFatalEscalatesWhenRequired(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.DefaultInstrumentationConfig()
	cfg.PrometheusListenAddr = "127.0.0.1:0"

	coord := lifecycle.NewCoordinator(log.NewTestingLogger(t), time.Second)
	srv := NewServer(log.NewTestingLogger(t), cfg, NewRegistry(), coord)
	require.NoError(t, coord.Spawn(ctx, subsystemName, lifecycle.Optional, true, srv))

	require.NoError(t, srv.listener.Close())
	coord.Wait()

	reason := coord.Reason()
	require.NotNil(t, reason)

	fatal, ok := reason.(lifecycle.FatalSubsystemFailure)
	require.True(t, ok)
	require.Equal(t, subsystemName, fatal.Subsystem)
	require.Error(t, fatal.Cause)

	entry, ok := coord.Registry().Lookup(subsystemName)
	require.True(t, ok)
	require.False(t, entry.Alive())
	require.Equal(t, lifecycle.ExitCodeFatalRuntime, reason.ExitCode())
}

func TestServerRejectsBadAddress(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.DefaultInstrumentationConfig()
	cfg.PrometheusListenAddr = "256.256.256.256:99999"

	srv := NewServer(log.NewTestingLogger(t), cfg, NewRegistry(), nopFailer{})
	require.Error(t, srv.Start(ctx))
}
