package node

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethDreamer/lighthouse/config"
	"github.com/ethDreamer/lighthouse/internal/bridge"
	"github.com/ethDreamer/lighthouse/internal/chain"
	"github.com/ethDreamer/lighthouse/internal/eventbus"
	"github.com/ethDreamer/lighthouse/internal/lifecycle"
	"github.com/ethDreamer/lighthouse/internal/monitor"
	"github.com/ethDreamer/lighthouse/internal/network"
	"github.com/ethDreamer/lighthouse/internal/slasher"
	"github.com/ethDreamer/lighthouse/internal/store"
	"github.com/ethDreamer/lighthouse/internal/telemetry"
	"github.com/ethDreamer/lighthouse/libs/log"
	"github.com/ethDreamer/lighthouse/rpc"
	"github.com/ethDreamer/lighthouse/types"
)

// buildState accumulates the artifacts of completed stages. A stage may only
// read artifacts of earlier stages; completion is tracked in built so the
// prerequisite check is a plain map lookup.
type buildState struct {
	built map[string]bool

	store   *store.Store
	genesis *types.GenesisDoc
	chain   *chain.Chain
	network *network.Network

	bridge        *bridge.Bridge
	slasher       *slasher.Slasher
	httpServer    *rpc.Server
	metricsServer *telemetry.Server
	monitor       *monitor.Monitor
}

// stage is one step of node construction. The order of the stage list is the
// construction order; it never depends on configuration field order.
type stage struct {
	name string

	// nil means the stage is mandatory
	enabled func() bool

	// artifacts that must have been built for this stage to run
	requires []string

	run func(ctx context.Context) error
}

// Builder assembles a Node from a validated configuration. It is consumed by
// Build: a second Build call on the same Builder is an error.
type Builder struct {
	cfg      *config.Config
	logger   log.Logger
	consumed bool

	// retained for post-mortem inspection after a failed build
	coord *lifecycle.Coordinator
}

// NewBuilder validates the configuration and returns a Builder for it.
func NewBuilder(cfg *config.Config, logger log.Logger) (*Builder, error) {
	if err := cfg.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &Builder{cfg: cfg, logger: logger}, nil
}

// Build runs every construction stage in order and returns the assembled
// node. On any stage failure the services spawned by earlier stages are torn
// down before the error is returned; a partially built node is never
// observable.
func (b *Builder) Build(ctx context.Context) (*Node, error) {
	if b.consumed {
		return nil, errors.New("builder already consumed")
	}
	b.consumed = true

	cfg := b.cfg
	logger := b.logger

	coord := lifecycle.NewCoordinator(logger.With("module", "lifecycle"), cfg.PerTaskShutdownTimeout)
	b.coord = coord
	registry := telemetry.NewRegistry()
	bus := eventbus.New()
	chainMetrics, networkMetrics, bridgeMetrics := defaultMetricsProvider(cfg.Instrumentation, registry)()

	bs := &buildState{built: make(map[string]bool)}

	stages := []stage{
		{
			name: SubsystemStore,
			run: func(context.Context) error {
				st, err := createStore(cfg)
				if err != nil {
					return InitError{Subsystem: SubsystemStore, Err: err}
				}
				bs.store = st
				// The flush runs after every service has stopped
				// mutating the store, as the final drain action.
				coord.SetFlush(func() error {
					if err := st.Flush(); err != nil {
						return err
					}
					return st.Close()
				})
				return nil
			},
		},
		{
			name:     SubsystemChain,
			requires: []string{SubsystemStore},
			run: func(ctx context.Context) error {
				genDoc, err := chain.ResolveGenesis(bs.store, cfg.GenesisFile())
				if err != nil {
					return InitError{Subsystem: SubsystemChain, Err: err}
				}
				bs.genesis = genDoc

				chainEngine, err := createChainEngine(logger, cfg, genDoc, bs.store, bus, chainMetrics, coord)
				if err != nil {
					return InitError{Subsystem: SubsystemChain, Err: err}
				}
				if err := coord.Spawn(ctx, SubsystemChain, lifecycle.Critical, false, chainEngine); err != nil {
					return InitError{Subsystem: SubsystemChain, Err: err}
				}
				bs.chain = chainEngine
				return nil
			},
		},
		{
			name:    SubsystemBridge,
			enabled: func() bool { return cfg.Bridge.Enabled },
			run: func(ctx context.Context) error {
				br := createBridge(logger, cfg, bridgeMetrics, coord)
				if err := coord.Spawn(ctx, SubsystemBridge, lifecycle.Optional, cfg.Bridge.Required, br); err != nil {
					return InitError{Subsystem: SubsystemBridge, Err: err}
				}
				bs.bridge = br
				return nil
			},
		},
		{
			name:     SubsystemNetwork,
			requires: []string{SubsystemChain},
			run: func(ctx context.Context) error {
				net := createNetwork(logger, cfg, bs.chain, networkMetrics, coord)
				if err := coord.Spawn(ctx, SubsystemNetwork, lifecycle.Critical, false, net); err != nil {
					return InitError{Subsystem: SubsystemNetwork, Err: err}
				}
				bs.network = net
				return nil
			},
		},
		{
			name:     SubsystemSlasher,
			enabled:  func() bool { return cfg.Slasher.Enabled },
			requires: []string{SubsystemChain},
			run: func(ctx context.Context) error {
				sl := createSlasher(logger, cfg, bus, coord)
				if err := coord.Spawn(ctx, SubsystemSlasher, lifecycle.Optional, cfg.Slasher.Required, sl); err != nil {
					return InitError{Subsystem: SubsystemSlasher, Err: err}
				}
				bs.slasher = sl
				return nil
			},
		},
		{
			name:     SubsystemHTTPAPI,
			enabled:  func() bool { return cfg.HTTP.Enabled },
			requires: []string{SubsystemChain, SubsystemNetwork},
			run: func(ctx context.Context) error {
				env := rpc.Env{
					Moniker:     cfg.Moniker,
					ChainID:     bs.genesis.ChainID,
					Head:        bs.chain.Head,
					CurrentSlot: bs.chain.CurrentSlot,
					IsSyncing:   bs.chain.IsSyncing,
					PeerCount:   bs.network.PeerCount,
					BridgeStatus: func() (bridge.Status, bool) {
						if bs.bridge == nil || !entryAlive(coord, SubsystemBridge) {
							return bridge.Status{}, false
						}
						return bs.bridge.Status(), true
					},
					Bus: bus,
				}
				srv := createHTTPServer(logger, cfg, env, coord)
				if err := coord.Spawn(ctx, SubsystemHTTPAPI, lifecycle.Optional, cfg.HTTP.Required, srv); err != nil {
					return InitError{Subsystem: SubsystemHTTPAPI, Err: err}
				}
				bs.httpServer = srv
				return nil
			},
		},
		{
			name:    SubsystemHTTPMetrics,
			enabled: func() bool { return cfg.Instrumentation.Prometheus },
			run: func(ctx context.Context) error {
				srv := createMetricsServer(logger, cfg, registry, coord)
				if err := coord.Spawn(ctx, SubsystemHTTPMetrics, lifecycle.Optional, cfg.Instrumentation.Required, srv); err != nil {
					return InitError{Subsystem: SubsystemHTTPMetrics, Err: err}
				}
				bs.metricsServer = srv
				return nil
			},
		},
		{
			name:     SubsystemMonitoring,
			enabled:  func() bool { return cfg.Monitoring.Enabled },
			requires: []string{SubsystemHTTPMetrics},
			run: func(ctx context.Context) error {
				mon := createMonitor(logger, cfg, registry, coord)
				if err := coord.Spawn(ctx, SubsystemMonitoring, lifecycle.Optional, cfg.Monitoring.Required, mon); err != nil {
					return InitError{Subsystem: SubsystemMonitoring, Err: err}
				}
				bs.monitor = mon
				return nil
			},
		},
	}

	for _, s := range stages {
		if s.enabled != nil && !s.enabled() {
			logger.Debug("skipping disabled stage", "stage", s.name)
			continue
		}
		for _, req := range s.requires {
			if !bs.built[req] {
				return nil, b.abort(coord, MissingPrerequisiteError{Subsystem: s.name, Missing: req})
			}
		}
		if err := s.run(ctx); err != nil {
			return nil, b.abort(coord, err)
		}
		bs.built[s.name] = true
		logger.Info("constructed stage", "stage", s.name)
	}

	return &Node{
		logger:        logger,
		cfg:           cfg,
		coord:         coord,
		genesis:       bs.genesis,
		store:         bs.store,
		chain:         bs.chain,
		network:       bs.network,
		bridge:        bs.bridge,
		slasher:       bs.slasher,
		httpServer:    bs.httpServer,
		metricsServer: bs.metricsServer,
		monitor:       bs.monitor,
	}, nil
}

// abort tears down whatever earlier stages spawned and reports the stage
// error. The coordinator reaches Stopped before abort returns, so no service
// outlives a failed build.
func (b *Builder) abort(coord *lifecycle.Coordinator, err error) error {
	b.logger.Error("node construction aborted", "err", err)
	<-coord.Shutdown(lifecycle.ConstructionAborted{Cause: err})
	return err
}

func entryAlive(coord *lifecycle.Coordinator, name string) bool {
	entry, ok := coord.Registry().Lookup(name)
	return ok && entry.Alive()
}
