package network

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dep2p/go-dep2p"

	"github.com/ethDreamer/lighthouse/config"
	"github.com/ethDreamer/lighthouse/internal/chain"
	"github.com/ethDreamer/lighthouse/internal/lifecycle"
	"github.com/ethDreamer/lighthouse/libs/log"
	"github.com/ethDreamer/lighthouse/libs/service"
	"github.com/ethDreamer/lighthouse/types"
)

const subsystemName = "network"

// Gossip topics joined inside the realm.
const (
	TopicBlocks       = "beacon_block"
	TopicAttestations = "beacon_attestation"
)

const peerGaugeInterval = 10 * time.Second

// blockImporter is the slice of the chain engine the network needs:
// hand over blocks received from gossip and drop when saturated.
type blockImporter interface {
	SubmitBlock(*types.BeaconBlock) error
}

// Network joins the gossip realm and bridges it to the chain engine.
// Blocks received on the block topic are fed to the importer; blocks
// imported locally can be broadcast with PublishBlock.
type Network struct {
	service.BaseService

	cfg      *config.P2PConfig
	dataDir  string
	importer blockImporter
	failer   lifecycle.Failer
	metrics  *Metrics

	host       *dep2p.Node
	selfID     string
	realm      *dep2p.Realm
	blockTopic *dep2p.Topic
	attTopic   *dep2p.Topic
	blockSub   *dep2p.Subscription
	attSub     *dep2p.Subscription

	stopping chan struct{}
	done     chan struct{}
}

// New returns an unstarted gossip network service. dataDir is the node's
// data directory; the peer store and host key live in a p2p subdirectory
// so identity survives restarts.
func New(
	logger log.Logger,
	cfg *config.P2PConfig,
	dataDir string,
	importer blockImporter,
	failer lifecycle.Failer,
	metrics *Metrics,
) *Network {
	n := &Network{
		cfg:      cfg,
		dataDir:  dataDir,
		importer: importer,
		failer:   failer,
		metrics:  metrics,
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
	}
	n.BaseService = *service.NewBaseService(logger, "Network", n)
	return n
}

func (n *Network) OnStart(ctx context.Context) error {
	// The identity key lives under the data dir so the peer ID survives
	// restarts; the file is created on first start.
	opts := []dep2p.Option{
		dep2p.WithIdentityFromFile(filepath.Join(n.dataDir, "p2p", "identity.key")),
		dep2p.WithListenPort(n.cfg.ListenPort),
		dep2p.WithConnectionLimits(n.cfg.MaxConnectionsLow, n.cfg.MaxConnectionsHigh),
	}
	if peers := splitAndTrimEmpty(n.cfg.BootstrapPeers, ","); len(peers) > 0 {
		opts = append(opts, dep2p.WithBootstrapPeers(peers...))
	}

	host, err := dep2p.Start(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to start p2p host: %w", err)
	}

	realm, err := host.JoinRealm(ctx, []byte(n.cfg.RealmKey))
	if err != nil {
		_ = host.Close()
		return fmt.Errorf("failed to join realm: %w", err)
	}

	ps := realm.PubSub()
	blockTopic, err := ps.Join(TopicBlocks)
	if err != nil {
		_ = host.Close()
		return fmt.Errorf("failed to join topic %s: %w", TopicBlocks, err)
	}
	attTopic, err := ps.Join(TopicAttestations)
	if err != nil {
		_ = host.Close()
		return fmt.Errorf("failed to join topic %s: %w", TopicAttestations, err)
	}

	blockSub, err := blockTopic.Subscribe()
	if err != nil {
		_ = host.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", TopicBlocks, err)
	}
	attSub, err := attTopic.Subscribe()
	if err != nil {
		blockSub.Cancel()
		_ = host.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", TopicAttestations, err)
	}

	n.host = host
	n.selfID = host.ID()
	n.realm = realm
	n.blockTopic = blockTopic
	n.attTopic = attTopic
	n.blockSub = blockSub
	n.attSub = attSub

	n.Logger().Info("p2p host started",
		"id", host.ID(),
		"addrs", strings.Join(host.ListenAddrs(), ","),
		"realm", n.cfg.RealmKey,
	)

	go n.receiveRoutine(ctx)
	go n.peerGaugeRoutine(ctx)
	return nil
}

func (n *Network) OnStop() {
	close(n.stopping)
	n.blockSub.Cancel()
	n.attSub.Cancel()
	_ = n.blockTopic.Close()
	_ = n.attTopic.Close()
	<-n.done

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := n.host.Stop(stopCtx); err != nil {
		n.Logger().Error("failed to stop p2p host", "err", err)
	}
	_ = n.host.Close()
}

// ID returns the host's peer identity.
func (n *Network) ID() string { return n.selfID }

// PeerCount returns the number of live peer connections.
func (n *Network) PeerCount() int { return n.host.ConnectionCount() }

// ListenAddrs returns the host's listen multiaddrs.
func (n *Network) ListenAddrs() []string { return n.host.ListenAddrs() }

// PublishBlock broadcasts a locally imported block on the block topic.
func (n *Network) PublishBlock(ctx context.Context, block *types.BeaconBlock) error {
	bz, err := block.Marshal()
	if err != nil {
		return err
	}
	if err := n.blockTopic.Publish(ctx, bz); err != nil {
		return fmt.Errorf("failed to publish block: %w", err)
	}
	n.metrics.MessagesPublished.With("topic", TopicBlocks).Add(1)
	return nil
}

// receiveRoutine pulls messages from both topic subscriptions until the
// context is canceled or the service shuts down.
func (n *Network) receiveRoutine(ctx context.Context) {
	defer lifecycle.Trap(subsystemName, n.failer)
	defer close(n.done)

	blockCh := make(chan *dep2p.Message)
	attCh := make(chan *dep2p.Message)
	go n.pumpSubscription(ctx, n.blockSub, TopicBlocks, blockCh)
	go n.pumpSubscription(ctx, n.attSub, TopicAttestations, attCh)

	for {
		select {
		case msg, ok := <-blockCh:
			if !ok {
				return
			}
			n.handleBlockMessage(msg)
		case msg, ok := <-attCh:
			if !ok {
				return
			}
			n.handleAttestationMessage(msg)
		case <-n.stopping:
			return
		case <-ctx.Done():
			return
		}
	}
}

// pumpSubscription forwards messages from sub to out. A subscription error
// during normal operation is fatal for the network subsystem; during
// shutdown it just ends the pump.
func (n *Network) pumpSubscription(ctx context.Context, sub *dep2p.Subscription, topic string, out chan<- *dep2p.Message) {
	defer lifecycle.Trap(subsystemName, n.failer)
	defer close(out)
	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			select {
			case <-n.stopping:
			case <-ctx.Done():
			default:
				n.failer.Fail(subsystemName, fmt.Errorf("subscription %s failed: %w", topic, err))
			}
			return
		}
		select {
		case out <- msg:
		case <-n.stopping:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (n *Network) handleBlockMessage(msg *dep2p.Message) {
	if msg.From == n.selfID {
		return
	}
	n.metrics.MessagesReceived.With("topic", TopicBlocks).Add(1)

	block, err := types.UnmarshalBeaconBlock(msg.Data)
	if err != nil {
		n.Logger().Debug("dropping malformed gossip block", "from", msg.From, "err", err)
		return
	}
	if err := n.importer.SubmitBlock(block); err != nil {
		if errors.Is(err, chain.ErrQueueFull) {
			n.Logger().Debug("import queue full, dropping gossip block", "slot", block.Slot)
			return
		}
		n.Logger().Error("failed to submit gossip block", "slot", block.Slot, "err", err)
	}
}

func (n *Network) handleAttestationMessage(msg *dep2p.Message) {
	if msg.From == n.selfID {
		return
	}
	att, err := types.UnmarshalAttestation(msg.Data)
	if err != nil {
		n.Logger().Debug("dropping malformed gossip attestation", "from", msg.From, "err", err)
		return
	}
	n.metrics.MessagesReceived.With("topic", TopicAttestations).Add(1)
	n.Logger().Debug("attestation received",
		"slot", att.Slot,
		"committee", att.CommitteeIndex,
	)
}

func (n *Network) peerGaugeRoutine(ctx context.Context) {
	ticker := time.NewTicker(peerGaugeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n.metrics.Peers.Set(float64(n.host.ConnectionCount()))
		case <-n.stopping:
			return
		case <-ctx.Done():
			return
		}
	}
}

// splitAndTrimEmpty slices s into all subsequences separated by sep,
// trims whitespace and drops empty elements.
func splitAndTrimEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
