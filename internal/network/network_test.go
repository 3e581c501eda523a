package network

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-dep2p"

	"github.com/ethDreamer/lighthouse/config"
	"github.com/ethDreamer/lighthouse/internal/chain"
	"github.com/ethDreamer/lighthouse/libs/log"
	"github.com/ethDreamer/lighthouse/types"
)

type recordingImporter struct {
	blocks []*types.BeaconBlock
	err    error
}

func (r *recordingImporter) SubmitBlock(block *types.BeaconBlock) error {
	if r.err != nil {
		return r.err
	}
	r.blocks = append(r.blocks, block)
	return nil
}

type nopFailer struct{}

func (nopFailer) Fail(string, error) {}

func newTestNetwork(t *testing.T, importer *recordingImporter) *Network {
	t.Helper()
	n := New(
		log.NewTestingLogger(t),
		config.TestP2PConfig(),
		t.TempDir(),
		importer,
		nopFailer{},
		NopMetrics(),
	)
	n.selfID = "self"
	return n
}

func TestHandleBlockMessage(t *testing.T) {
	importer := &recordingImporter{}
	n := newTestNetwork(t, importer)

	block := &types.BeaconBlock{Slot: 7, ProposerIndex: 3}
	bz, err := block.Marshal()
	require.NoError(t, err)

	n.handleBlockMessage(&dep2p.Message{From: "peer-1", Data: bz, Topic: TopicBlocks})

	require.Len(t, importer.blocks, 1)
	assert.Equal(t, uint64(7), importer.blocks[0].Slot)
}

func TestHandleBlockMessageSkipsOwn(t *testing.T) {
	importer := &recordingImporter{}
	n := newTestNetwork(t, importer)

	block := &types.BeaconBlock{Slot: 7}
	bz, err := block.Marshal()
	require.NoError(t, err)

	n.handleBlockMessage(&dep2p.Message{From: "self", Data: bz, Topic: TopicBlocks})
	assert.Empty(t, importer.blocks)
}

func TestHandleBlockMessageMalformed(t *testing.T) {
	importer := &recordingImporter{}
	n := newTestNetwork(t, importer)

	n.handleBlockMessage(&dep2p.Message{From: "peer-1", Data: []byte("not json"), Topic: TopicBlocks})
	assert.Empty(t, importer.blocks)
}

func TestHandleBlockMessageQueueFull(t *testing.T) {
	importer := &recordingImporter{err: chain.ErrQueueFull}
	n := newTestNetwork(t, importer)

	block := &types.BeaconBlock{Slot: 7}
	bz, err := block.Marshal()
	require.NoError(t, err)

	// Saturation is tolerated, not escalated.
	n.handleBlockMessage(&dep2p.Message{From: "peer-1", Data: bz, Topic: TopicBlocks})
	assert.Empty(t, importer.blocks)
}

func TestHandleBlockMessageImportError(t *testing.T) {
	importer := &recordingImporter{err: errors.New("boom")}
	n := newTestNetwork(t, importer)

	block := &types.BeaconBlock{Slot: 7}
	bz, err := block.Marshal()
	require.NoError(t, err)

	n.handleBlockMessage(&dep2p.Message{From: "peer-1", Data: bz, Topic: TopicBlocks})
	assert.Empty(t, importer.blocks)
}

// receivedCount reads the gossip received counter for a topic out of the
// given registry.
func receivedCount(t *testing.T, registry *prometheus.Registry, topic string) float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "test_p2p_messages_received_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "topic" && label.GetValue() == topic {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestHandleAttestationMessage(t *testing.T) {
	registry := prometheus.NewRegistry()
	n := New(
		log.NewTestingLogger(t),
		config.TestP2PConfig(),
		t.TempDir(),
		&recordingImporter{},
		nopFailer{},
		PrometheusMetrics(registry, "test"),
	)
	n.selfID = "self"

	att := &types.Attestation{Slot: 12, CommitteeIndex: 4, BeaconBlockRoot: types.Root{0x01}}
	bz, err := att.Marshal()
	require.NoError(t, err)

	n.handleAttestationMessage(&dep2p.Message{From: "peer-1", Data: bz, Topic: TopicAttestations})
	n.handleAttestationMessage(&dep2p.Message{From: "peer-1", Data: []byte("{not json"), Topic: TopicAttestations})
	n.handleAttestationMessage(&dep2p.Message{From: "self", Data: bz, Topic: TopicAttestations})

	// only the well-formed message from a peer counts
	assert.Equal(t, 1.0, receivedCount(t, registry, TopicAttestations))
}

func TestSplitAndTrimEmpty(t *testing.T) {
	assert.Nil(t, splitAndTrimEmpty("", ","))
	assert.Equal(t, []string{"a", "b"}, splitAndTrimEmpty(" a , ,b,", ","))
}
