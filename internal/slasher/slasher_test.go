package slasher

import (
	"context"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethDreamer/lighthouse/config"
	"github.com/ethDreamer/lighthouse/internal/eventbus"
	"github.com/ethDreamer/lighthouse/libs/log"
	"github.com/ethDreamer/lighthouse/types"
)

type nopFailer struct{}

func (nopFailer) Fail(string, error) {}

func newTestSlasher(t *testing.T, bus *eventbus.EventBus, historyLength uint64) *Slasher {
	t.Helper()
	cfg := &config.SlasherConfig{Enabled: true, HistoryLength: historyLength}
	return New(log.NewTestingLogger(t), cfg, bus, nopFailer{})
}

func importedEvent(slot, proposer uint64, graffiti string) eventbus.EventBlockImported {
	block := &types.BeaconBlock{Slot: slot, ProposerIndex: proposer, Graffiti: graffiti}
	return eventbus.EventBlockImported{Root: block.HashTreeRoot(), Block: block}
}

func TestSlasherDetectsDoubleProposal(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	bus := eventbus.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := newTestSlasher(t, bus, 4096)
	require.NoError(t, s.Start(ctx))

	// Listen for the slashing event the way the HTTP event stream would.
	watcher := bus.Subscribe(8)
	defer watcher.Cancel()

	bus.Publish(importedEvent(10, 3, "one"))
	bus.Publish(importedEvent(10, 3, "two"))

	require.Eventually(t, func() bool {
		return s.Detections() == 1
	}, 2*time.Second, 10*time.Millisecond)

	var slashing eventbus.EventSlashing
	require.Eventually(t, func() bool {
		for {
			select {
			case ev := <-watcher.C:
				if sl, ok := ev.(eventbus.EventSlashing); ok {
					slashing = sl
					return true
				}
			default:
				return false
			}
		}
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, uint64(3), slashing.ProposerIndex)
	assert.Equal(t, uint64(10), slashing.Slot)

	require.NoError(t, s.Stop())
}

func TestSlasherIgnoresDuplicateGossip(t *testing.T) {
	bus := eventbus.New()
	s := newTestSlasher(t, bus, 4096)

	ev := importedEvent(10, 3, "one")
	s.observe(ev.Root, ev.Block)
	s.observe(ev.Root, ev.Block)

	assert.Zero(t, s.Detections())
}

func TestSlasherDistinctSlotsNotSlashable(t *testing.T) {
	bus := eventbus.New()
	s := newTestSlasher(t, bus, 4096)

	a := importedEvent(10, 3, "one")
	b := importedEvent(11, 3, "two")
	s.observe(a.Root, a.Block)
	s.observe(b.Root, b.Block)

	assert.Zero(t, s.Detections())
}

func TestSlasherPrunesOldHistory(t *testing.T) {
	bus := eventbus.New()
	s := newTestSlasher(t, bus, 16)

	old := importedEvent(1, 3, "one")
	s.observe(old.Root, old.Block)

	// Advancing far past the history window drops the old entry, so a
	// conflicting root at the pruned slot is no longer detectable.
	recent := importedEvent(100, 5, "x")
	s.observe(recent.Root, recent.Block)

	conflict := importedEvent(1, 3, "two")
	s.observe(conflict.Root, conflict.Block)

	assert.Zero(t, s.Detections())
}
