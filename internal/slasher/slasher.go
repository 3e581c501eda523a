package slasher

import (
	"context"
	"sync"

	"github.com/ethDreamer/lighthouse/config"
	"github.com/ethDreamer/lighthouse/internal/eventbus"
	"github.com/ethDreamer/lighthouse/internal/lifecycle"
	"github.com/ethDreamer/lighthouse/libs/log"
	"github.com/ethDreamer/lighthouse/libs/service"
	"github.com/ethDreamer/lighthouse/types"
)

const subsystemName = "slasher"

const eventBufferSize = 256

// proposal keys the proposer history: one entry per (proposer, slot).
type proposal struct {
	proposerIndex uint64
	slot          uint64
}

// Slasher watches imported blocks for double proposals: two distinct block
// roots from the same proposer at the same slot. Detections are published on
// the event bus. History is kept for a bounded number of recent slots.
type Slasher struct {
	service.BaseService

	cfg    *config.SlasherConfig
	bus    *eventbus.EventBus
	failer lifecycle.Failer

	mtx        sync.Mutex
	seen       map[proposal]types.Root
	maxSlot    uint64
	detections uint64

	sub  *eventbus.Subscription
	done chan struct{}
}

// New returns an unstarted slasher subscribed to nothing yet; the event
// subscription is taken on start so restarts get a fresh channel.
func New(logger log.Logger, cfg *config.SlasherConfig, bus *eventbus.EventBus, failer lifecycle.Failer) *Slasher {
	s := &Slasher{
		cfg:    cfg,
		bus:    bus,
		failer: failer,
		seen:   make(map[proposal]types.Root),
		done:   make(chan struct{}),
	}
	s.BaseService = *service.NewBaseService(logger, "Slasher", s)
	return s
}

func (s *Slasher) OnStart(ctx context.Context) error {
	s.sub = s.bus.Subscribe(eventBufferSize)
	go s.watchRoutine(ctx)
	return nil
}

func (s *Slasher) OnStop() {
	s.sub.Cancel()
	<-s.done
}

// Detections returns the number of violations observed so far.
func (s *Slasher) Detections() uint64 {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.detections
}

func (s *Slasher) watchRoutine(ctx context.Context) {
	defer lifecycle.Trap(subsystemName, s.failer)
	defer close(s.done)

	for {
		select {
		case ev, ok := <-s.sub.C:
			if !ok {
				return
			}
			imported, ok := ev.(eventbus.EventBlockImported)
			if !ok {
				continue
			}
			s.observe(imported.Root, imported.Block)
		case <-ctx.Done():
			return
		}
	}
}

// observe records a proposal and publishes a slashing event when the same
// proposer is seen with a different root at the same slot.
func (s *Slasher) observe(root types.Root, block *types.BeaconBlock) {
	s.mtx.Lock()

	key := proposal{proposerIndex: block.ProposerIndex, slot: block.Slot}
	prev, ok := s.seen[key]
	if !ok {
		s.seen[key] = root
	}
	if block.Slot > s.maxSlot {
		s.maxSlot = block.Slot
		s.prune()
	}

	if !ok || prev == root {
		s.mtx.Unlock()
		return
	}

	s.detections++
	s.mtx.Unlock()

	s.Logger().Info("double proposal detected",
		"proposer", block.ProposerIndex,
		"slot", block.Slot,
	)
	s.bus.Publish(eventbus.EventSlashing{
		ProposerIndex: block.ProposerIndex,
		Slot:          block.Slot,
	})
}

// prune drops history older than HistoryLength slots behind the max slot
// seen. Caller must hold mtx.
func (s *Slasher) prune() {
	if s.maxSlot < s.cfg.HistoryLength {
		return
	}
	horizon := s.maxSlot - s.cfg.HistoryLength
	for key := range s.seen {
		if key.slot < horizon {
			delete(s.seen, key)
		}
	}
}
