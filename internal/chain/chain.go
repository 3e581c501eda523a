package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethDreamer/lighthouse/config"
	"github.com/ethDreamer/lighthouse/internal/eventbus"
	"github.com/ethDreamer/lighthouse/internal/lifecycle"
	"github.com/ethDreamer/lighthouse/internal/store"
	"github.com/ethDreamer/lighthouse/libs/log"
	"github.com/ethDreamer/lighthouse/libs/service"
	"github.com/ethDreamer/lighthouse/types"
)

const subsystemName = "chain"

// ErrQueueFull is returned when the import queue is saturated. Gossip
// producers treat it as recoverable back-pressure.
var ErrQueueFull = errors.New("block import queue is full")

// Chain is the consensus chain engine. State transition and fork choice are
// deliberately trivial here; the engine's role in the assembly is owning the
// head, consuming the import queue, and anchoring the slot clock to genesis.
type Chain struct {
	service.BaseService

	cfg     *config.ChainConfig
	genesis *types.GenesisDoc
	db      *store.Store
	bus     *eventbus.EventBus
	metrics *Metrics
	failer  lifecycle.Failer

	importQueue chan *types.BeaconBlock

	mtx  sync.RWMutex
	head types.Head

	wg sync.WaitGroup
}

// New initializes the chain engine from the store and the resolved genesis
// document. The head is recovered from the store when present.
func New(
	logger log.Logger,
	cfg *config.ChainConfig,
	genesis *types.GenesisDoc,
	db *store.Store,
	bus *eventbus.EventBus,
	metrics *Metrics,
	failer lifecycle.Failer,
) (*Chain, error) {
	if genesis == nil {
		return nil, errors.New("chain engine requires a genesis document")
	}

	c := &Chain{
		cfg:         cfg,
		genesis:     genesis,
		db:          db,
		bus:         bus,
		metrics:     metrics,
		failer:      failer,
		importQueue: make(chan *types.BeaconBlock, cfg.ImportQueueSize),
	}
	c.BaseService = *service.NewBaseService(logger, "Chain", c)

	if head, ok := db.Head(); ok {
		c.head = head
	} else {
		c.head = types.Head{Slot: 0, Root: genesis.StateRoot}
	}
	c.metrics.HeadSlot.Set(float64(c.head.Slot))

	return c, nil
}

func (c *Chain) OnStart(ctx context.Context) error {
	c.wg.Add(2)
	go c.importRoutine(ctx)
	go c.slotTickerRoutine(ctx)
	return nil
}

func (c *Chain) OnStop() {
	c.wg.Wait()
}

// GenesisDoc returns the genesis document the engine was initialized with.
func (c *Chain) GenesisDoc() *types.GenesisDoc { return c.genesis }

// Head returns the current chain head.
func (c *Chain) Head() types.Head {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.head
}

// CurrentSlot returns the wall-clock slot derived from the genesis time.
func (c *Chain) CurrentSlot() uint64 {
	return c.slotAt(time.Now())
}

func (c *Chain) slotAt(t time.Time) uint64 {
	if t.Before(c.genesis.GenesisTime) {
		return 0
	}
	return uint64(t.Sub(c.genesis.GenesisTime) / c.cfg.SlotDuration)
}

// IsSyncing reports whether the head lags the wall clock by more than one
// epoch worth of slots.
func (c *Chain) IsSyncing() bool {
	const syncTolerance = 32
	current := c.CurrentSlot()
	head := c.Head().Slot
	return current > head && current-head > syncTolerance
}

// SubmitBlock enqueues a block for import. It never blocks; saturation is
// reported as ErrQueueFull so gossip producers can drop and move on.
func (c *Chain) SubmitBlock(block *types.BeaconBlock) error {
	select {
	case c.importQueue <- block:
		c.metrics.ImportQueueDepth.Set(float64(len(c.importQueue)))
		return nil
	default:
		return ErrQueueFull
	}
}

func (c *Chain) importRoutine(ctx context.Context) {
	defer c.wg.Done()
	defer lifecycle.Trap(subsystemName, c.failer)

	for {
		select {
		case <-ctx.Done():
			return
		case block := <-c.importQueue:
			c.metrics.ImportQueueDepth.Set(float64(len(c.importQueue)))
			if err := c.importBlock(block); err != nil {
				// import errors are recoverable; a malformed gossip
				// block must not take the node down
				c.Logger().Error("failed to import block",
					"slot", block.Slot, "err", err)
			}
		}
	}
}

func (c *Chain) importBlock(block *types.BeaconBlock) error {
	if block == nil {
		return errors.New("nil block")
	}

	// tolerate one slot of clock skew against the wall clock
	if current := c.CurrentSlot(); block.Slot > current+1 {
		return fmt.Errorf("block slot %d is in the future (current %d)", block.Slot, current)
	}

	root := block.HashTreeRoot()
	if _, err := c.db.Block(root); err == nil {
		// already imported
		return nil
	} else if !errors.Is(err, store.ErrBlockNotFound) {
		return err
	}

	if err := c.db.SaveBlock(block); err != nil {
		// a store write failure means consensus state can no longer be
		// persisted; this is fatal for the chain engine
		c.failer.Fail(subsystemName, fmt.Errorf("failed to persist block: %w", err))
		return err
	}

	c.metrics.BlocksImported.Add(1)
	c.bus.Publish(eventbus.EventBlockImported{Root: root, Block: block})

	c.mtx.Lock()
	advanced := block.Slot >= c.head.Slot && root != c.head.Root
	if advanced {
		c.head = types.Head{Slot: block.Slot, Root: root}
	}
	head := c.head
	c.mtx.Unlock()

	if advanced {
		if err := c.db.SetHead(head); err != nil {
			c.Logger().Error("failed to record head", "err", err)
		}
		c.metrics.HeadSlot.Set(float64(head.Slot))
		c.bus.Publish(eventbus.EventNewHead{Head: head})
		c.Logger().Debug("head advanced", "slot", head.Slot, "root", head.Root)
	}

	return nil
}

func (c *Chain) slotTickerRoutine(ctx context.Context) {
	defer c.wg.Done()
	defer lifecycle.Trap(subsystemName, c.failer)

	ticker := time.NewTicker(c.cfg.SlotDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			slot := c.CurrentSlot()
			c.metrics.Slot.Set(float64(slot))
			c.Logger().Debug("slot tick", "slot", slot, "head", c.Head().Slot)
		}
	}
}
