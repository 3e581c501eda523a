package chain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	dbm "github.com/tendermint/tm-db"

	"github.com/ethDreamer/lighthouse/config"
	"github.com/ethDreamer/lighthouse/internal/eventbus"
	"github.com/ethDreamer/lighthouse/internal/store"
	"github.com/ethDreamer/lighthouse/libs/log"
	"github.com/ethDreamer/lighthouse/types"
)

type nopFailer struct{}

func (nopFailer) Fail(string, error) {}

func testGenesis() *types.GenesisDoc {
	return &types.GenesisDoc{
		GenesisTime:    time.Now().Add(-time.Minute),
		ChainID:        "beacon-test",
		ValidatorCount: 8,
	}
}

func newTestChain(t *testing.T, db *store.Store, bus *eventbus.EventBus) *Chain {
	t.Helper()
	cfg := config.DefaultChainConfig()
	cfg.SlotDuration = 50 * time.Millisecond

	c, err := New(log.NewTestingLogger(t), cfg, testGenesis(), db, bus, NopMetrics(), nopFailer{})
	require.NoError(t, err)
	return c
}

func TestResolveGenesisFromFileAndStore(t *testing.T) {
	db := store.New(dbm.NewMemDB())

	// neither store nor file
	_, err := ResolveGenesis(db, t.TempDir()+"/genesis.json")
	require.ErrorIs(t, err, ErrNoGenesis)

	// from file, persisted to store
	genDoc := testGenesis()
	file := t.TempDir() + "/genesis.json"
	require.NoError(t, genDoc.SaveAs(file))

	got, err := ResolveGenesis(db, file)
	require.NoError(t, err)
	require.Equal(t, genDoc.ChainID, got.ChainID)

	// second resolution hits the store even without the file
	got2, err := ResolveGenesis(db, t.TempDir()+"/missing.json")
	require.NoError(t, err)
	require.Equal(t, genDoc.ChainID, got2.ChainID)
}

func TestChainImportAdvancesHead(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db := store.New(dbm.NewMemDB())
	bus := eventbus.New()
	sub := bus.Subscribe(16)
	defer sub.Cancel()

	c := newTestChain(t, db, bus)
	require.NoError(t, c.Start(ctx))
	defer func() {
		require.NoError(t, c.Stop())
		c.Wait()
	}()

	block := &types.BeaconBlock{Slot: 1, ProposerIndex: 4}
	require.NoError(t, c.SubmitBlock(block))

	require.Eventually(t, func() bool {
		return c.Head().Slot == 1
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, block.HashTreeRoot(), c.Head().Root)

	// both events observed
	seen := map[string]bool{}
	for len(seen) < 2 {
		select {
		case ev := <-sub.C:
			seen[eventbus.Type(ev)] = true
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for events, saw %v", seen)
		}
	}
	require.True(t, seen["block_imported"])
	require.True(t, seen["new_head"])

	// block persisted
	stored, err := db.Block(block.HashTreeRoot())
	require.NoError(t, err)
	require.Equal(t, block, stored)
}

func TestChainRejectsFutureBlock(t *testing.T) {
	db := store.New(dbm.NewMemDB())
	c := newTestChain(t, db, eventbus.New())

	err := c.importBlock(&types.BeaconBlock{Slot: 1 << 40})
	require.Error(t, err)
	require.EqualValues(t, 0, c.Head().Slot)
}

func TestChainDuplicateImportIsNoop(t *testing.T) {
	db := store.New(dbm.NewMemDB())
	bus := eventbus.New()
	c := newTestChain(t, db, bus)

	block := &types.BeaconBlock{Slot: 2}
	require.NoError(t, c.importBlock(block))
	head := c.Head()

	require.NoError(t, c.importBlock(block))
	require.Equal(t, head, c.Head())
}

func TestChainHeadRecoveredFromStore(t *testing.T) {
	db := store.New(dbm.NewMemDB())
	head := types.Head{Slot: 7, Root: (&types.BeaconBlock{Slot: 7}).HashTreeRoot()}
	require.NoError(t, db.SetHead(head))

	c := newTestChain(t, db, eventbus.New())
	require.Equal(t, head, c.Head())
}

func TestSubmitBlockQueueFull(t *testing.T) {
	db := store.New(dbm.NewMemDB())
	cfg := config.DefaultChainConfig()
	cfg.ImportQueueSize = 1

	c, err := New(log.NewNopLogger(), cfg, testGenesis(), db, eventbus.New(), NopMetrics(), nopFailer{})
	require.NoError(t, err)

	// not started: the queue is not drained
	require.NoError(t, c.SubmitBlock(&types.BeaconBlock{Slot: 1}))
	require.ErrorIs(t, c.SubmitBlock(&types.BeaconBlock{Slot: 2}), ErrQueueFull)
}

func TestIsSyncing(t *testing.T) {
	db := store.New(dbm.NewMemDB())
	cfg := config.DefaultChainConfig()
	cfg.SlotDuration = time.Millisecond

	genesis := testGenesis()
	genesis.GenesisTime = time.Now().Add(-time.Minute) // far behind at 1ms slots

	c, err := New(log.NewNopLogger(), cfg, genesis, db, eventbus.New(), NopMetrics(), nopFailer{})
	require.NoError(t, err)
	require.True(t, c.IsSyncing())
}
