package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	dbm "github.com/tendermint/tm-db"

	"github.com/ethDreamer/lighthouse/types"
)

// keys
var (
	headKey    = []byte("H:")
	genesisKey = []byte("G:")
)

func blockKey(root types.Root) []byte {
	return append([]byte("B:"), root[:]...)
}

func slotKey(slot uint64) []byte {
	key := make([]byte, 2+8)
	copy(key, "S:")
	binary.BigEndian.PutUint64(key[2:], slot)
	return key
}

// ErrBlockNotFound is returned when the requested block is not in the store.
var ErrBlockNotFound = errors.New("block not found")

// Store persists beacon blocks and the chain head. It is shared by the chain
// engine (writes), the HTTP API (reads), and the network (reads for serving
// peers); tm-db provides the internal synchronization for concurrent access,
// the head cache has its own lock.
//
// Writes are applied asynchronously for throughput; Flush must be called
// after all writers have stopped to make the recorded head durable.
type Store struct {
	db dbm.DB

	mtx  sync.RWMutex
	head *types.Head
}

// Open opens (creating if necessary) a beacon store in dir using the given
// tm-db backend ("goleveldb" or "memdb").
func Open(backend, dir string) (*Store, error) {
	db, err := dbm.NewDB("beacon", dbm.BackendType(backend), dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open beacon store: %w", err)
	}
	return New(db), nil
}

// New creates a Store over an existing database handle.
func New(db dbm.DB) *Store {
	store := &Store{db: db}
	store.loadHead()
	return store
}

func (s *Store) loadHead() {
	bz, err := s.db.Get(headKey)
	if err != nil || len(bz) == 0 {
		return
	}
	head := new(types.Head)
	if err := json.Unmarshal(bz, head); err != nil {
		return
	}
	s.head = head
}

// SaveBlock persists a block, indexed by root and by slot.
func (s *Store) SaveBlock(block *types.BeaconBlock) error {
	bz, err := block.Marshal()
	if err != nil {
		return err
	}
	root := block.HashTreeRoot()

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(blockKey(root), bz); err != nil {
		return err
	}
	if err := batch.Set(slotKey(block.Slot), root[:]); err != nil {
		return err
	}
	return batch.Write()
}

// Block loads a block by root.
func (s *Store) Block(root types.Root) (*types.BeaconBlock, error) {
	bz, err := s.db.Get(blockKey(root))
	if err != nil {
		return nil, err
	}
	if len(bz) == 0 {
		return nil, ErrBlockNotFound
	}
	return types.UnmarshalBeaconBlock(bz)
}

// BlockBySlot loads the block recorded at the given slot.
func (s *Store) BlockBySlot(slot uint64) (*types.BeaconBlock, error) {
	bz, err := s.db.Get(slotKey(slot))
	if err != nil {
		return nil, err
	}
	if len(bz) == 0 {
		return nil, ErrBlockNotFound
	}
	var root types.Root
	copy(root[:], bz)
	return s.Block(root)
}

// SetHead records the chain head. The head becomes durable at the next Flush.
func (s *Store) SetHead(head types.Head) error {
	s.mtx.Lock()
	s.head = &head
	s.mtx.Unlock()

	bz, err := json.Marshal(head)
	if err != nil {
		return err
	}
	return s.db.Set(headKey, bz)
}

// Head returns the recorded chain head, if any.
func (s *Store) Head() (types.Head, bool) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	if s.head == nil {
		return types.Head{}, false
	}
	return *s.head, true
}

// SaveGenesisDoc persists the genesis document.
func (s *Store) SaveGenesisDoc(genDoc *types.GenesisDoc) error {
	bz, err := json.Marshal(genDoc)
	if err != nil {
		return err
	}
	return s.db.SetSync(genesisKey, bz)
}

// GenesisDoc loads the persisted genesis document, or nil if absent.
func (s *Store) GenesisDoc() (*types.GenesisDoc, error) {
	bz, err := s.db.Get(genesisKey)
	if err != nil {
		return nil, err
	}
	if len(bz) == 0 {
		return nil, nil
	}
	genDoc := new(types.GenesisDoc)
	if err := json.Unmarshal(bz, genDoc); err != nil {
		return nil, err
	}
	return genDoc, nil
}

// Flush makes the recorded head durable. Call after all writers stopped.
func (s *Store) Flush() error {
	s.mtx.RLock()
	head := s.head
	s.mtx.RUnlock()

	if head == nil {
		return nil
	}
	bz, err := json.Marshal(head)
	if err != nil {
		return err
	}
	return s.db.SetSync(headKey, bz)
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
