package chain

import (
	"errors"
	"fmt"

	"github.com/ethDreamer/lighthouse/internal/store"
	tmos "github.com/ethDreamer/lighthouse/libs/os"
	"github.com/ethDreamer/lighthouse/types"
)

// ErrNoGenesis is returned when neither the store nor the genesis file
// provide a genesis document.
var ErrNoGenesis = errors.New("genesis document not found in store or file")

// ResolveGenesis determines the chain's genesis document. A document already
// persisted in the store wins; otherwise the genesis file is loaded,
// validated, and persisted for subsequent startups.
func ResolveGenesis(db *store.Store, genesisFile string) (*types.GenesisDoc, error) {
	genDoc, err := db.GenesisDoc()
	if err != nil {
		return nil, fmt.Errorf("failed to load genesis doc from store: %w", err)
	}
	if genDoc != nil {
		return genDoc, nil
	}

	if !tmos.FileExists(genesisFile) {
		return nil, ErrNoGenesis
	}

	genDoc, err = types.GenesisDocFromFile(genesisFile)
	if err != nil {
		return nil, err
	}
	if err := db.SaveGenesisDoc(genDoc); err != nil {
		return nil, fmt.Errorf("failed to persist genesis doc: %w", err)
	}
	return genDoc, nil
}
