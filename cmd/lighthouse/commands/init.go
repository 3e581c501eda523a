package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	cfg "github.com/ethDreamer/lighthouse/config"
	tmos "github.com/ethDreamer/lighthouse/libs/os"
	"github.com/ethDreamer/lighthouse/types"
)

var (
	initChainID        string
	initValidatorCount uint64
)

// InitFilesCmd scaffolds the home directory: config file, data dir, and a
// genesis document when one does not exist yet.
var InitFilesCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the home directory with a config file and genesis document",
	RunE:  initFiles,
}

func init() {
	InitFilesCmd.Flags().StringVar(&initChainID, "chain-id", "local-testnet", "chain ID of the new genesis document")
	InitFilesCmd.Flags().Uint64Var(&initValidatorCount, "validator-count", 64, "validator count of the new genesis document")
}

func initFiles(cmd *cobra.Command, args []string) error {
	cfg.EnsureRoot(config.RootDir)

	genFile := config.GenesisFile()
	if tmos.FileExists(genFile) {
		logger.Info("found genesis file", "path", genFile)
		return nil
	}

	genDoc := &types.GenesisDoc{
		GenesisTime:    time.Now(),
		ChainID:        initChainID,
		ValidatorCount: initValidatorCount,
	}
	if err := genDoc.ValidateAndComplete(); err != nil {
		return err
	}
	if err := genDoc.SaveAs(genFile); err != nil {
		return fmt.Errorf("failed to write genesis file: %w", err)
	}

	logger.Info("generated genesis file", "path", genFile, "chain_id", genDoc.ChainID)
	return nil
}
