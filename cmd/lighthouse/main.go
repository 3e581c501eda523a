package main

import (
	"os"

	"github.com/ethDreamer/lighthouse/cmd/lighthouse/commands"
)

func main() {
	rootCmd := commands.RootCmd
	rootCmd.AddCommand(
		commands.InitFilesCmd,
		commands.NewRunNodeCmd(),
		commands.VersionCmd,
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
