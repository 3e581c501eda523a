package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ethDreamer/lighthouse/node"
)

// AddNodeFlags exposes the common configuration options on the command line.
// These are shared between the `run` command and integration tooling.
func AddNodeFlags(cmd *cobra.Command) {
	cmd.Flags().String("moniker", config.Moniker, "node name")
	cmd.Flags().String("db_backend", config.DBBackend, "database backend: goleveldb | memdb")

	cmd.Flags().Int("p2p.listen_port", config.P2P.ListenPort, "port to listen on for peer connections")
	cmd.Flags().String("p2p.bootstrap_peers", config.P2P.BootstrapPeers, "comma separated bootstrap peer addresses")

	cmd.Flags().Bool("bridge.enabled", config.Bridge.Enabled, "poll an execution-layer endpoint")
	cmd.Flags().String("bridge.endpoint", config.Bridge.Endpoint, "execution-layer HTTP endpoint")

	cmd.Flags().Bool("slasher.enabled", config.Slasher.Enabled, "run the slashing-detection service")

	cmd.Flags().Bool("http.enabled", config.HTTP.Enabled, "serve the HTTP API")
	cmd.Flags().String("http.laddr", config.HTTP.ListenAddress, "HTTP API listen address")

	cmd.Flags().Bool("instrumentation.prometheus", config.Instrumentation.Prometheus, "serve Prometheus metrics")
	cmd.Flags().Bool("monitoring.enabled", config.Monitoring.Enabled, "export telemetry to the remote monitoring endpoint")
}

// NewRunNodeCmd builds and runs the beacon node until it stops, and exits
// with the code matching the recorded shutdown reason.
func NewRunNodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Aliases: []string{"node"},
		Short:   "Run the beacon node",
		RunE: func(cmd *cobra.Command, args []string) error {
			builder, err := node.NewBuilder(config, logger)
			if err != nil {
				return err
			}

			n, err := builder.Build(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to build node: %w", err)
			}

			reason := n.RunForever()
			logger.Info("node stopped", "reason", reason.String())
			if code := reason.ExitCode(); code != 0 {
				os.Exit(code)
			}
			return nil
		},
	}

	AddNodeFlags(cmd)
	return cmd
}
