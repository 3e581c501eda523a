package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cfg "github.com/ethDreamer/lighthouse/config"
	"github.com/ethDreamer/lighthouse/libs/log"
)

// FlagHome points the node at its root directory; every relative path in the
// configuration resolves under it.
const FlagHome = "home"

var (
	config = cfg.DefaultConfig()
	logger = log.MustNewDefaultLogger(log.LogFormatPlain, log.LogLevelInfo)
)

func defaultHome() string {
	if home := os.Getenv("LHHOME"); home != "" {
		return home
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return cfg.DefaultLighthouseDir
	}
	return filepath.Join(userHome, cfg.DefaultLighthouseDir)
}

// RootCmd is the root command for the beacon node binary.
var RootCmd = &cobra.Command{
	Use:   "lighthouse",
	Short: "Beacon node assembly and lifecycle supervisor",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == VersionCmd.Name() {
			return nil
		}

		conf, err := ParseConfig(cmd)
		if err != nil {
			return err
		}
		config = conf

		logger, err = log.NewDefaultLogger(config.LogFormat, config.LogLevel)
		if err != nil {
			return err
		}
		return nil
	},
}

func init() {
	RootCmd.PersistentFlags().String(FlagHome, defaultHome(), "directory for config and data")
}

// ParseConfig retrieves the default configuration, overlays the config file
// under the home directory when present, then flag and environment
// overrides, and validates the result.
func ParseConfig(cmd *cobra.Command) (*cfg.Config, error) {
	conf := cfg.DefaultConfig()

	home, err := cmd.Flags().GetString(FlagHome)
	if err != nil {
		return nil, err
	}

	v := viper.New()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	v.SetEnvPrefix("LH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.AddConfigPath(filepath.Join(home, "config"))
	if err := v.ReadInConfig(); err != nil {
		// a missing config file is fine, the defaults apply
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(conf); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	conf.SetRoot(home)

	if err := conf.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return conf, nil
}
