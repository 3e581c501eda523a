package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethDreamer/lighthouse/config"
)

func TestDefaultConfig(t *testing.T) {
	assert := assert.New(t)
	cfg := config.DefaultConfig()
	assert.NotNil(cfg.Chain)
	assert.NotNil(cfg.P2P)

	// check the root dir stuff...
	cfg.SetRoot("/foo")
	cfg.Genesis = "bar"
	cfg.DBPath = "/opt/data"

	assert.Equal("/foo/bar", cfg.GenesisFile())
	assert.Equal("/opt/data", cfg.DBDir())
}

func TestConfigValidateBasic(t *testing.T) {
	cfg := config.DefaultConfig()
	require.NoError(t, cfg.ValidateBasic())

	// tamper with slot duration
	cfg.Chain.SlotDuration = -10 * time.Second
	err := cfg.ValidateBasic()
	require.Error(t, err)

	var fieldErr config.FieldError
	require.ErrorAs(t, err, &fieldErr)
	require.Equal(t, "chain.slot_duration", fieldErr.Field)
}

func TestConfigValidateBasicFields(t *testing.T) {
	testCases := map[string]struct {
		mutate func(*config.Config)
		field  string
	}{
		"bad log format": {
			mutate: func(cfg *config.Config) { cfg.LogFormat = "yaml" },
			field:  "log_format",
		},
		"bad db backend": {
			mutate: func(cfg *config.Config) { cfg.DBBackend = "rocksdb" },
			field:  "db_backend",
		},
		"zero shutdown timeout": {
			mutate: func(cfg *config.Config) { cfg.PerTaskShutdownTimeout = 0 },
			field:  "per_task_shutdown_timeout",
		},
		"bridge enabled without endpoint": {
			mutate: func(cfg *config.Config) {
				cfg.Bridge.Enabled = true
				cfg.Bridge.Endpoint = "not a url"
			},
			field: "bridge.endpoint",
		},
		"http enabled with bad address": {
			mutate: func(cfg *config.Config) {
				cfg.HTTP.Enabled = true
				cfg.HTTP.ListenAddress = "5052"
			},
			field: "http.laddr",
		},
		"monitoring enabled without endpoint": {
			mutate: func(cfg *config.Config) { cfg.Monitoring.Enabled = true },
			field:  "monitoring.endpoint",
		},
		"slasher enabled with zero history": {
			mutate: func(cfg *config.Config) {
				cfg.Slasher.Enabled = true
				cfg.Slasher.HistoryLength = 0
			},
			field: "slasher.history_length",
		},
		"negative instrumentation connections": {
			mutate: func(cfg *config.Config) { cfg.Instrumentation.MaxOpenConnections = -1 },
			field:  "instrumentation.max_open_connections",
		},
	}

	for name, tc := range testCases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tc.mutate(cfg)

			var fieldErr config.FieldError
			err := cfg.ValidateBasic()
			require.Error(t, err)
			require.ErrorAs(t, err, &fieldErr)
			require.Equal(t, tc.field, fieldErr.Field)
		})
	}
}

func TestTestConfigIsValid(t *testing.T) {
	cfg := config.TestConfig()
	require.NoError(t, cfg.ValidateBasic())
	require.Equal(t, "memdb", cfg.DBBackend)
}
