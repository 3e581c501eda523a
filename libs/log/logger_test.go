package log_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ethDreamer/lighthouse/libs/log"
)

func TestNewDefaultLogger(t *testing.T) {
	testCases := map[string]struct {
		format    string
		level     string
		expectErr bool
	}{
		"invalid format": {
			format:    "foo",
			level:     log.LogLevelInfo,
			expectErr: true,
		},
		"invalid level": {
			format:    log.LogFormatJSON,
			level:     "foo",
			expectErr: true,
		},
		"json format, info level": {
			format: log.LogFormatJSON,
			level:  log.LogLevelInfo,
		},
		"plain format, debug level": {
			format: log.LogFormatPlain,
			level:  log.LogLevelDebug,
		},
	}

	for name, tc := range testCases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			logger, err := log.NewDefaultLogger(tc.format, tc.level)
			if tc.expectErr {
				require.Error(t, err)
				require.Nil(t, logger)
			} else {
				require.NoError(t, err)
				logger.With("module", "test").Info("hello", "key", "value")
			}
		})
	}
}

func TestNopLogger(t *testing.T) {
	logger := log.NewNopLogger()
	require.NotNil(t, logger)

	// must not panic, even with odd key-value pairs
	logger.Info("message", "key")
	logger.Error("message", "key", "value")
	logger.Debug("message")
	logger.With("module", "nop").Info("message")
}
