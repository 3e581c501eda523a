package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

const (
	// LogFormatPlain is a format for colored text
	LogFormatPlain = "plain"
	// LogFormatJSON is a format for json output
	LogFormatJSON = "json"

	// DefaultLogLevel defines a default log level as INFO.
	DefaultLogLevel = "info"
)

// DefaultLighthouseDir is the default home directory of a node.
var (
	DefaultLighthouseDir = ".lighthouse"
	defaultConfigDir     = "config"
	defaultDataDir       = "data"

	defaultConfigFileName  = "config.toml"
	defaultGenesisJSONName = "genesis.json"

	defaultConfigFilePath  = filepath.Join(defaultConfigDir, defaultConfigFileName)
	defaultGenesisJSONPath = filepath.Join(defaultConfigDir, defaultGenesisJSONName)
)

// FieldError reports a malformed configuration value. Field carries the full
// TOML path of the offending option.
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("invalid config field %s: %s", e.Field, e.Reason)
}

// Config defines the top level configuration for a beacon node.
type Config struct {
	// Top level options use an anonymous struct
	BaseConfig `mapstructure:",squash"`

	// Options for services
	Chain           *ChainConfig           `mapstructure:"chain" toml:"chain"`
	P2P             *P2PConfig             `mapstructure:"p2p" toml:"p2p"`
	Bridge          *BridgeConfig          `mapstructure:"bridge" toml:"bridge"`
	Slasher         *SlasherConfig         `mapstructure:"slasher" toml:"slasher"`
	HTTP            *HTTPConfig            `mapstructure:"http" toml:"http"`
	Instrumentation *InstrumentationConfig `mapstructure:"instrumentation" toml:"instrumentation"`
	Monitoring      *MonitoringConfig      `mapstructure:"monitoring" toml:"monitoring"`
}

// DefaultConfig returns a default configuration for a beacon node.
func DefaultConfig() *Config {
	return &Config{
		BaseConfig:      DefaultBaseConfig(),
		Chain:           DefaultChainConfig(),
		P2P:             DefaultP2PConfig(),
		Bridge:          DefaultBridgeConfig(),
		Slasher:         DefaultSlasherConfig(),
		HTTP:            DefaultHTTPConfig(),
		Instrumentation: DefaultInstrumentationConfig(),
		Monitoring:      DefaultMonitoringConfig(),
	}
}

// TestConfig returns a configuration that can be used for testing. It uses an
// in-memory database backend and leaves every optional subsystem disabled.
func TestConfig() *Config {
	cfg := DefaultConfig()
	cfg.BaseConfig = TestBaseConfig()
	cfg.Chain.SlotDuration = 50 * time.Millisecond
	cfg.P2P.ListenPort = 0
	return cfg
}

// SetRoot sets the RootDir for all Config structs
func (cfg *Config) SetRoot(root string) *Config {
	cfg.BaseConfig.RootDir = root
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *Config) ValidateBasic() error {
	if err := cfg.BaseConfig.ValidateBasic(); err != nil {
		return err
	}
	if err := cfg.Chain.ValidateBasic(); err != nil {
		return err
	}
	if err := cfg.P2P.ValidateBasic(); err != nil {
		return err
	}
	if err := cfg.Bridge.ValidateBasic(); err != nil {
		return err
	}
	if err := cfg.Slasher.ValidateBasic(); err != nil {
		return err
	}
	if err := cfg.HTTP.ValidateBasic(); err != nil {
		return err
	}
	if err := cfg.Instrumentation.ValidateBasic(); err != nil {
		return err
	}
	return cfg.Monitoring.ValidateBasic()
}

//-----------------------------------------------------------------------------
// BaseConfig

// BaseConfig defines the base configuration for a beacon node.
type BaseConfig struct {
	// The root directory for all data.
	// This should be set in viper so it can unmarshal into this struct
	RootDir string `mapstructure:"home" toml:"-"`

	// A custom human readable name for this node
	Moniker string `mapstructure:"moniker" toml:"moniker"`

	// Database backend: goleveldb | memdb
	DBBackend string `mapstructure:"db_backend" toml:"db_backend"`

	// Database directory, relative to the root directory
	DBPath string `mapstructure:"db_dir" toml:"db_dir"`

	// Output level for logging
	LogLevel string `mapstructure:"log_level" toml:"log_level"`

	// Output format: 'plain' (colored text) or 'json'
	LogFormat string `mapstructure:"log_format" toml:"log_format"`

	// Path to the JSON file containing the genesis document, relative to
	// the root directory
	Genesis string `mapstructure:"genesis_file" toml:"genesis_file"`

	// Bound applied to every registered service while draining the node
	// during shutdown. A service that has not completed within the bound
	// is abandoned and its resources force-released.
	PerTaskShutdownTimeout time.Duration `mapstructure:"per_task_shutdown_timeout" toml:"per_task_shutdown_timeout"`
}

// DefaultBaseConfig returns a default base configuration for a beacon node.
func DefaultBaseConfig() BaseConfig {
	return BaseConfig{
		Moniker:                defaultMoniker,
		DBBackend:              "goleveldb",
		DBPath:                 defaultDataDir,
		LogLevel:               DefaultLogLevel,
		LogFormat:              LogFormatPlain,
		Genesis:                defaultGenesisJSONPath,
		PerTaskShutdownTimeout: 5 * time.Second,
	}
}

// TestBaseConfig returns a base configuration for testing a beacon node.
func TestBaseConfig() BaseConfig {
	cfg := DefaultBaseConfig()
	cfg.Moniker = "localnode"
	cfg.DBBackend = "memdb"
	cfg.PerTaskShutdownTimeout = time.Second
	return cfg
}

// GenesisFile returns the full path to the genesis.json file
func (cfg BaseConfig) GenesisFile() string {
	return rootify(cfg.Genesis, cfg.RootDir)
}

// DBDir returns the full path to the database directory
func (cfg BaseConfig) DBDir() string {
	return rootify(cfg.DBPath, cfg.RootDir)
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg BaseConfig) ValidateBasic() error {
	switch cfg.LogFormat {
	case LogFormatPlain, LogFormatJSON:
	default:
		return FieldError{Field: "log_format", Reason: "must be 'plain' or 'json'"}
	}
	switch cfg.DBBackend {
	case "goleveldb", "memdb":
	default:
		return FieldError{Field: "db_backend", Reason: "must be 'goleveldb' or 'memdb'"}
	}
	if cfg.PerTaskShutdownTimeout <= 0 {
		return FieldError{Field: "per_task_shutdown_timeout", Reason: "must be positive"}
	}
	return nil
}

//-----------------------------------------------------------------------------
// ChainConfig

// ChainConfig defines the configuration of the consensus chain engine.
type ChainConfig struct {
	// Duration of a single slot. The chain engine advances its wall-clock
	// slot on this cadence.
	SlotDuration time.Duration `mapstructure:"slot_duration" toml:"slot_duration"`

	// Number of blocks buffered in the import queue before gossip
	// producers are back-pressured.
	ImportQueueSize int `mapstructure:"import_queue_size" toml:"import_queue_size"`
}

// DefaultChainConfig returns a default configuration for the chain engine.
func DefaultChainConfig() *ChainConfig {
	return &ChainConfig{
		SlotDuration:    12 * time.Second,
		ImportQueueSize: 1024,
	}
}

func (cfg *ChainConfig) ValidateBasic() error {
	if cfg.SlotDuration <= 0 {
		return FieldError{Field: "chain.slot_duration", Reason: "must be positive"}
	}
	if cfg.ImportQueueSize <= 0 {
		return FieldError{Field: "chain.import_queue_size", Reason: "must be positive"}
	}
	return nil
}

//-----------------------------------------------------------------------------
// P2PConfig

// P2PConfig defines the configuration of the gossip network.
type P2PConfig struct {
	// TCP port to listen on for peer connections. 0 picks a random port.
	ListenPort int `mapstructure:"listen_port" toml:"listen_port"`

	// Comma separated list of bootstrap peer addresses to dial on startup
	BootstrapPeers string `mapstructure:"bootstrap_peers" toml:"bootstrap_peers"`

	// Shared realm key isolating this network from unrelated deployments
	RealmKey string `mapstructure:"realm_key" toml:"realm_key"`

	// Connection manager watermarks
	MaxConnectionsLow  int `mapstructure:"max_connections_low" toml:"max_connections_low"`
	MaxConnectionsHigh int `mapstructure:"max_connections_high" toml:"max_connections_high"`
}

// DefaultP2PConfig returns a default configuration for the gossip network.
func DefaultP2PConfig() *P2PConfig {
	return &P2PConfig{
		ListenPort:         9000,
		RealmKey:           "lighthouse-mainnet",
		MaxConnectionsLow:  32,
		MaxConnectionsHigh: 96,
	}
}

// TestP2PConfig returns a configuration for testing the gossip network.
func TestP2PConfig() *P2PConfig {
	cfg := DefaultP2PConfig()
	cfg.ListenPort = 0
	return cfg
}

func (cfg *P2PConfig) ValidateBasic() error {
	if cfg.ListenPort < 0 || cfg.ListenPort > 65535 {
		return FieldError{Field: "p2p.listen_port", Reason: "must be a valid port"}
	}
	if cfg.RealmKey == "" {
		return FieldError{Field: "p2p.realm_key", Reason: "must not be empty"}
	}
	if cfg.MaxConnectionsLow > cfg.MaxConnectionsHigh {
		return FieldError{Field: "p2p.max_connections_low", Reason: "must not exceed max_connections_high"}
	}
	return nil
}

//-----------------------------------------------------------------------------
// BridgeConfig

// BridgeConfig defines the configuration of the execution-layer bridge.
type BridgeConfig struct {
	// When true, the node polls an execution-layer endpoint for deposit
	// contract data.
	Enabled bool `mapstructure:"enabled" toml:"enabled"`

	// HTTP endpoint of the execution-layer client
	Endpoint string `mapstructure:"endpoint" toml:"endpoint"`

	// Interval between polls of the execution endpoint
	PollInterval time.Duration `mapstructure:"poll_interval" toml:"poll_interval"`

	// When true, a fatal failure of the bridge shuts the whole node down
	// instead of degrading without it.
	Required bool `mapstructure:"required" toml:"required"`
}

// DefaultBridgeConfig returns a default configuration for the execution-layer
// bridge.
func DefaultBridgeConfig() *BridgeConfig {
	return &BridgeConfig{
		Enabled:      false,
		Endpoint:     "http://localhost:8545",
		PollInterval: 7 * time.Second,
	}
}

func (cfg *BridgeConfig) ValidateBasic() error {
	if !cfg.Enabled {
		return nil
	}
	if _, err := url.ParseRequestURI(cfg.Endpoint); err != nil {
		return FieldError{Field: "bridge.endpoint", Reason: "must be a valid URL"}
	}
	if cfg.PollInterval <= 0 {
		return FieldError{Field: "bridge.poll_interval", Reason: "must be positive"}
	}
	return nil
}

//-----------------------------------------------------------------------------
// SlasherConfig

// SlasherConfig defines the configuration of the slashing-detection service.
type SlasherConfig struct {
	Enabled bool `mapstructure:"enabled" toml:"enabled"`

	// Number of slots of proposer history retained for double-proposal
	// detection.
	HistoryLength uint64 `mapstructure:"history_length" toml:"history_length"`

	Required bool `mapstructure:"required" toml:"required"`
}

// DefaultSlasherConfig returns a default configuration for the slasher.
func DefaultSlasherConfig() *SlasherConfig {
	return &SlasherConfig{
		Enabled:       false,
		HistoryLength: 4096,
	}
}

func (cfg *SlasherConfig) ValidateBasic() error {
	if cfg.Enabled && cfg.HistoryLength == 0 {
		return FieldError{Field: "slasher.history_length", Reason: "must be positive"}
	}
	return nil
}

//-----------------------------------------------------------------------------
// HTTPConfig

// HTTPConfig defines the configuration of the HTTP API server.
type HTTPConfig struct {
	Enabled bool `mapstructure:"enabled" toml:"enabled"`

	// Address to listen on, e.g. "127.0.0.1:5052"
	ListenAddress string `mapstructure:"laddr" toml:"laddr"`

	// A list of origins a cross-domain request can be executed from.
	// If the special '*' value is present in the list, all origins will
	// be allowed.
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins" toml:"cors_allowed_origins"`

	Required bool `mapstructure:"required" toml:"required"`
}

// DefaultHTTPConfig returns a default configuration for the HTTP API server.
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		Enabled:       false,
		ListenAddress: "127.0.0.1:5052",
	}
}

func (cfg *HTTPConfig) ValidateBasic() error {
	if !cfg.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		return FieldError{Field: "http.laddr", Reason: "must be host:port"}
	}
	return nil
}

//-----------------------------------------------------------------------------
// InstrumentationConfig

// InstrumentationConfig defines the configuration for metrics reporting.
type InstrumentationConfig struct {
	// When true, Prometheus metrics are served under /metrics on
	// PrometheusListenAddr.
	Prometheus bool `mapstructure:"prometheus" toml:"prometheus"`

	// Address to listen for Prometheus collector(s) connections.
	PrometheusListenAddr string `mapstructure:"prometheus_listen_addr" toml:"prometheus_listen_addr"`

	// Maximum number of simultaneous connections.
	// If you want to accept a larger number than the default, make sure
	// you increase your OS limits.
	// 0 - unlimited.
	MaxOpenConnections int `mapstructure:"max_open_connections" toml:"max_open_connections"`

	// Instrumentation namespace.
	Namespace string `mapstructure:"namespace" toml:"namespace"`

	Required bool `mapstructure:"required" toml:"required"`
}

// DefaultInstrumentationConfig returns a default configuration for metrics
// reporting.
func DefaultInstrumentationConfig() *InstrumentationConfig {
	return &InstrumentationConfig{
		Prometheus:           false,
		PrometheusListenAddr: ":5054",
		MaxOpenConnections:   3,
		Namespace:            "lighthouse",
	}
}

func (cfg *InstrumentationConfig) ValidateBasic() error {
	if cfg.MaxOpenConnections < 0 {
		return FieldError{Field: "instrumentation.max_open_connections", Reason: "can't be negative"}
	}
	if cfg.Prometheus && cfg.Namespace == "" {
		return FieldError{Field: "instrumentation.namespace", Reason: "must not be empty"}
	}
	return nil
}

//-----------------------------------------------------------------------------
// MonitoringConfig

// MonitoringConfig defines the configuration of the remote monitoring client,
// which periodically exports node telemetry to an InfluxDB endpoint.
type MonitoringConfig struct {
	Enabled bool `mapstructure:"enabled" toml:"enabled"`

	// Base URL of the remote monitoring endpoint
	Endpoint string `mapstructure:"endpoint" toml:"endpoint"`

	// InfluxDB organization and bucket receiving the points
	Org    string `mapstructure:"org" toml:"org"`
	Bucket string `mapstructure:"bucket" toml:"bucket"`

	// Authentication token; may be empty for unauthenticated endpoints
	Token string `mapstructure:"token" toml:"token"`

	// Interval between exports
	Interval time.Duration `mapstructure:"interval" toml:"interval"`

	Required bool `mapstructure:"required" toml:"required"`
}

// DefaultMonitoringConfig returns a default configuration for the remote
// monitoring client.
func DefaultMonitoringConfig() *MonitoringConfig {
	return &MonitoringConfig{
		Enabled:  false,
		Endpoint: "",
		Org:      "lighthouse",
		Bucket:   "beacon",
		Interval: time.Minute,
	}
}

func (cfg *MonitoringConfig) ValidateBasic() error {
	if !cfg.Enabled {
		return nil
	}
	if _, err := url.ParseRequestURI(cfg.Endpoint); err != nil {
		return FieldError{Field: "monitoring.endpoint", Reason: "must be a valid URL"}
	}
	if cfg.Interval <= 0 {
		return FieldError{Field: "monitoring.interval", Reason: "must be positive"}
	}
	return nil
}

//-----------------------------------------------------------------------------
// Utils

// helper function to make config creation independent of root dir
func rootify(path, root string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

var defaultMoniker = getDefaultMoniker()

// getDefaultMoniker returns a default moniker, which is the host name. If
// runtime fails to get the host name, "anonymous" will be returned.
func getDefaultMoniker() string {
	moniker, err := os.Hostname()
	if err != nil {
		moniker = "anonymous"
	}
	return moniker
}
