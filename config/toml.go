package config

import (
	"bytes"
	"path/filepath"
	"strings"
	"text/template"

	tmos "github.com/ethDreamer/lighthouse/libs/os"
)

// DefaultDirPerm is the default permissions used when creating directories.
const DefaultDirPerm = 0o700

var configTemplate *template.Template

func init() {
	var err error
	tmpl := template.New("configFileTemplate").Funcs(template.FuncMap{
		"StringsJoin": strings.Join,
	})
	if configTemplate, err = tmpl.Parse(defaultConfigTemplate); err != nil {
		panic(err)
	}
}

/****** these are for production settings ***********/

// EnsureRoot creates the root, config, and data directories if they don't
// exist, and panics if it fails.
func EnsureRoot(rootDir string) {
	if err := tmos.EnsureDir(rootDir, DefaultDirPerm); err != nil {
		panic(err.Error())
	}
	if err := tmos.EnsureDir(filepath.Join(rootDir, defaultConfigDir), DefaultDirPerm); err != nil {
		panic(err.Error())
	}
	if err := tmos.EnsureDir(filepath.Join(rootDir, defaultDataDir), DefaultDirPerm); err != nil {
		panic(err.Error())
	}

	configFilePath := filepath.Join(rootDir, defaultConfigFilePath)

	// Write default config file if missing.
	if !tmos.FileExists(configFilePath) {
		writeDefaultConfigFile(configFilePath)
	}
}

// XXX: this func should probably be called by cmd/lighthouse/commands/init.go
// alongside the writing of the genesis.json
func writeDefaultConfigFile(configFilePath string) {
	WriteConfigFile(configFilePath, DefaultConfig())
}

// WriteConfigFile renders config using the template and writes it to
// configFilePath.
func WriteConfigFile(configFilePath string, config *Config) {
	var buffer bytes.Buffer

	if err := configTemplate.Execute(&buffer, config); err != nil {
		panic(err)
	}

	tmos.MustWriteFile(configFilePath, buffer.Bytes(), 0o644)
}

// Note: any changes to the comments/variables/mapstructure
// must be reflected in the appropriate struct in config/config.go
const defaultConfigTemplate = `# This is a TOML config file.
# For more information, see https://github.com/toml-lang/toml

# NOTE: Any path below can be absolute (e.g. "/var/mydir") or
# relative to the home directory (e.g. "data"). The home directory is
# "$HOME/.lighthouse" by default, but could be changed via $LHHOME env variable
# or --home cmd flag.

#######################################################################
###                   Main Base Config Options                      ###
#######################################################################

# A custom human readable name for this node
moniker = "{{ .BaseConfig.Moniker }}"

# Database backend: goleveldb | memdb
db_backend = "{{ .BaseConfig.DBBackend }}"

# Database directory
db_dir = "{{ .BaseConfig.DBPath }}"

# Output level for logging, including package level options
log_level = "{{ .BaseConfig.LogLevel }}"

# Output format: 'plain' (colored text) or 'json'
log_format = "{{ .BaseConfig.LogFormat }}"

# Path to the JSON file containing the genesis document
genesis_file = "{{ js .BaseConfig.Genesis }}"

# Bound applied per registered service while draining the node during
# shutdown; services exceeding it are abandoned
per_task_shutdown_timeout = "{{ .BaseConfig.PerTaskShutdownTimeout }}"

#######################################################
###        Chain Engine Configuration Options       ###
#######################################################
[chain]

# Duration of a single slot
slot_duration = "{{ .Chain.SlotDuration }}"

# Number of blocks buffered in the import queue
import_queue_size = {{ .Chain.ImportQueueSize }}

#######################################################
###           P2P Configuration Options             ###
#######################################################
[p2p]

# TCP port to listen on for peer connections (0 picks a random port)
listen_port = {{ .P2P.ListenPort }}

# Comma separated list of bootstrap peers to dial on startup
bootstrap_peers = "{{ .P2P.BootstrapPeers }}"

# Shared realm key isolating this network from unrelated deployments
realm_key = "{{ .P2P.RealmKey }}"

# Connection manager watermarks
max_connections_low = {{ .P2P.MaxConnectionsLow }}
max_connections_high = {{ .P2P.MaxConnectionsHigh }}

#######################################################
###    Execution Bridge Configuration Options       ###
#######################################################
[bridge]

# When true, poll an execution-layer endpoint for deposit contract data
enabled = {{ .Bridge.Enabled }}

# HTTP endpoint of the execution-layer client
endpoint = "{{ .Bridge.Endpoint }}"

# Interval between polls of the execution endpoint
poll_interval = "{{ .Bridge.PollInterval }}"

# When true, a fatal bridge failure shuts the whole node down
required = {{ .Bridge.Required }}

#######################################################
###         Slasher Configuration Options           ###
#######################################################
[slasher]

enabled = {{ .Slasher.Enabled }}

# Number of slots of proposer history retained
history_length = {{ .Slasher.HistoryLength }}

required = {{ .Slasher.Required }}

#######################################################
###        HTTP API Configuration Options           ###
#######################################################
[http]

enabled = {{ .HTTP.Enabled }}

# TCP address for the HTTP API server to listen on
laddr = "{{ .HTTP.ListenAddress }}"

# A list of origins a cross-domain request can be executed from
# Default value '[]' disables cors support
# Use '["*"]' to allow any origin
cors_allowed_origins = [{{ range .HTTP.CORSAllowedOrigins }}{{ printf "%q, " . }}{{end}}]

required = {{ .HTTP.Required }}

#######################################################
###       Instrumentation Configuration Options     ###
#######################################################
[instrumentation]

# When true, Prometheus metrics are served under /metrics on
# PrometheusListenAddr.
prometheus = {{ .Instrumentation.Prometheus }}

# Address to listen for Prometheus collector(s) connections
prometheus_listen_addr = "{{ .Instrumentation.PrometheusListenAddr }}"

# Maximum number of simultaneous connections.
# If you want to accept a larger number than the default, make sure
# you increase your OS limits.
# 0 - unlimited.
max_open_connections = {{ .Instrumentation.MaxOpenConnections }}

# Instrumentation namespace
namespace = "{{ .Instrumentation.Namespace }}"

required = {{ .Instrumentation.Required }}

#######################################################
###       Monitoring Configuration Options          ###
#######################################################
[monitoring]

# When true, periodically export node telemetry to the remote endpoint
enabled = {{ .Monitoring.Enabled }}

# Base URL of the remote monitoring endpoint (InfluxDB compatible)
endpoint = "{{ .Monitoring.Endpoint }}"

# Organization and bucket receiving the exported points
org = "{{ .Monitoring.Org }}"
bucket = "{{ .Monitoring.Bucket }}"

# Authentication token; may be empty for unauthenticated endpoints
token = "{{ .Monitoring.Token }}"

# Interval between exports
interval = "{{ .Monitoring.Interval }}"

required = {{ .Monitoring.Required }}
`
