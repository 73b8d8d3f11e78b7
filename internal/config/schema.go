package config

import (
	"time"

	"interlink/internal/logger"
)

// Config is the root configuration structure
type Config struct {
	Version     int               `yaml:"version"`
	Listen      string            `yaml:"listen"`
	Log         logger.Config     `yaml:"log"`
	Database    DatabaseConfig    `yaml:"database"`
	Lifecycle   LifecycleConfig   `yaml:"lifecycle"`
	Relay       RelayConfig       `yaml:"relay"`
	Analysis    AnalysisConfig    `yaml:"analysis"`
	Discovery   DiscoveryConfig   `yaml:"discovery"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Transport   TransportConfig   `yaml:"transport"`
}

// DatabaseConfig holds the profile snapshot database settings.
// An empty path disables persistence.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LifecycleConfig tunes the connection state machine
type LifecycleConfig struct {
	MaxAttempts      int      `yaml:"max_attempts"`
	BaseBackoff      Duration `yaml:"base_backoff"`
	MaxBackoff       Duration `yaml:"max_backoff"`
	EstablishTimeout Duration `yaml:"establish_timeout"`
	ClosedRetention  Duration `yaml:"closed_retention"`
	SweepInterval    Duration `yaml:"sweep_interval"`
}

// RelayConfig tunes the data relay
type RelayConfig struct {
	SendTimeout Duration `yaml:"send_timeout"`
}

// AnalysisConfig controls compatibility analysis
type AnalysisConfig struct {
	// OracleTable is the YAML protocol compatibility table
	OracleTable string   `yaml:"oracle_table"`
	Interval    Duration `yaml:"interval"`
	// Watch re-runs analysis when the oracle table changes on disk
	Watch bool `yaml:"watch"`
}

// DiscoveryConfig controls profile refresh
type DiscoveryConfig struct {
	RefreshInterval     Duration   `yaml:"refresh_interval"`
	ProbeTimeout        Duration   `yaml:"probe_timeout"`
	MaxConcurrentProbes int        `yaml:"max_concurrent_probes"`
	Inventory           string     `yaml:"inventory,omitempty"`
	Nmap                NmapConfig `yaml:"nmap"`
}

// NmapConfig configures the nmap discovery source
type NmapConfig struct {
	Enabled           bool     `yaml:"enabled"`
	Targets           []string `yaml:"targets,omitempty"`
	Ports             string   `yaml:"ports,omitempty"`
	ServiceDetection  bool     `yaml:"service_detection"`
	SkipHostDiscovery bool     `yaml:"skip_host_discovery"`
	Timeout           Duration `yaml:"timeout"`
}

// CredentialsConfig holds paths to mounted secrets (paths, not values)
type CredentialsConfig struct {
	Paths []string `yaml:"paths,omitempty"`
}

// TransportConfig selects the connector transport
type TransportConfig struct {
	Kind    string   `yaml:"kind"`
	Timeout Duration `yaml:"timeout"`
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
