// Package config provides configuration management for interlink.
//
// Config file locations (priority order):
//  1. $INTERLINK_CONFIG
//  2. ./interlink.yaml
//  3. $XDG_CONFIG_HOME/interlink/config.yaml
//  4. ~/.config/interlink/config.yaml
//  5. /etc/interlink/config.yaml
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"interlink/internal/logger"
)

var (
	ErrInvalidMaxAttempts = errors.New("lifecycle.max_attempts must be greater than 0")
	ErrInvalidBackoff     = errors.New("lifecycle.max_backoff must not be lower than base_backoff")
	ErrInvalidConcurrency = errors.New("discovery.max_concurrent_probes must be greater than 0")
	ErrNmapNoTargets      = errors.New("discovery.nmap is enabled but has no targets")
)

// Defaults
const (
	DefaultListen              = ":3000"
	DefaultMaxAttempts         = 5
	DefaultBaseBackoff         = 500 * time.Millisecond
	DefaultMaxBackoff          = 30 * time.Second
	DefaultEstablishTimeout    = 10 * time.Second
	DefaultClosedRetention     = 5 * time.Minute
	DefaultSweepInterval       = 30 * time.Second
	DefaultSendTimeout         = 5 * time.Second
	DefaultAnalysisInterval    = 5 * time.Minute
	DefaultRefreshInterval     = time.Minute
	DefaultProbeTimeout        = 2 * time.Second
	DefaultMaxConcurrentProbes = 10
	DefaultNmapTimeout         = 10 * time.Minute
	DefaultTransportKind       = "http"
	DefaultTransportTimeout    = 5 * time.Second
)

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		return DefaultConfig(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, path, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, path, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	cfg := &Config{
		Credentials: CredentialsConfig{Paths: []string{"/secrets", "/run/secrets"}},
	}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.Log.Level == "" {
		c.Log.Level = logger.DefaultConfig().Level
	}
	if c.Log.Output == "" {
		c.Log.Output = logger.DefaultConfig().Output
	}

	setDuration(&c.Lifecycle.BaseBackoff, DefaultBaseBackoff)
	setDuration(&c.Lifecycle.MaxBackoff, DefaultMaxBackoff)
	setDuration(&c.Lifecycle.EstablishTimeout, DefaultEstablishTimeout)
	setDuration(&c.Lifecycle.ClosedRetention, DefaultClosedRetention)
	setDuration(&c.Lifecycle.SweepInterval, DefaultSweepInterval)
	if c.Lifecycle.MaxAttempts == 0 {
		c.Lifecycle.MaxAttempts = DefaultMaxAttempts
	}

	setDuration(&c.Relay.SendTimeout, DefaultSendTimeout)
	setDuration(&c.Analysis.Interval, DefaultAnalysisInterval)

	setDuration(&c.Discovery.RefreshInterval, DefaultRefreshInterval)
	setDuration(&c.Discovery.ProbeTimeout, DefaultProbeTimeout)
	setDuration(&c.Discovery.Nmap.Timeout, DefaultNmapTimeout)
	if c.Discovery.MaxConcurrentProbes == 0 {
		c.Discovery.MaxConcurrentProbes = DefaultMaxConcurrentProbes
	}

	if c.Transport.Kind == "" {
		c.Transport.Kind = DefaultTransportKind
	}
	setDuration(&c.Transport.Timeout, DefaultTransportTimeout)
}

func setDuration(d *Duration, def time.Duration) {
	if *d == 0 {
		*d = Duration(def)
	}
}

// Validate checks values that applyDefaults cannot repair
func (c *Config) Validate() error {
	var errs []error

	if c.Lifecycle.MaxAttempts < 1 {
		errs = append(errs, ErrInvalidMaxAttempts)
	}
	if c.Lifecycle.MaxBackoff.Duration() < c.Lifecycle.BaseBackoff.Duration() {
		errs = append(errs, ErrInvalidBackoff)
	}
	if c.Discovery.MaxConcurrentProbes < 1 {
		errs = append(errs, ErrInvalidConcurrency)
	}
	if c.Discovery.Nmap.Enabled && len(c.Discovery.Nmap.Targets) == 0 {
		errs = append(errs, ErrNmapNoTargets)
	}

	return errors.Join(errs...)
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	summary := fmt.Sprintf("Listen: %s, Database: %q\n", c.Listen, c.Database.Path)
	summary += fmt.Sprintf("Lifecycle: max_attempts=%d backoff=%s..%s retention=%s\n",
		c.Lifecycle.MaxAttempts, c.Lifecycle.BaseBackoff.Duration(),
		c.Lifecycle.MaxBackoff.Duration(), c.Lifecycle.ClosedRetention.Duration())
	summary += fmt.Sprintf("Analysis: table=%q interval=%s watch=%v\n",
		c.Analysis.OracleTable, c.Analysis.Interval.Duration(), c.Analysis.Watch)
	summary += fmt.Sprintf("Discovery: refresh=%s inventory=%q nmap=%v",
		c.Discovery.RefreshInterval.Duration(), c.Discovery.Inventory, c.Discovery.Nmap.Enabled)
	return summary
}
