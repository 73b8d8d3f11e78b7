package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Version != 1 {
		t.Errorf("Version = %d, want 1", cfg.Version)
	}
	if cfg.Lifecycle.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("MaxAttempts = %d, want %d", cfg.Lifecycle.MaxAttempts, DefaultMaxAttempts)
	}
	if cfg.Lifecycle.BaseBackoff.Duration() != DefaultBaseBackoff {
		t.Errorf("BaseBackoff = %s, want %s", cfg.Lifecycle.BaseBackoff.Duration(), DefaultBaseBackoff)
	}
	if cfg.Relay.SendTimeout.Duration() != DefaultSendTimeout {
		t.Errorf("SendTimeout = %s, want %s", cfg.Relay.SendTimeout.Duration(), DefaultSendTimeout)
	}
	if cfg.Transport.Kind != "http" {
		t.Errorf("Transport.Kind = %s, want http", cfg.Transport.Kind)
	}
	if len(cfg.Credentials.Paths) == 0 {
		t.Error("Credentials.Paths should not be empty")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on defaults = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{
			name:   "negative max attempts",
			mutate: func(c *Config) { c.Lifecycle.MaxAttempts = -1 },
			want:   ErrInvalidMaxAttempts,
		},
		{
			name: "max backoff below base",
			mutate: func(c *Config) {
				c.Lifecycle.BaseBackoff = Duration(time.Minute)
				c.Lifecycle.MaxBackoff = Duration(time.Second)
			},
			want: ErrInvalidBackoff,
		},
		{
			name:   "zero probe concurrency",
			mutate: func(c *Config) { c.Discovery.MaxConcurrentProbes = -3 },
			want:   ErrInvalidConcurrency,
		},
		{
			name:   "nmap without targets",
			mutate: func(c *Config) { c.Discovery.Nmap.Enabled = true },
			want:   ErrNmapNoTargets,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLoadFromPath_AppliesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	data := []byte(`
listen: ":9090"
lifecycle:
  max_attempts: 3
  base_backoff: 100ms
analysis:
  oracle_table: /etc/interlink/oracle.yaml
  watch: true
`)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	cfg, path, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath() error: %v", err)
	}
	if path != configPath {
		t.Errorf("path = %s, want %s", path, configPath)
	}
	if cfg.Listen != ":9090" {
		t.Errorf("Listen = %s, want :9090", cfg.Listen)
	}
	if cfg.Lifecycle.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", cfg.Lifecycle.MaxAttempts)
	}
	if cfg.Lifecycle.BaseBackoff.Duration() != 100*time.Millisecond {
		t.Errorf("BaseBackoff = %s, want 100ms", cfg.Lifecycle.BaseBackoff.Duration())
	}
	if cfg.Lifecycle.MaxBackoff.Duration() != DefaultMaxBackoff {
		t.Errorf("MaxBackoff = %s, want default %s", cfg.Lifecycle.MaxBackoff.Duration(), DefaultMaxBackoff)
	}
	if !cfg.Analysis.Watch {
		t.Error("Analysis.Watch should be true")
	}
}

func TestLoadFromPath_Invalid(t *testing.T) {
	tmpDir := t.TempDir()

	badDuration := filepath.Join(tmpDir, "duration.yaml")
	os.WriteFile(badDuration, []byte("relay:\n  send_timeout: soon\n"), 0644)
	if _, _, err := LoadFromPath(badDuration); err == nil {
		t.Error("LoadFromPath() should reject an unparseable duration")
	}

	badNmap := filepath.Join(tmpDir, "nmap.yaml")
	os.WriteFile(badNmap, []byte("discovery:\n  nmap:\n    enabled: true\n"), 0644)
	if _, _, err := LoadFromPath(badNmap); !errors.Is(err, ErrNmapNoTargets) {
		t.Errorf("LoadFromPath() = %v, want %v", err, ErrNmapNoTargets)
	}

	if _, _, err := LoadFromPath(filepath.Join(tmpDir, "missing.yaml")); err == nil {
		t.Error("LoadFromPath() should fail for a missing file")
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Discovery.Nmap.Enabled = true
	cfg.Discovery.Nmap.Targets = []string{"192.168.1.0/24"}
	cfg.Lifecycle.ClosedRetention = Duration(time.Hour)

	if err := cfg.Save(configPath); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	loaded, _, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath() error: %v", err)
	}
	if len(loaded.Discovery.Nmap.Targets) != 1 || loaded.Discovery.Nmap.Targets[0] != "192.168.1.0/24" {
		t.Errorf("Nmap.Targets = %v, want [192.168.1.0/24]", loaded.Discovery.Nmap.Targets)
	}
	if loaded.Lifecycle.ClosedRetention.Duration() != time.Hour {
		t.Errorf("ClosedRetention = %s, want 1h", loaded.Lifecycle.ClosedRetention.Duration())
	}
}

func TestFindConfigPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, ConfigFileName)

	cfg := DefaultConfig()
	if err := cfg.Save(configPath); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	t.Chdir(tmpDir)

	if found := FindConfigPath(); found == "" {
		t.Error("FindConfigPath() should find config in working directory")
	}

	// Explicit path doesn't exist, should fall back
	t.Setenv(EnvConfigPath, "/nonexistent/path.yaml")
	if found := FindConfigPath(); found == "" {
		t.Error("FindConfigPath() should fall back when env path doesn't exist")
	}

	explicit := filepath.Join(tmpDir, "explicit.yaml")
	cfg.Save(explicit)
	t.Setenv(EnvConfigPath, explicit)
	if found := FindConfigPath(); found != explicit {
		t.Errorf("FindConfigPath() = %s, want %s", found, explicit)
	}
}

func TestDefaultConfigPath(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	t.Setenv(EnvConfigPath, "")

	want := filepath.Join(xdg, ConfigDirName, "config.yaml")
	if got := DefaultConfigPath(); got != want {
		t.Errorf("DefaultConfigPath() = %s, want %s", got, want)
	}

	t.Chdir(t.TempDir())
	if err := DefaultConfig().Save(want); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if found := FindConfigPath(); found != want {
		t.Errorf("FindConfigPath() = %s, want %s", found, want)
	}
}

func TestDuration(t *testing.T) {
	d := Duration(5 * time.Minute)

	if d.Duration() != 5*time.Minute {
		t.Errorf("Duration() = %s, want 5m", d.Duration())
	}

	marshaled, err := d.MarshalYAML()
	if err != nil {
		t.Fatalf("MarshalYAML() error: %v", err)
	}
	if marshaled != "5m0s" {
		t.Errorf("MarshalYAML() = %v, want 5m0s", marshaled)
	}
}
