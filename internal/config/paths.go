package config

import (
	"os"
	"path/filepath"
)

const (
	// EnvConfigPath overrides the config search
	EnvConfigPath = "INTERLINK_CONFIG"
	// ConfigFileName is looked up in the working directory
	ConfigFileName = "interlink.yaml"
	// ConfigDirName is the directory under the user and system config roots
	ConfigDirName = "interlink"
)

// candidatePaths lists config locations in priority order. Empty entries are
// skipped by the caller.
func candidatePaths() []string {
	paths := []string{os.Getenv(EnvConfigPath), ConfigFileName}
	if dir := userConfigDir(); dir != "" {
		paths = append(paths, filepath.Join(dir, ConfigDirName, "config.yaml"))
	}
	return append(paths, filepath.Join("/etc", ConfigDirName, "config.yaml"))
}

// FindConfigPath returns the first existing candidate, or "" if there is none
func FindConfigPath() string {
	for _, path := range candidatePaths() {
		if path == "" || !fileExists(path) {
			continue
		}
		if abs, err := filepath.Abs(path); err == nil {
			return abs
		}
		return path
	}
	return ""
}

// DefaultConfigPath is where a new config file is written
func DefaultConfigPath() string {
	if dir := userConfigDir(); dir != "" {
		return filepath.Join(dir, ConfigDirName, "config.yaml")
	}
	return ConfigFileName
}

// EnsureConfigDir creates the parent directory of configPath
func EnsureConfigDir(configPath string) error {
	return os.MkdirAll(filepath.Dir(configPath), 0755)
}

// userConfigDir honours XDG_CONFIG_HOME and falls back to ~/.config
func userConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return dir
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
