// Package config handles hoist configuration parsing and location resolution.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/adamancini/hoist/internal/types"
)

// Defaults applied to fields left empty in the configuration file.
const (
	DefaultWatchdog      = 30 * time.Second
	DefaultCheckInterval = time.Hour
	DefaultQuota         = "50MB"
	DefaultSessionMaxAge = 7 * 24 * time.Hour
	DefaultKeepBundles   = 3
)

// Config represents the parsed configuration file.
type Config struct {
	Environment   types.Environment `yaml:"environment" toml:"environment" json:"environment"`
	Watchdog      string            `yaml:"watchdog,omitempty" toml:"watchdog,omitempty" json:"watchdog,omitempty"`                   // e.g. "30s"
	CheckInterval string            `yaml:"check_interval,omitempty" toml:"check_interval,omitempty" json:"check_interval,omitempty"` // "0" disables periodic checks
	Web           WebConfig         `yaml:"web" toml:"web" json:"web"`
	Native        NativeConfig      `yaml:"native" toml:"native" json:"native"`
	Session       SessionConfig     `yaml:"session" toml:"session" json:"session"`
	Log           LogConfig         `yaml:"log" toml:"log" json:"log"`
	Metrics       MetricsConfig     `yaml:"metrics" toml:"metrics" json:"metrics"`
}

// WebConfig configures the web bundle channel.
type WebConfig struct {
	ManifestURL   string `yaml:"manifest_url" toml:"manifest_url" json:"manifest_url"`
	EventsURL     string `yaml:"events_url,omitempty" toml:"events_url,omitempty" json:"events_url,omitempty"` // ws:// or wss:// push endpoint
	CacheDir      string `yaml:"cache_dir,omitempty" toml:"cache_dir,omitempty" json:"cache_dir,omitempty"`
	Quota         string `yaml:"quota,omitempty" toml:"quota,omitempty" json:"quota,omitempty"` // humanized, e.g. "50MB"
	KeepBundles   int    `yaml:"keep_bundles,omitempty" toml:"keep_bundles,omitempty" json:"keep_bundles,omitempty"`
	ReloadCommand string `yaml:"reload_command,omitempty" toml:"reload_command,omitempty" json:"reload_command,omitempty"` // run with sh -c
}

// NativeConfig configures the native binary updater.
type NativeConfig struct {
	Enabled    bool   `yaml:"enabled" toml:"enabled" json:"enabled"`
	Owner      string `yaml:"owner,omitempty" toml:"owner,omitempty" json:"owner,omitempty"`
	Repo       string `yaml:"repo,omitempty" toml:"repo,omitempty" json:"repo,omitempty"`
	Token      string `yaml:"token,omitempty" toml:"token,omitempty" json:"token,omitempty"`
	BinaryPath string `yaml:"binary_path,omitempty" toml:"binary_path,omitempty" json:"binary_path,omitempty"` // defaults to the running executable
}

// SessionConfig configures the session flag store.
type SessionConfig struct {
	Dir    string `yaml:"dir,omitempty" toml:"dir,omitempty" json:"dir,omitempty"`
	MaxAge string `yaml:"max_age,omitempty" toml:"max_age,omitempty" json:"max_age,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level types.LogLevel `yaml:"level,omitempty" toml:"level,omitempty" json:"level,omitempty"`
	File  string         `yaml:"file,omitempty" toml:"file,omitempty" json:"file,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty" toml:"addr,omitempty" json:"addr,omitempty"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	return &Config{
		Environment: types.EnvironmentDevelopment,
		Native:      NativeConfig{Owner: "adamancini", Repo: "hoist"},
	}
}

// WatchdogTimeout returns the parsed watchdog duration.
func (c *Config) WatchdogTimeout() time.Duration {
	return parseDuration(c.Watchdog, DefaultWatchdog)
}

// CheckEvery returns the parsed periodic check interval. Zero disables it.
func (c *Config) CheckEvery() time.Duration {
	return parseDuration(c.CheckInterval, DefaultCheckInterval)
}

// SessionMaxAge returns the parsed session max age.
func (c *Config) SessionMaxAge() time.Duration {
	return parseDuration(c.Session.MaxAge, DefaultSessionMaxAge)
}

// QuotaBytes returns the web bundle cache quota in bytes.
func (c *Config) QuotaBytes() int64 {
	q := c.Web.Quota
	if q == "" {
		q = DefaultQuota
	}
	n, err := humanize.ParseBytes(q)
	if err != nil {
		n, _ = humanize.ParseBytes(DefaultQuota)
	}
	return int64(n)
}

// KeepBundles returns how many staged bundles to retain when pruning.
func (c *Config) KeepBundles() int {
	if c.Web.KeepBundles <= 0 {
		return DefaultKeepBundles
	}
	return c.Web.KeepBundles
}

// CacheDir returns the web bundle cache directory.
func (c *Config) CacheDir() (string, error) {
	if c.Web.CacheDir != "" {
		return c.Web.CacheDir, nil
	}
	base, err := xdgDir("XDG_CACHE_HOME", ".cache")
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "hoist", "bundles"), nil
}

// SessionDir returns the directory holding session flag files.
func (c *Config) SessionDir() (string, error) {
	if c.Session.Dir != "" {
		return c.Session.Dir, nil
	}
	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		return filepath.Join(runtimeDir, "hoist", "sessions"), nil
	}
	base, err := xdgDir("XDG_STATE_HOME", filepath.Join(".local", "state"))
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "hoist", "sessions"), nil
}

// parseDuration parses s, falling back to def when s is empty or invalid.
// Validate reports invalid values before this is reached.
func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if s == "0" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// xdgDir returns $envVar or ~/fallback.
func xdgDir(envVar, fallback string) (string, error) {
	if dir := os.Getenv(envVar); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Join(home, fallback), nil
}

// FindConfig searches for a configuration file in the standard locations.
// Returns an empty path and no error when nothing is found, so callers can
// fall back to Default.
func FindConfig(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("specified config file not found: %s", explicitPath)
		}
		return explicitPath, nil
	}

	// Check HOIST_CONFIG environment variable
	if envPath := os.Getenv("HOIST_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}

	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		xdgConfig = filepath.Join(home, ".config")
	}
	searchPaths := []string{
		filepath.Join(xdgConfig, "hoist"),
		filepath.Join(home, ".hoist"),
	}

	fileNames := []string{
		"hoist.yaml",
		"hoist.yml",
		"hoist.toml",
		"hoist.json",
		"config",
		"config.yaml",
		"config.yml",
		"config.toml",
		"config.json",
	}

	for _, dir := range searchPaths {
		for _, name := range fileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}
	}

	return "", nil
}

// Load reads and parses a configuration file from the given path.
// An empty path yields Default.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	format := detectFormat(path, content)
	if format == FormatUnknown {
		return nil, fmt.Errorf("unable to detect file format for %s", path)
	}

	cfg, err := parse(content, format)
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
