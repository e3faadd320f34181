// Package config handles agent configuration parsing and location resolution.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adamancini/autodeploy/internal/destination"
	"github.com/adamancini/autodeploy/internal/host"
	"github.com/adamancini/autodeploy/internal/monitor"
	"github.com/adamancini/autodeploy/internal/transport"
	"github.com/adamancini/autodeploy/internal/types"
)

// EnvConfig names the environment variable that points at the config file.
const EnvConfig = "AUTODEPLOY_CONFIG"

// Duration is a time.Duration written as "30s" or "500ms" in config files.
type Duration time.Duration

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q", string(text))
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Config is the parsed agent configuration.
type Config struct {
	// Registry is the path or URI of the DeploymentRegistry.
	Registry string        `yaml:"registry" toml:"registry" json:"registry"`
	Log      LogConfig     `yaml:"log" toml:"log" json:"log"`
	Monitor  MonitorConfig `yaml:"monitor" toml:"monitor" json:"monitor"`
	HTTP     HTTPConfig    `yaml:"http" toml:"http" json:"http"`
	Host     HostConfig    `yaml:"host" toml:"host" json:"host"`
	Notify   NotifyConfig  `yaml:"notify" toml:"notify" json:"notify"`
	Roots    RootsConfig   `yaml:"roots" toml:"roots" json:"roots"`
	Metrics  MetricsConfig `yaml:"metrics" toml:"metrics" json:"metrics"`
}

type LogConfig struct {
	Level string `yaml:"level" toml:"level" json:"level"`
	File  string `yaml:"file" toml:"file" json:"file"`
}

type MonitorConfig struct {
	// SessionNotificationLimit of zero disables the limit. Unset means the default.
	SessionNotificationLimit *uint    `yaml:"session_notification_limit,omitempty" toml:"session_notification_limit,omitempty" json:"session_notification_limit,omitempty"`
	ShutdownTimeout          Duration `yaml:"shutdown_timeout,omitempty" toml:"shutdown_timeout,omitempty" json:"shutdown_timeout,omitempty"`
	Debounce                 Duration `yaml:"debounce,omitempty" toml:"debounce,omitempty" json:"debounce,omitempty"`
}

type HTTPConfig struct {
	Timeout   Duration `yaml:"timeout,omitempty" toml:"timeout,omitempty" json:"timeout,omitempty"`
	Retries   *int     `yaml:"retries,omitempty" toml:"retries,omitempty" json:"retries,omitempty"`
	Username  string   `yaml:"username,omitempty" toml:"username,omitempty" json:"username,omitempty"`
	Password  string   `yaml:"password,omitempty" toml:"password,omitempty" json:"password,omitempty"`
	Token     string   `yaml:"token,omitempty" toml:"token,omitempty" json:"token,omitempty"`
	UserAgent string   `yaml:"user_agent,omitempty" toml:"user_agent,omitempty" json:"user_agent,omitempty"`
}

// HostConfig holds argv templates for host operations. "{path}" and "{title}" are
// substituted in every argument.
type HostConfig struct {
	Load       []string `yaml:"load,omitempty" toml:"load,omitempty" json:"load,omitempty"`
	Unload     []string `yaml:"unload,omitempty" toml:"unload,omitempty" json:"unload,omitempty"`
	Install    []string `yaml:"install,omitempty" toml:"install,omitempty" json:"install,omitempty"`
	Uninstall  []string `yaml:"uninstall,omitempty" toml:"uninstall,omitempty" json:"uninstall,omitempty"`
	Close      []string `yaml:"close,omitempty" toml:"close,omitempty" json:"close,omitempty"`
	IsActive   []string `yaml:"is_active,omitempty" toml:"is_active,omitempty" json:"is_active,omitempty"`
	Process    string   `yaml:"process,omitempty" toml:"process,omitempty" json:"process,omitempty"`
	Executable string   `yaml:"executable,omitempty" toml:"executable,omitempty" json:"executable,omitempty"`
}

type NotifyConfig struct {
	Mode string `yaml:"mode,omitempty" toml:"mode,omitempty" json:"mode,omitempty"`
}

type RootsConfig struct {
	PerMachine string `yaml:"per_machine,omitempty" toml:"per_machine,omitempty" json:"per_machine,omitempty"`
	PerUser    string `yaml:"per_user,omitempty" toml:"per_user,omitempty" json:"per_user,omitempty"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen,omitempty" toml:"listen,omitempty" json:"listen,omitempty"`
}

// applyDefaults fills every unset field.
func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.File == "" {
		c.Log.File = "console"
	}
	if c.Monitor.SessionNotificationLimit == nil {
		limit := uint(monitor.DefaultSessionNotificationLimit)
		c.Monitor.SessionNotificationLimit = &limit
	}
	if c.Monitor.ShutdownTimeout == 0 {
		c.Monitor.ShutdownTimeout = Duration(monitor.DefaultShutdownTimeout)
	}
	if c.Monitor.Debounce == 0 {
		c.Monitor.Debounce = Duration(monitor.DefaultDebounce)
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = Duration(transport.DefaultTimeout)
	}
	if c.HTTP.Retries == nil {
		retries := transport.DefaultRetries
		c.HTTP.Retries = &retries
	}
	if c.Notify.Mode == "" {
		c.Notify.Mode = string(types.NotifyPrompt)
	}
}

// NotifyMode returns the parsed notify mode.
func (c *Config) NotifyMode() types.NotifyMode {
	mode, err := types.ParseNotifyMode(c.Notify.Mode)
	if err != nil {
		return types.NotifyPrompt
	}
	return mode
}

// TransportOptions converts the http section.
func (c *Config) TransportOptions() transport.Options {
	opts := transport.DefaultOptions()
	if c.HTTP.Timeout > 0 {
		opts.Timeout = time.Duration(c.HTTP.Timeout)
	}
	if c.HTTP.Retries != nil {
		opts.Retries = *c.HTTP.Retries
	}
	opts.Username = c.HTTP.Username
	opts.Password = c.HTTP.Password
	opts.Token = c.HTTP.Token
	if c.HTTP.UserAgent != "" {
		opts.UserAgent = c.HTTP.UserAgent
	}
	return opts
}

// MonitorOptions converts the monitor section.
func (c *Config) MonitorOptions() monitor.Options {
	opts := monitor.DefaultOptions()
	if c.Monitor.SessionNotificationLimit != nil {
		opts.SessionNotificationLimit = *c.Monitor.SessionNotificationLimit
	}
	if c.Monitor.ShutdownTimeout > 0 {
		opts.ShutdownTimeout = time.Duration(c.Monitor.ShutdownTimeout)
	}
	if c.Monitor.Debounce > 0 {
		opts.Debounce = time.Duration(c.Monitor.Debounce)
	}
	return opts
}

// HostCommands converts the host section.
func (c *Config) HostCommands() host.Commands {
	return host.Commands{
		Load:      c.Host.Load,
		Unload:    c.Host.Unload,
		Install:   c.Host.Install,
		Uninstall: c.Host.Uninstall,
		Close:     c.Host.Close,
		IsActive:  c.Host.IsActive,
	}
}

// DestinationRoots returns the platform roots with any configured overrides applied.
func (c *Config) DestinationRoots() (destination.Roots, error) {
	roots, err := destination.DefaultRoots()
	if err != nil && (c.Roots.PerMachine == "" || c.Roots.PerUser == "") {
		return destination.Roots{}, err
	}
	if c.Roots.PerMachine != "" {
		roots.PerMachine = c.Roots.PerMachine
	}
	if c.Roots.PerUser != "" {
		roots.PerUser = c.Roots.PerUser
	}
	return roots, nil
}

// fileNames are the config file names searched in every directory.
var fileNames = []string{
	"autodeploy.yaml",
	"autodeploy.yml",
	"autodeploy.toml",
	"autodeploy.json",
	"autodeploy",
	".autodeploy.yaml",
	".autodeploy.yml",
	".autodeploy.toml",
	".autodeploy.json",
}

// Find searches for a config file in the standard locations.
// Returns the path to the first config file found, or an error if none exists.
func Find(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("specified config file not found: %s", explicitPath)
		}
		return explicitPath, nil
	}

	if envPath := os.Getenv(EnvConfig); envPath != "" {
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
		filepath.Join(xdgConfig, "autodeploy"),
		filepath.Join(home, ".autodeploy"),
		home,
	}

	for _, dir := range searchPaths {
		for _, name := range fileNames {
			path := filepath.Join(dir, name)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path, nil
			}
		}
	}

	return "", fmt.Errorf("no autodeploy config found in standard locations")
}

// DefaultPath returns where init writes a new config file.
func DefaultPath() (string, error) {
	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to determine home directory: %w", err)
		}
		xdgConfig = filepath.Join(home, ".config")
	}
	return filepath.Join(xdgConfig, "autodeploy", "autodeploy.yaml"), nil
}

// Load reads, parses and validates a config file.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	format := detectFormat(path, content)
	if format == FormatUnknown {
		return nil, fmt.Errorf("unable to detect file format for %s", path)
	}

	cfg, err := parse(content, format)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
