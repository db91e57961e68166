package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains state and log directory configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Capture contains configuration for screen-capture negotiation with the desktop portal.
type Capture struct {
	// PersistMode controls how long the portal remembers the user's consent:
	// "none", "application", or "until_revoked".
	PersistMode          string `toml:"persist_mode"`
	ParentWindow         string `toml:"parent_window"`
	BrokerTimeoutSeconds int    `toml:"broker_timeout_seconds"`
	RestoreTokenFile     string `toml:"restore_token_file"`
	History              bool   `toml:"history"`
}

// Encoder contains configuration for the per-desktop encoder processes.
//
// Args may reference {node}, {width}, {height}, and {port}; each placeholder is
// substituted before the process is started.
type Encoder struct {
	Binary    string   `toml:"binary"`
	Args      []string `toml:"args"`
	LogOutput bool     `toml:"log_output"`
}

// Server contains configuration for the client-facing listeners.
type Server struct {
	Listen          string `toml:"listen"`
	WebSocketListen string `toml:"websocket_listen"`
	APIRevision     int    `toml:"api_revision"`
}

// Input contains configuration for remote input injection.
type Input struct {
	Enabled   bool   `toml:"enabled"`
	Device    string `toml:"device"`
	QueueSize int    `toml:"queue_size"`
}

// Announce contains configuration for the session-bus port announcement.
type Announce struct {
	Enabled    bool   `toml:"enabled"`
	BusName    string `toml:"bus_name"`
	ObjectPath string `toml:"object_path"`
}

// Hotplug contains configuration for display hotplug detection.
type Hotplug struct {
	Enabled bool `toml:"enabled"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format          string            `toml:"format"`
	Level           string            `toml:"level"`
	RetentionDays   int               `toml:"retention_days"`
	ComponentLevels map[string]string `toml:"component_levels"`
}

// Config encapsulates all configuration values for rdesktopd.
//
// Configuration sections by subsystem:
//   - Paths: state (token, lock, history) and log directories
//   - Capture: portal negotiation, consent persistence, broker timeout
//   - Encoder: external encoder command line
//   - Server: client listeners and protocol revision
//   - Input: virtual keyboard/mouse injection
//   - Announce: session-bus port announcement
//   - Hotplug: display topology change detection
//   - Logging: log format, level, and retention
type Config struct {
	Paths    Paths    `toml:"paths"`
	Capture  Capture  `toml:"capture"`
	Encoder  Encoder  `toml:"encoder"`
	Server   Server   `toml:"server"`
	Input    Input    `toml:"input"`
	Announce Announce `toml:"announce"`
	Hotplug  Hotplug  `toml:"hotplug"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("rdesktopd.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RestoreTokenPath returns the file holding the portal restore token.
func (c *Config) RestoreTokenPath() string {
	if filepath.IsAbs(c.Capture.RestoreTokenFile) {
		return c.Capture.RestoreTokenFile
	}
	return filepath.Join(c.Paths.StateDir, c.Capture.RestoreTokenFile)
}

// LockPath returns the single-instance lock file path.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "rdesktopd.lock")
}

// PIDPath returns the daemon PID file path.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "rdesktopd.pid")
}

// HistoryPath returns the capture history database path.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// BrokerTimeout returns the per-request portal timeout. Zero means no timeout.
func (c *Config) BrokerTimeout() time.Duration {
	if c.Capture.BrokerTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Capture.BrokerTimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
