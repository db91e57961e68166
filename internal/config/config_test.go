package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"rdesktopd/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "state", "rdesktopd")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.RestoreTokenPath() != filepath.Join(wantState, "restore_token") {
		t.Fatalf("unexpected restore token path: %q", cfg.RestoreTokenPath())
	}
	if cfg.Capture.PersistMode != "until_revoked" {
		t.Fatalf("unexpected persist mode: %q", cfg.Capture.PersistMode)
	}
	if cfg.BrokerTimeout() != 300*time.Second {
		t.Fatalf("unexpected broker timeout: %v", cfg.BrokerTimeout())
	}
	if cfg.Server.Listen != "127.0.0.1:0" {
		t.Fatalf("unexpected listen address: %q", cfg.Server.Listen)
	}
	if cfg.Input.Enabled {
		t.Fatal("expected input injection disabled by default")
	}
	if !cfg.Announce.Enabled {
		t.Fatal("expected announce enabled by default")
	}
	if cfg.Encoder.Binary != "gst-launch-1.0" {
		t.Fatalf("unexpected encoder binary: %q", cfg.Encoder.Binary)
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "rdesktopd.toml")

	type payload struct {
		Paths struct {
			StateDir string `toml:"state_dir"`
		} `toml:"paths"`
		Capture struct {
			PersistMode          string `toml:"persist_mode"`
			BrokerTimeoutSeconds int    `toml:"broker_timeout_seconds"`
			RestoreTokenFile     string `toml:"restore_token_file"`
		} `toml:"capture"`
		Logging struct {
			Format          string            `toml:"format"`
			ComponentLevels map[string]string `toml:"component_levels"`
		} `toml:"logging"`
	}
	custom := payload{}
	custom.Paths.StateDir = filepath.Join(tempDir, "state")
	custom.Capture.PersistMode = "Application"
	custom.Capture.BrokerTimeoutSeconds = 0
	custom.Capture.RestoreTokenFile = "/var/tmp/token"
	custom.Logging.Format = "JSON"
	custom.Logging.ComponentLevels = map[string]string{" Portal ": "DEBUG"}
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Capture.PersistMode != "application" {
		t.Fatalf("expected normalized persist mode, got %q", cfg.Capture.PersistMode)
	}
	if cfg.BrokerTimeout() != 0 {
		t.Fatalf("expected disabled broker timeout, got %v", cfg.BrokerTimeout())
	}
	if cfg.RestoreTokenPath() != "/var/tmp/token" {
		t.Fatalf("expected absolute token path kept, got %q", cfg.RestoreTokenPath())
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected json format, got %q", cfg.Logging.Format)
	}
	if cfg.Logging.ComponentLevels["portal"] != "debug" {
		t.Fatalf("expected normalized component level, got %v", cfg.Logging.ComponentLevels)
	}
	if cfg.LockPath() != filepath.Join(tempDir, "state", "rdesktopd.lock") {
		t.Fatalf("unexpected lock path: %q", cfg.LockPath())
	}
}

func TestEnvVarSuppliesEncoderBinary(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "rdesktopd.toml")
	if err := os.WriteFile(configPath, []byte("[encoder]\nbinary = \"\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("RDESKTOPD_ENCODER", "/opt/gst/bin/gst-launch-1.0")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Encoder.Binary != "/opt/gst/bin/gst-launch-1.0" {
		t.Fatalf("expected encoder binary from env, got %q", cfg.Encoder.Binary)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "persist_mode") {
		t.Fatalf("sample config missing persist_mode: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if cfg.Capture.BrokerTimeoutSeconds != 300 {
		t.Fatalf("expected sample broker timeout 300, got %d", cfg.Capture.BrokerTimeoutSeconds)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("sample config fails validation: %v", err)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cfg := config.Default()
	cfg.Capture.PersistMode = "forever"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown persist mode")
	}

	cfg = config.Default()
	cfg.Capture.BrokerTimeoutSeconds = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative broker timeout")
	}

	cfg = config.Default()
	cfg.Encoder.Args = []string{"pipewiresrc", "path={node}"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when encoder args lack {port}")
	}

	cfg = config.Default()
	cfg.Input.Enabled = true
	cfg.Input.QueueSize = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero input queue")
	}

	cfg = config.Default()
	cfg.Announce.ObjectPath = "org/rdesktopd"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for relative object path")
	}

	cfg = config.Default()
	cfg.Logging.Format = "xml"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown log format")
	}

	cfg = config.Default()
	cfg.Logging.ComponentLevels = map[string]string{"portal": "verbose"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown component level")
	}

	cfg = config.Default()
	cfg.Server.WebSocketListen = cfg.Server.Listen
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when websocket shares the wire listener")
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "state", "logs")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StateDir, cfg.Paths.LogDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q: %v", dir, err)
		}
	}
}
