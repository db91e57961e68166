package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCapture(); err != nil {
		return err
	}
	if err := c.validateEncoder(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateInput(); err != nil {
		return err
	}
	if err := c.validateAnnounce(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateCapture() error {
	if !slices.Contains(PersistModes, c.Capture.PersistMode) {
		return fmt.Errorf("capture.persist_mode must be one of %s, got %q", strings.Join(PersistModes, ", "), c.Capture.PersistMode)
	}
	if c.Capture.BrokerTimeoutSeconds < 0 {
		return errors.New("capture.broker_timeout_seconds must be zero (disabled) or positive")
	}
	return nil
}

func (c *Config) validateEncoder() error {
	if c.Encoder.Binary == "" {
		return errors.New("encoder.binary must be set")
	}
	joined := strings.Join(c.Encoder.Args, " ")
	if !strings.Contains(joined, "{node}") {
		return errors.New("encoder.args must reference {node}")
	}
	if !strings.Contains(joined, "{port}") {
		return errors.New("encoder.args must reference {port}")
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.APIRevision < 0 {
		return errors.New("server.api_revision must be positive")
	}
	if c.Server.WebSocketListen != "" && c.Server.WebSocketListen == c.Server.Listen {
		return errors.New("server.websocket_listen must differ from server.listen")
	}
	return nil
}

func (c *Config) validateInput() error {
	if !c.Input.Enabled {
		return nil
	}
	if c.Input.QueueSize <= 0 {
		return errors.New("input.queue_size must be positive when input.enabled is true")
	}
	return nil
}

func (c *Config) validateAnnounce() error {
	if !c.Announce.Enabled {
		return nil
	}
	if !strings.Contains(c.Announce.BusName, ".") {
		return fmt.Errorf("announce.bus_name %q is not a valid bus name", c.Announce.BusName)
	}
	if !strings.HasPrefix(c.Announce.ObjectPath, "/") {
		return fmt.Errorf("announce.object_path %q must start with /", c.Announce.ObjectPath)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json", "auto":
	default:
		return fmt.Errorf("logging.format must be console, json, or auto, got %q", c.Logging.Format)
	}
	if !validLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level %q is not recognized", c.Logging.Level)
	}
	for component, level := range c.Logging.ComponentLevels {
		if !validLevel(level) {
			return fmt.Errorf("logging.component_levels.%s: level %q is not recognized", component, level)
		}
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be zero (disabled) or positive")
	}
	return nil
}

func validLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}
