package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeCapture()
	c.normalizeEncoder()
	c.normalizeServer()
	c.normalizeInput()
	c.normalizeAnnounce()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(strings.TrimSpace(c.Paths.StateDir)); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.HasPrefix(c.Capture.RestoreTokenFile, "~") {
		if c.Capture.RestoreTokenFile, err = expandPath(c.Capture.RestoreTokenFile); err != nil {
			return fmt.Errorf("capture.restore_token_file: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeCapture() {
	c.Capture.PersistMode = strings.ToLower(strings.TrimSpace(c.Capture.PersistMode))
	c.Capture.PersistMode = strings.ReplaceAll(c.Capture.PersistMode, "-", "_")
	if c.Capture.PersistMode == "" {
		c.Capture.PersistMode = defaultPersistMode
	}
	c.Capture.ParentWindow = strings.TrimSpace(c.Capture.ParentWindow)
	if c.Capture.ParentWindow == "" {
		c.Capture.ParentWindow = defaultParentWindow
	}
	c.Capture.RestoreTokenFile = strings.TrimSpace(c.Capture.RestoreTokenFile)
	if c.Capture.RestoreTokenFile == "" {
		c.Capture.RestoreTokenFile = defaultRestoreTokenFile
	}
}

func (c *Config) normalizeEncoder() {
	c.Encoder.Binary = strings.TrimSpace(c.Encoder.Binary)
	if c.Encoder.Binary == "" {
		if value, ok := os.LookupEnv("RDESKTOPD_ENCODER"); ok && strings.TrimSpace(value) != "" {
			c.Encoder.Binary = strings.TrimSpace(value)
		} else {
			c.Encoder.Binary = defaultEncoderBinary
		}
	}
	if len(c.Encoder.Args) == 0 {
		c.Encoder.Args = DefaultEncoderArgs()
	}
}

func (c *Config) normalizeServer() {
	c.Server.Listen = strings.TrimSpace(c.Server.Listen)
	if c.Server.Listen == "" {
		c.Server.Listen = defaultListen
	}
	c.Server.WebSocketListen = strings.TrimSpace(c.Server.WebSocketListen)
	if c.Server.APIRevision == 0 {
		c.Server.APIRevision = defaultAPIRevision
	}
}

func (c *Config) normalizeInput() {
	c.Input.Device = strings.TrimSpace(c.Input.Device)
	if c.Input.Device == "" {
		c.Input.Device = defaultInputDevice
	}
	if c.Input.QueueSize == 0 {
		c.Input.QueueSize = defaultInputQueueSize
	}
}

func (c *Config) normalizeAnnounce() {
	c.Announce.BusName = strings.TrimSpace(c.Announce.BusName)
	if c.Announce.BusName == "" {
		c.Announce.BusName = defaultBusName
	}
	c.Announce.ObjectPath = strings.TrimSpace(c.Announce.ObjectPath)
	if c.Announce.ObjectPath == "" {
		c.Announce.ObjectPath = defaultObjectPath
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if len(c.Logging.ComponentLevels) > 0 {
		normalized := make(map[string]string, len(c.Logging.ComponentLevels))
		for component, level := range c.Logging.ComponentLevels {
			key := strings.ToLower(strings.TrimSpace(component))
			if key == "" {
				continue
			}
			normalized[key] = strings.ToLower(strings.TrimSpace(level))
		}
		c.Logging.ComponentLevels = normalized
	}
}
