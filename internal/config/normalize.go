package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeStore()
	c.normalizeIngest()
	c.normalizeCapture()
	c.normalizeDevices()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("LIGHTBOX_CAPTURE_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.CaptureDir = strings.TrimSpace(value)
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}

	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.CaptureDir, err = expandPath(strings.TrimSpace(c.Paths.CaptureDir)); err != nil {
		return fmt.Errorf("paths.capture_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.SocketPath) == "" {
		c.Paths.SocketPath = filepath.Join(c.Paths.DataDir, defaultSocketName)
	}
	if c.Paths.SocketPath, err = expandPath(c.Paths.SocketPath); err != nil {
		return fmt.Errorf("paths.socket_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeStore() {
	if c.Store.PollIntervalMillis == 0 {
		c.Store.PollIntervalMillis = defaultStorePollIntervalMillis
	}
	if c.Discovery.SiblingLimit == 0 {
		c.Discovery.SiblingLimit = defaultSiblingLimit
	}
	if c.Watcher.FallbackPollIntervalMillis == 0 {
		c.Watcher.FallbackPollIntervalMillis = defaultWatcherFallbackMillis
	}
}

func (c *Config) normalizeIngest() {
	c.Ingest.PendingPrefix = strings.TrimSpace(c.Ingest.PendingPrefix)
	if c.Ingest.PendingPrefix == "" {
		c.Ingest.PendingPrefix = defaultPendingPrefix
	}
}

func (c *Config) normalizeCapture() {
	c.Capture.Token = strings.TrimSpace(c.Capture.Token)
	c.Capture.SecureToken = strings.TrimSpace(c.Capture.SecureToken)
	command := c.Capture.Command[:0]
	for _, arg := range c.Capture.Command {
		if trimmed := strings.TrimSpace(arg); trimmed != "" {
			command = append(command, trimmed)
		}
	}
	c.Capture.Command = command
}

func (c *Config) normalizeDevices() {
	c.Devices.Subsystem = strings.TrimSpace(c.Devices.Subsystem)
	if c.Devices.Subsystem == "" {
		c.Devices.Subsystem = defaultDeviceSubsystem
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
