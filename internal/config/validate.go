package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateDiscovery(); err != nil {
		return err
	}
	if err := c.validateIngest(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Ingest.Enabled && strings.TrimSpace(c.Paths.CaptureDir) == "" {
		return errors.New("paths.capture_dir must be set when ingest.enabled is true")
	}
	return nil
}

func (c *Config) validateStore() error {
	if c.Store.PollIntervalMillis < minStorePollIntervalMillis {
		return fmt.Errorf("store.poll_interval_ms must be at least %d", minStorePollIntervalMillis)
	}
	if c.Watcher.FallbackPollIntervalMillis < minWatcherFallbackIntervalMillis {
		return fmt.Errorf("watcher.fallback_poll_interval_ms must be at least %d", minWatcherFallbackIntervalMillis)
	}
	return nil
}

func (c *Config) validateDiscovery() error {
	if c.Discovery.SiblingLimit < 1 || c.Discovery.SiblingLimit > maxSiblingLimit {
		return fmt.Errorf("discovery.sibling_limit must be between 1 and %d", maxSiblingLimit)
	}
	return nil
}

func (c *Config) validateIngest() error {
	if !c.Ingest.Enabled {
		return nil
	}
	if strings.ContainsAny(c.Ingest.PendingPrefix, `/\`) {
		return errors.New("ingest.pending_prefix must not contain path separators")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}
