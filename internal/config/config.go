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

// Paths contains directory and socket configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	LogDir     string `toml:"log_dir"`
	CaptureDir string `toml:"capture_dir"`
	SocketPath string `toml:"socket_path"`
}

// Store contains configuration for the SQLite media store.
type Store struct {
	// PollIntervalMillis controls how often the store checks for writes made
	// by other processes (PRAGMA data_version).
	PollIntervalMillis int `toml:"poll_interval_ms"`
}

// Discovery contains configuration for sibling resolution.
type Discovery struct {
	// SiblingLimit caps the number of items returned by a group query.
	SiblingLimit int `toml:"sibling_limit"`
}

// Watcher contains configuration for readiness waits.
type Watcher struct {
	// FallbackPollIntervalMillis is used when a change subscription cannot be
	// registered and the watcher has to poll the pending state instead.
	FallbackPollIntervalMillis int `toml:"fallback_poll_interval_ms"`
}

// Ingest contains configuration for the capture directory ingester.
type Ingest struct {
	Enabled       bool   `toml:"enabled"`
	PendingPrefix string `toml:"pending_prefix"`
}

// Capture contains the capture action defaults handed to review clients.
type Capture struct {
	// Token is the resumable capture action used when a trigger carries none.
	Token string `toml:"token"`
	// SecureToken replaces Token for secure (locked device) triggers.
	SecureToken string `toml:"secure_token"`
	// Command is executed with the token as its final argument when a client
	// resumes the capture action. Empty disables resuming.
	Command []string `toml:"command"`
}

// Devices contains configuration for the capture device monitor.
type Devices struct {
	Enabled   bool   `toml:"enabled"`
	Subsystem string `toml:"subsystem"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for Lightbox.
//
// Configuration sections by subsystem:
//   - Paths: data, log, and capture directories plus the daemon socket
//   - Store: media store change polling
//   - Discovery: sibling group query ceiling
//   - Watcher: readiness wait fallback polling
//   - Ingest: capture directory ingestion
//   - Capture: capture action tokens and resume command
//   - Devices: udev capture device monitoring
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Store     Store     `toml:"store"`
	Discovery Discovery `toml:"discovery"`
	Watcher   Watcher   `toml:"watcher"`
	Ingest    Ingest    `toml:"ingest"`
	Capture   Capture   `toml:"capture"`
	Devices   Devices   `toml:"devices"`
	Logging   Logging   `toml:"logging"`
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

	projectPath, err := filepath.Abs("lightbox.toml")
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
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Ingest.Enabled && strings.TrimSpace(c.Paths.CaptureDir) != "" {
		if err := os.MkdirAll(c.Paths.CaptureDir, 0o755); err != nil {
			return fmt.Errorf("create capture directory %q: %w", c.Paths.CaptureDir, err)
		}
	}
	return nil
}

// DatabasePath returns the location of the media store database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "media.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "lightboxd.lock")
}

// StorePollInterval returns the cross-process change polling interval.
func (c *Config) StorePollInterval() time.Duration {
	return time.Duration(c.Store.PollIntervalMillis) * time.Millisecond
}

// WatcherFallbackInterval returns the readiness polling interval used when
// subscriptions are unavailable.
func (c *Config) WatcherFallbackInterval() time.Duration {
	return time.Duration(c.Watcher.FallbackPollIntervalMillis) * time.Millisecond
}

// CaptureToken returns the default capture action token for the entry path.
func (c *Config) CaptureToken(secure bool) string {
	if secure && strings.TrimSpace(c.Capture.SecureToken) != "" {
		return c.Capture.SecureToken
	}
	return c.Capture.Token
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
