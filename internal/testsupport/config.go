package testsupport

import (
	"path/filepath"
	"testing"

	"lightbox/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.CaptureDir = filepath.Join(base, "captures")
	cfgVal.Paths.SocketPath = filepath.Join(base, "data", "lightbox.sock")
	cfgVal.Store.PollIntervalMillis = 20
	cfgVal.Watcher.FallbackPollIntervalMillis = 20
	cfgVal.Devices.Enabled = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithSiblingLimit overrides the discovery ceiling on the test config.
func WithSiblingLimit(limit int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Discovery.SiblingLimit = limit
	}
}

// WithCaptureCommand sets the resume command on the test config.
func WithCaptureCommand(args ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Capture.Command = args
	}
}

// WithIngest enables the capture directory ingester on the test config.
func WithIngest() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Ingest.Enabled = true
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
