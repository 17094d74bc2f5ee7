package config

const (
	defaultConfigPath                = "~/.config/lightbox/config.toml"
	defaultDataDir                   = "~/.local/share/lightbox"
	defaultLogDir                    = "~/.local/share/lightbox/logs"
	defaultCaptureDir                = "~/Pictures/Capture"
	defaultSocketName                = "lightbox.sock"
	defaultStorePollIntervalMillis   = 250
	defaultSiblingLimit              = 42
	defaultWatcherFallbackMillis     = 500
	defaultPendingPrefix             = ".pending-"
	defaultCaptureToken              = "capture:still"
	defaultCaptureSecureToken        = "capture:still:secure"
	defaultDeviceSubsystem           = "video4linux"
	defaultLogFormat                 = "console"
	defaultLogLevel                  = "info"
	maxSiblingLimit                  = 1000
	minStorePollIntervalMillis       = 10
	minWatcherFallbackIntervalMillis = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			LogDir:     defaultLogDir,
			CaptureDir: defaultCaptureDir,
		},
		Store: Store{
			PollIntervalMillis: defaultStorePollIntervalMillis,
		},
		Discovery: Discovery{
			SiblingLimit: defaultSiblingLimit,
		},
		Watcher: Watcher{
			FallbackPollIntervalMillis: defaultWatcherFallbackMillis,
		},
		Ingest: Ingest{
			Enabled:       true,
			PendingPrefix: defaultPendingPrefix,
		},
		Capture: Capture{
			Token:       defaultCaptureToken,
			SecureToken: defaultCaptureSecureToken,
		},
		Devices: Devices{
			Enabled:   false,
			Subsystem: defaultDeviceSubsystem,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
