package review

import (
	"log/slog"

	"lightbox/internal/config"
	"lightbox/internal/deletions"
	"lightbox/internal/items"
	"lightbox/internal/mediastore"
	"lightbox/internal/pipeline"
	"lightbox/internal/readiness"
	"lightbox/internal/siblings"
)

// NewFromConfig assembles the probe, watcher, resolver and pipeline over store
// and returns a service using tracker.
func NewFromConfig(cfg *config.Config, store *mediastore.Store, tracker *deletions.Tracker, logger *slog.Logger) *Service {
	probe := readiness.NewProbe(store, logger)
	watcher := readiness.NewWatcher(probe, store, cfg.WatcherFallbackInterval(), logger)
	resolver := siblings.NewResolver(store, cfg.Discovery.SiblingLimit, logger)
	p := pipeline.New(probe, resolver, watcher, pipeline.Tokens{
		Default: items.ActionToken(cfg.CaptureToken(false)),
		Secure:  items.ActionToken(cfg.CaptureToken(true)),
	}, logger)

	var launcher Launcher
	if l := NewCommandLauncher(cfg.Capture.Command, logger); l != nil {
		launcher = l
	}
	return NewService(p, tracker, launcher, logger)
}
