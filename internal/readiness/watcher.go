package readiness

import (
	"context"
	"log/slog"
	"time"

	"lightbox/internal/logging"
	"lightbox/internal/mediastore"
)

// Subscriber registers change callbacks for a stored item.
type Subscriber interface {
	Subscribe(loc mediastore.Locator, fn func()) (*mediastore.Subscription, error)
}

// DefaultFallbackInterval is the probe interval used when subscribing fails.
const DefaultFallbackInterval = 500 * time.Millisecond

// Watcher waits for items to become ready.
type Watcher struct {
	probe    *Probe
	subs     Subscriber
	fallback time.Duration
	logger   *slog.Logger
}

// NewWatcher constructs a watcher. A non-positive fallback selects
// DefaultFallbackInterval.
func NewWatcher(probe *Probe, subs Subscriber, fallback time.Duration, logger *slog.Logger) *Watcher {
	if fallback <= 0 {
		fallback = DefaultFallbackInterval
	}
	return &Watcher{
		probe:    probe,
		subs:     subs,
		fallback: fallback,
		logger:   logging.NewComponentLogger(logger, "readiness-watcher"),
	}
}

// AwaitReady blocks until loc is ready or ctx ends. It returns nil once the
// item is ready and ctx.Err() on cancellation. Any subscription it takes is
// released before it returns.
func (w *Watcher) AwaitReady(ctx context.Context, loc mediastore.Locator) error {
	if w.probe.IsReady(ctx, loc) {
		return nil
	}

	signal := make(chan struct{}, 1)
	sub, err := w.subs.Subscribe(loc, func() {
		select {
		case signal <- struct{}{}:
		default:
		}
	})
	if err != nil {
		logging.WarnWithContext(w.logger, "change subscription failed; polling instead", "readiness_subscribe_failed",
			logging.String(logging.FieldLocator, loc.String()),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the media store notification hub"),
			logging.String(logging.FieldImpact, "readiness is detected on a polling interval"),
		)
		return w.poll(ctx, loc)
	}
	defer sub.Unsubscribe()

	// A transition between the first probe and Subscribe fires no callback.
	if w.probe.IsReady(ctx, loc) {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-signal:
		}
		if w.probe.IsReady(ctx, loc) {
			return nil
		}
	}
}

func (w *Watcher) poll(ctx context.Context, loc mediastore.Locator) error {
	ticker := time.NewTicker(w.fallback)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if w.probe.IsReady(ctx, loc) {
			return nil
		}
	}
}
