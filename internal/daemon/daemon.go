package daemon

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"lightbox/internal/config"
	"lightbox/internal/deletions"
	"lightbox/internal/ingest"
	"lightbox/internal/items"
	"lightbox/internal/logging"
	"lightbox/internal/mediastore"
	"lightbox/internal/pipeline"
	"lightbox/internal/preflight"
	"lightbox/internal/review"
)

// Daemon owns the store, the review service and the background watchers, and
// enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *mediastore.Store
	tracker  *deletions.Tracker
	service  *review.Service
	poller   *mediastore.Poller
	ingester *ingest.Ingester
	monitor  *deviceMonitor

	lockPath string
	lock     *flock.Flock

	running   atomic.Bool
	startedAt time.Time
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running             bool
	StartedAt           time.Time
	DatabasePath        string
	LockPath            string
	CaptureDir          string
	IngestEnabled       bool
	DeviceMonitor       bool
	OpenSessions        int
	ActiveSubscriptions int
	DeletedItems        int
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *mediastore.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("daemon requires config and store")
	}
	logger = logging.NewComponentLogger(logger, "daemon")

	tracker := deletions.NewTracker()
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		tracker:  tracker,
		service:  review.NewFromConfig(cfg, store, tracker, logger),
		poller:   mediastore.NewPoller(store, cfg.StorePollInterval(), logger),
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	if cfg.Ingest.Enabled {
		d.ingester = ingest.New(store, cfg.Paths.CaptureDir, cfg.Ingest.PendingPrefix, logger)
	}
	if cfg.Devices.Enabled {
		d.monitor = newDeviceMonitor(cfg.Devices.Subsystem, logger, d.onDeviceEvent)
	}
	return d, nil
}

// Start acquires the daemon lock and launches the background watchers.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another lightbox daemon instance is already running")
	}

	for _, result := range preflight.Failed(preflight.RunAll(ctx, d.cfg)) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "the affected feature may not work until fixed"),
		)
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.startedAt = time.Now()

	d.spawn("store poller", func() error { return d.poller.Run(runCtx) })
	if d.ingester != nil {
		d.spawn("capture ingester", func() error { return d.ingester.Run(runCtx) })
	}
	if err := d.monitor.Start(runCtx); err != nil {
		cancel()
		d.wg.Wait()
		_ = d.lock.Unlock()
		return fmt.Errorf("start device monitor: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("lightbox daemon started",
		logging.String("lock", d.lockPath),
		logging.String("database", d.store.Path()),
		logging.Bool("ingest", d.ingester != nil),
	)
	return nil
}

func (d *Daemon) spawn(name string, run func() error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := run(); err != nil {
			logging.ErrorWithContext(d.logger, name+" stopped", "daemon_worker_failed",
				logging.String("worker", name),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the log for the underlying failure and restart the daemon"),
				logging.String(logging.FieldImpact, name+" is not running"),
			)
		}
	}()
}

// Stop ends every review session, stops the watchers and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.service.Close()
	d.monitor.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_unlock_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the lock file if the next start fails"),
		)
	}
	d.running.Store(false)
	d.logger.Info("lightbox daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	return Status{
		Running:             d.running.Load(),
		StartedAt:           d.startedAt,
		DatabasePath:        d.store.Path(),
		LockPath:            d.lockPath,
		CaptureDir:          d.cfg.Paths.CaptureDir,
		IngestEnabled:       d.ingester != nil,
		DeviceMonitor:       d.monitor.Running(),
		OpenSessions:        d.service.OpenSessions(),
		ActiveSubscriptions: d.store.ActiveSubscriptions(),
		DeletedItems:        d.tracker.Len(),
	}
}

// OpenReview starts a review session.
func (d *Daemon) OpenReview(ctx context.Context, trig pipeline.Trigger) (*review.Session, error) {
	return d.service.Open(ctx, trig)
}

// NextSnapshot waits for the next update of a session.
func (d *Daemon) NextSnapshot(ctx context.Context, sessionID string, after uint64) (review.Update, error) {
	session, err := d.service.Session(sessionID)
	if err != nil {
		return review.Update{}, err
	}
	return session.Next(ctx, after)
}

// CloseReview ends a session.
func (d *Daemon) CloseReview(sessionID string) error {
	session, err := d.service.Session(sessionID)
	if err != nil {
		return err
	}
	session.Close()
	return nil
}

// Delete hides id from every review. With purge the record and its file are
// removed as well.
func (d *Daemon) Delete(ctx context.Context, id int64, purge bool) (bool, error) {
	d.service.NotifyDeleted(id)
	if !purge {
		return false, nil
	}
	return purgeMedia(ctx, d.store, d.logger, id)
}

// ResumeCapture hands the capture token to the configured launcher.
func (d *Daemon) ResumeCapture(ctx context.Context, token items.ActionToken) error {
	return d.service.ResumeCapture(ctx, token)
}

// ListMedia returns the newest records.
func (d *Daemon) ListMedia(ctx context.Context, limit int) ([]mediastore.Record, error) {
	return d.store.List(ctx, limit)
}

func (d *Daemon) onDeviceEvent(ctx context.Context, device, action string) {
	if d.ingester == nil {
		return
	}
	if err := d.ingester.Rescan(ctx); err != nil && ctx.Err() == nil {
		logging.WarnWithContext(d.logger, "rescan after device event failed", "device_rescan_failed",
			logging.String("device", device),
			logging.String("action", action),
			logging.Error(err),
			logging.String(logging.FieldImpact, "captures from this device may be registered late"),
		)
	}
}

// purgeMedia removes a record and its file.
func purgeMedia(ctx context.Context, store *mediastore.Store, logger *slog.Logger, id int64) (bool, error) {
	rec, found, err := store.Lookup(ctx, id)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	removed, err := store.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if rec.Path != "" {
		if err := os.Remove(rec.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logging.WarnWithContext(logging.WithContext(logging.WithItemID(ctx, id), logger), "media file not removed", "purge_file_failed",
				logging.String("path", rec.Path),
				logging.Error(err),
				logging.String(logging.FieldImpact, "the file stays on disk without a record"),
			)
		}
	}
	return removed, nil
}

// PurgeMedia removes a record and its file without a running daemon.
func PurgeMedia(ctx context.Context, store *mediastore.Store, logger *slog.Logger, id int64) (bool, error) {
	return purgeMedia(ctx, store, logging.NewComponentLogger(logger, "purge"), id)
}
