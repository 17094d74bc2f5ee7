package mediastore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"lightbox/internal/logging"
)

// Poller detects writes made by other processes (or other connections) and
// turns them into change notifications. It watches PRAGMA data_version on a
// dedicated connection and, when it moves, notifies every id whose generation
// advanced.
type Poller struct {
	store    *Store
	interval time.Duration
	logger   *slog.Logger
}

// NewPoller constructs a poller for store.
func NewPoller(store *Store, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &Poller{
		store:    store,
		interval: interval,
		logger:   logging.NewComponentLogger(logger, "mediastore-poller"),
	}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	conn, err := p.store.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("poller connection: %w", err)
	}
	defer conn.Close()

	version, err := dataVersion(ctx, conn)
	if err != nil {
		return err
	}
	generation, err := maxGeneration(ctx, conn)
	if err != nil {
		return err
	}
	p.logger.Debug("store poller started",
		logging.Int64("generation", generation),
		logging.Duration("interval", p.interval),
	)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		current, err := dataVersion(ctx, conn)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logging.WarnWithContext(p.logger, "data version probe failed", "store_poll_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check database file permissions"),
				logging.String(logging.FieldImpact, "external changes are detected late"),
			)
			continue
		}
		if current == version {
			continue
		}
		version = current

		ids, latest, err := p.store.changedSince(ctx, conn, generation)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logging.WarnWithContext(p.logger, "changed media query failed", "store_poll_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "external changes are detected late"),
			)
			continue
		}
		generation = latest
		if len(ids) > 0 {
			p.logger.Debug("external media changes", logging.Int("count", len(ids)))
			p.store.hub.Notify(ids...)
		}
	}
}

func dataVersion(ctx context.Context, conn *sql.Conn) (int64, error) {
	var version int64
	if err := conn.QueryRowContext(ctx, "PRAGMA data_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("read data_version: %w", err)
	}
	return version, nil
}

func maxGeneration(ctx context.Context, conn *sql.Conn) (int64, error) {
	var generation int64
	if err := conn.QueryRowContext(ctx, "SELECT COALESCE(MAX(generation), 0) FROM media").Scan(&generation); err != nil {
		return 0, fmt.Errorf("read generation: %w", err)
	}
	return generation, nil
}
