package mediastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "modernc.org/sqlite"

	"lightbox/internal/config"
	"lightbox/internal/logging"
)

// Store manages media persistence backed by SQLite.
type Store struct {
	db     *sql.DB
	path   string
	hub    *Hub
	logger *slog.Logger
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// retryOnBusy runs op again with exponential backoff while SQLite reports the
// database as busy. Any other error is returned at once.
func retryOnBusy(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = busyRetryInitialBackoff
	bo.MaxInterval = busyRetryMaxBackoff
	bo.MaxElapsedTime = 0
	return backoff.Retry(func() error {
		err := op()
		if err != nil && !isSQLiteBusy(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, busyRetryAttempts-1), ctx))
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// Open initializes or connects to the media database configured in cfg.
func Open(cfg *config.Config, logger *slog.Logger) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.DatabasePath(), logger)
}

// OpenPath opens the media database at dbPath.
func OpenPath(dbPath string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{
		db:     db,
		path:   dbPath,
		hub:    NewHub(logger),
		logger: logging.NewComponentLogger(logger, "mediastore"),
	}
	if err := store.initSchema(context.Background()); err != nil {
		store.hub.Close()
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close stops notification delivery and closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.hub.Close()
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Subscribe registers fn for change notifications on the record addressed by
// loc. The returned Subscription must be released with Unsubscribe.
func (s *Store) Subscribe(loc Locator, fn func()) (*Subscription, error) {
	id, ok := ParseID(loc)
	if !ok {
		return nil, fmt.Errorf("subscribe %s: locator has no id", loc)
	}
	return s.hub.Subscribe(id, fn), nil
}

// ActiveSubscriptions returns the number of live change subscriptions.
func (s *Store) ActiveSubscriptions() int {
	return s.hub.Active()
}
