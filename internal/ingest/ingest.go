package ingest

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"lightbox/internal/logging"
	"lightbox/internal/mediastore"
)

// Store is the media store surface the ingester writes.
type Store interface {
	Insert(ctx context.Context, rec mediastore.NewRecord) (mediastore.Record, error)
	MarkReady(ctx context.Context, id int64) error
	MarkPending(ctx context.Context, id int64) error
	SetPath(ctx context.Context, id int64, path, displayName string) error
	Delete(ctx context.Context, id int64) (bool, error)
	FindByPath(ctx context.Context, path string) (mediastore.Record, bool, error)
	List(ctx context.Context, limit int) ([]mediastore.Record, error)
}

// Ingester mirrors the capture directory into the store.
type Ingester struct {
	store  Store
	root   string
	prefix string
	logger *slog.Logger
}

// New constructs an ingester for root.
func New(store Store, root, pendingPrefix string, logger *slog.Logger) *Ingester {
	return &Ingester{
		store:  store,
		root:   filepath.Clean(root),
		prefix: pendingPrefix,
		logger: logging.NewComponentLogger(logger, "ingest"),
	}
}

// Root returns the watched capture directory.
func (i *Ingester) Root() string { return i.root }

// Run watches the capture directory until ctx is cancelled. It rescans once
// after the watches are in place so files written before startup are picked
// up.
func (i *Ingester) Run(ctx context.Context) error {
	if err := os.MkdirAll(i.root, 0o755); err != nil {
		return fmt.Errorf("create capture dir: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(i.root); err != nil {
		return fmt.Errorf("watch %s: %w", i.root, err)
	}
	for _, dir := range i.groupDirs() {
		if err := watcher.Add(dir); err != nil {
			logging.WarnWithContext(i.logger, "watch capture group failed", "ingest_watch_failed",
				logging.String("dir", dir),
				logging.Error(err),
				logging.String(logging.FieldImpact, "new files in this group are only found on rescan"),
			)
		}
	}
	if err := i.Rescan(ctx); err != nil {
		logging.WarnWithContext(i.logger, "initial rescan failed", "ingest_rescan_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "files written while stopped are not registered yet"),
		)
	}
	i.logger.Info("capture directory watch started", logging.String("dir", i.root))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if err := i.handle(ctx, watcher, event); err != nil && ctx.Err() == nil {
				logging.WarnWithContext(i.logger, "capture event not applied", "ingest_event_failed",
					logging.String("path", event.Name),
					logging.String("op", event.Op.String()),
					logging.Error(err),
					logging.String(logging.FieldImpact, "the store may lag the capture directory until the next rescan"),
				)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.WarnWithContext(i.logger, "capture watcher error", "ingest_watch_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "some capture events may be missed"),
			)
		}
	}
}

func (i *Ingester) handle(ctx context.Context, watcher *fsnotify.Watcher, event fsnotify.Event) error {
	path := filepath.Clean(event.Name)
	switch {
	case event.Has(fsnotify.Create):
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			if filepath.Dir(path) != i.root {
				return nil
			}
			if err := watcher.Add(path); err != nil {
				return fmt.Errorf("watch new group: %w", err)
			}
			return i.scanDir(ctx, path)
		}
		return i.observe(ctx, path)
	case event.Has(fsnotify.Rename), event.Has(fsnotify.Remove):
		return i.vanished(ctx, path)
	default:
		return nil
	}
}

// observe registers a file that exists on disk.
func (i *Ingester) observe(ctx context.Context, path string) error {
	name := filepath.Base(path)
	if i.isPending(name) {
		return i.observePending(ctx, path)
	}
	if strings.HasPrefix(name, ".") {
		return nil
	}
	return i.observeFinal(ctx, path)
}

func (i *Ingester) observePending(ctx context.Context, path string) error {
	rec, found, err := i.store.FindByPath(ctx, path)
	if err != nil {
		return err
	}
	if found {
		if !rec.Pending {
			return i.store.MarkPending(ctx, rec.ID)
		}
		return nil
	}
	final := i.finalName(filepath.Base(path))
	inserted, err := i.store.Insert(ctx, i.newRecord(path, final, true))
	if err != nil {
		return err
	}
	i.logger.Debug("pending capture registered",
		logging.Int64(logging.FieldItemID, inserted.ID),
		logging.String("path", path),
	)
	return nil
}

func (i *Ingester) observeFinal(ctx context.Context, path string) error {
	rec, found, err := i.store.FindByPath(ctx, path)
	if err != nil {
		return err
	}
	if found {
		if rec.Pending {
			return i.store.MarkReady(ctx, rec.ID)
		}
		return nil
	}

	pendingPath := filepath.Join(filepath.Dir(path), i.prefix+filepath.Base(path))
	pendingRec, found, err := i.store.FindByPath(ctx, pendingPath)
	if err != nil {
		return err
	}
	if found {
		return i.promote(ctx, pendingRec, path)
	}

	inserted, err := i.store.Insert(ctx, i.newRecord(path, filepath.Base(path), false))
	if err != nil {
		return err
	}
	i.logger.Debug("capture registered",
		logging.Int64(logging.FieldItemID, inserted.ID),
		logging.String("path", path),
	)
	return nil
}

func (i *Ingester) promote(ctx context.Context, rec mediastore.Record, finalPath string) error {
	if err := i.store.SetPath(ctx, rec.ID, finalPath, filepath.Base(finalPath)); err != nil {
		return err
	}
	if err := i.store.MarkReady(ctx, rec.ID); err != nil {
		return err
	}
	i.logger.Info("capture complete",
		logging.Int64(logging.FieldItemID, rec.ID),
		logging.String("path", finalPath),
	)
	return nil
}

// vanished handles a path that was renamed away or removed. A pending file
// renamed to its final name is promoted here, since the rename event can
// arrive before the create event for the new name.
func (i *Ingester) vanished(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	rec, found, err := i.store.FindByPath(ctx, path)
	if err != nil || !found {
		return err
	}
	name := filepath.Base(path)
	if i.isPending(name) {
		final := filepath.Join(filepath.Dir(path), i.finalName(name))
		if _, err := os.Stat(final); err == nil {
			return i.promote(ctx, rec, final)
		}
	}
	if _, err := i.store.Delete(ctx, rec.ID); err != nil {
		return err
	}
	i.logger.Info("capture removed",
		logging.Int64(logging.FieldItemID, rec.ID),
		logging.String("path", path),
	)
	return nil
}

// Rescan reconciles the store with the capture directory: files without a
// record are registered and records whose file is gone are deleted.
func (i *Ingester) Rescan(ctx context.Context) error {
	if err := i.scanDir(ctx, i.root); err != nil {
		return err
	}
	for _, dir := range i.groupDirs() {
		if err := i.scanDir(ctx, dir); err != nil {
			return err
		}
	}

	records, err := i.store.List(ctx, -1)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if rec.Path == "" || !i.owns(rec.Path) {
			continue
		}
		if _, err := os.Stat(rec.Path); errors.Is(err, fs.ErrNotExist) {
			if err := i.vanished(ctx, rec.Path); err != nil {
				return err
			}
		}
	}
	return nil
}

func (i *Ingester) scanDir(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read %s: %w", dir, err)
	}
	// Final names first so a pending record whose file was renamed while we
	// were stopped is promoted rather than duplicated.
	var pending []string
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !entry.Type().IsRegular() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if i.isPending(entry.Name()) {
			pending = append(pending, path)
			continue
		}
		if err := i.observe(ctx, path); err != nil {
			return err
		}
	}
	for _, path := range pending {
		if err := i.observe(ctx, path); err != nil {
			return err
		}
	}
	return nil
}

func (i *Ingester) groupDirs() []string {
	entries, err := os.ReadDir(i.root)
	if err != nil {
		return nil
	}
	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			dirs = append(dirs, filepath.Join(i.root, entry.Name()))
		}
	}
	return dirs
}

func (i *Ingester) owns(path string) bool {
	dir := filepath.Dir(path)
	return dir == i.root || filepath.Dir(dir) == i.root
}

func (i *Ingester) isPending(name string) bool {
	return i.prefix != "" && strings.HasPrefix(name, i.prefix) && len(name) > len(i.prefix)
}

func (i *Ingester) finalName(name string) string {
	return strings.TrimPrefix(name, i.prefix)
}

func (i *Ingester) newRecord(path, displayName string, pending bool) mediastore.NewRecord {
	bucket := GroupKeyFor(filepath.Dir(path))
	return mediastore.NewRecord{
		BucketID:    &bucket,
		DisplayName: displayName,
		Path:        path,
		MimeType:    MimeTypeFor(displayName),
		Pending:     pending,
	}
}

// captureTypes covers camera formats missing from the platform mime tables.
var captureTypes = map[string]string{
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".m4v":  "video/x-m4v",
	".heic": "image/heic",
	".heif": "image/heif",
	".dng":  "image/x-adobe-dng",
	".cr3":  "image/x-canon-cr3",
	".nef":  "image/x-nikon-nef",
}

// GroupKeyFor returns the capture group key for a directory.
func GroupKeyFor(dir string) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(filepath.Clean(dir)))
	return int64(h.Sum32())
}

// MimeTypeFor returns the content type implied by a file name's extension,
// or "" when it is unknown.
func MimeTypeFor(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return ""
	}
	value := mime.TypeByExtension(ext)
	if value == "" {
		return captureTypes[ext]
	}
	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil {
		return ""
	}
	return mediaType
}
