package mediastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Record is one media row.
type Record struct {
	ID          int64
	BucketID    int64
	HasBucket   bool
	DisplayName string
	Path        string
	MimeType    string
	Pending     bool
	Generation  int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Locator returns the locator for the record's collection.
func (r Record) Locator() Locator {
	return LocatorFor(r.ID, r.MimeType)
}

// NewRecord describes a media row to insert.
type NewRecord struct {
	BucketID    *int64
	DisplayName string
	Path        string
	MimeType    string
	Pending     bool
}

const recordColumns = `id, bucket_id, display_name, path, mime_type, is_pending, generation, created_at, updated_at`

// nextGeneration is evaluated inside the writing statement so concurrent
// writers from other processes still produce increasing generations.
const nextGeneration = `(SELECT COALESCE(MAX(generation), 0) + 1 FROM media)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec       Record
		bucket    sql.NullInt64
		name      sql.NullString
		path      sql.NullString
		mimeType  sql.NullString
		pending   int
		createdAt string
		updatedAt string
	)
	if err := row.Scan(&rec.ID, &bucket, &name, &path, &mimeType, &pending, &rec.Generation, &createdAt, &updatedAt); err != nil {
		return Record{}, err
	}
	rec.BucketID = bucket.Int64
	rec.HasBucket = bucket.Valid
	rec.DisplayName = name.String
	rec.Path = path.String
	rec.MimeType = mimeType.String
	rec.Pending = pending != 0
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return rec, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

// Insert adds a media row and returns it as stored.
func (s *Store) Insert(ctx context.Context, rec NewRecord) (Record, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	var bucket any
	if rec.BucketID != nil {
		bucket = *rec.BucketID
	}
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO media (bucket_id, display_name, path, mime_type, is_pending, generation, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, `+nextGeneration+`, ?, ?)`,
		bucket,
		nullableString(rec.DisplayName),
		nullableString(rec.Path),
		nullableString(rec.MimeType),
		boolToInt(rec.Pending),
		timestamp,
		timestamp,
	)
	if err != nil {
		return Record{}, fmt.Errorf("insert media: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Record{}, fmt.Errorf("last insert id: %w", err)
	}
	inserted, found, err := s.Lookup(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if !found {
		return Record{}, fmt.Errorf("insert media: row %d vanished", id)
	}
	return inserted, nil
}

// MarkReady clears the pending flag of id and notifies its subscribers.
func (s *Store) MarkReady(ctx context.Context, id int64) error {
	return s.update(ctx, id, "mark ready", `is_pending = 0`)
}

// MarkPending sets the pending flag of id again (a capture tool rewriting a file).
func (s *Store) MarkPending(ctx context.Context, id int64) error {
	return s.update(ctx, id, "mark pending", `is_pending = 1`)
}

// SetPath records a new on-disk path and display name for id.
func (s *Store) SetPath(ctx context.Context, id int64, path, displayName string) error {
	return s.update(ctx, id, "set path", `path = ?, display_name = ?`, nullableString(path), nullableString(displayName))
}

func (s *Store) update(ctx context.Context, id int64, op, assignments string, args ...any) error {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	args = append(args, timestamp, id)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE media SET `+assignments+`, generation = `+nextGeneration+`, updated_at = ? WHERE id = ?`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	s.hub.Notify(id)
	return nil
}

// ErrNotFound reports a write against a missing record.
var ErrNotFound = errors.New("media record not found")

// Delete removes id and notifies its subscribers.
func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM media WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete media: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete media: %w", err)
	}
	s.hub.Notify(id)
	return n > 0, nil
}

// Lookup fetches a record by id, pending rows included.
func (s *Store) Lookup(ctx context.Context, id int64) (Record, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM media WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("lookup media: %w", err)
	}
	return rec, true, nil
}

// FindByPath returns the record stored for an on-disk path.
func (s *Store) FindByPath(ctx context.Context, path string) (Record, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM media WHERE path = ?`, path)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("find media by path: %w", err)
	}
	return rec, true, nil
}

// resolve looks up the record addressed by loc, honouring its collection.
func (s *Store) resolve(ctx context.Context, loc Locator) (Record, bool, error) {
	id, ok := ParseID(loc)
	if !ok {
		return Record{}, false, nil
	}
	rec, found, err := s.Lookup(ctx, id)
	if err != nil || !found {
		return Record{}, false, err
	}
	if !loc.Collection().Accepts(rec.MimeType) {
		return Record{}, false, nil
	}
	return rec, true, nil
}

// PendingState reports the pending flag of the record addressed by loc.
func (s *Store) PendingState(ctx context.Context, loc Locator) (pending bool, found bool, err error) {
	rec, found, err := s.resolve(ctx, loc)
	if err != nil || !found {
		return false, false, err
	}
	return rec.Pending, true, nil
}

// GroupKey returns the bucket of the record addressed by loc.
func (s *Store) GroupKey(ctx context.Context, loc Locator) (int64, bool, error) {
	rec, found, err := s.resolve(ctx, loc)
	if err != nil || !found || !rec.HasBucket {
		return 0, false, err
	}
	return rec.BucketID, true, nil
}

// Group returns up to limit records sharing bucket, newest id first, pending
// rows included.
func (s *Store) Group(ctx context.Context, bucket int64, limit int) ([]Record, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM media WHERE bucket_id = ? ORDER BY id DESC LIMIT ?`,
		bucket, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query group: %w", err)
	}
	return collect(rows)
}

// List returns up to limit records, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM media ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	return collect(rows)
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM media`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count media: %w", err)
	}
	return count, nil
}

// changedSince returns ids written after generation, and the highest generation seen.
func (s *Store) changedSince(ctx context.Context, conn *sql.Conn, generation int64) ([]int64, int64, error) {
	rows, err := conn.QueryContext(ctx, `SELECT id, generation FROM media WHERE generation > ? ORDER BY generation`, generation)
	if err != nil {
		return nil, generation, fmt.Errorf("query changed media: %w", err)
	}
	defer rows.Close()

	var ids []int64
	latest := generation
	for rows.Next() {
		var id, gen int64
		if err := rows.Scan(&id, &gen); err != nil {
			return nil, generation, err
		}
		ids = append(ids, id)
		if gen > latest {
			latest = gen
		}
	}
	return ids, latest, rows.Err()
}

func collect(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()
	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
