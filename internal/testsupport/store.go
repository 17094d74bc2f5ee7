package testsupport

import (
	"context"
	"testing"

	"lightbox/internal/config"
	"lightbox/internal/logging"
	"lightbox/internal/mediastore"
)

// MustOpenStore opens a mediastore.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *mediastore.Store {
	t.Helper()

	store, err := mediastore.Open(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("mediastore.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewMedia inserts a media record for tests using the provided store.
func NewMedia(t testing.TB, store *mediastore.Store, bucket int64, mimeType string, pending bool) mediastore.Record {
	t.Helper()

	rec, err := store.Insert(context.Background(), mediastore.NewRecord{
		BucketID: &bucket,
		MimeType: mimeType,
		Pending:  pending,
	})
	if err != nil {
		t.Fatalf("store.Insert: %v", err)
	}
	return rec
}
