package review_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"lightbox/internal/deletions"
	"lightbox/internal/items"
	"lightbox/internal/logging"
	"lightbox/internal/pipeline"
	"lightbox/internal/readiness"
	"lightbox/internal/review"
	"lightbox/internal/siblings"
	"lightbox/internal/testsupport"
)

func newService(store *testsupport.MemoryStore, launcher review.Launcher) *review.Service {
	logger := logging.NewNop()
	probe := readiness.NewProbe(store, logger)
	watcher := readiness.NewWatcher(probe, store, 10*time.Millisecond, logger)
	p := pipeline.New(probe, siblings.NewResolver(store, 0, logger), watcher, pipeline.Tokens{Default: "still"}, logger)
	return review.NewService(p, deletions.NewTracker(), launcher, logger)
}

func next(t *testing.T, session *review.Session, after uint64) review.Update {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	update, err := session.Next(ctx, after)
	if err != nil {
		t.Fatalf("Next(%d): %v", after, err)
	}
	return update
}

// waitFor reads updates until cond holds or the session ends.
func waitFor(t *testing.T, session *review.Session, cond func(review.Update) bool) review.Update {
	t.Helper()
	var after uint64
	for {
		update := next(t, session, after)
		if cond(update) {
			return update
		}
		if update.Done {
			t.Fatalf("session ended without reaching the expected state; last ids %v", update.Snapshot.IDs())
		}
		after = update.Seq
	}
}

func TestSessionDeliversLatestSnapshot(t *testing.T) {
	store := testsupport.NewMemoryStore(t)
	anchor := store.Put(5, nil, "image/jpeg", false)
	store.Put(4, nil, "image/jpeg", true)
	svc := newService(store, nil)

	session, err := svc.Open(context.Background(), pipeline.Trigger{Anchor: anchor, ExplicitIDs: []int64{5, 4}})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer session.Close()

	stageB := waitFor(t, session, func(u review.Update) bool { return u.Snapshot.Contains(4) })
	if stageB.Done || stageB.Snapshot.AllReady() {
		t.Fatalf("unexpected stage B update %+v", stageB)
	}

	store.SetPending(4, false)
	final := waitFor(t, session, func(u review.Update) bool { return u.Done })
	if !final.Snapshot.AllReady() {
		t.Fatal("final snapshot not ready")
	}
	if want := []int64{items.CaptureActionID, 5, 4}; !reflect.DeepEqual(final.Snapshot.IDs(), want) {
		t.Fatalf("ids = %v, want %v", final.Snapshot.IDs(), want)
	}
}

func TestDeletionHidesItemInBufferedSnapshot(t *testing.T) {
	store := testsupport.NewMemoryStore(t)
	anchor := store.Put(5, nil, "image/jpeg", false)
	store.Put(4, nil, "image/jpeg", true)
	store.Put(3, nil, "image/jpeg", false)
	svc := newService(store, nil)

	session, err := svc.Open(context.Background(), pipeline.Trigger{Anchor: anchor, ExplicitIDs: []int64{5, 4, 3}})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer session.Close()

	before := waitFor(t, session, func(u review.Update) bool { return u.Snapshot.Contains(3) })
	svc.NotifyDeleted(3)

	after := next(t, session, before.Seq)
	if after.Snapshot.Contains(3) {
		t.Fatalf("deleted item still visible: %v", after.Snapshot.IDs())
	}
	if latest := session.Latest(); latest.Snapshot.Contains(3) {
		t.Fatalf("Latest shows deleted item: %v", latest.Snapshot.IDs())
	}

	store.SetPending(4, false)
	final := waitFor(t, session, func(u review.Update) bool { return u.Done })
	if final.Snapshot.Contains(3) {
		t.Fatal("deleted item reappeared in a later snapshot")
	}
	if !final.Snapshot.Contains(items.CaptureActionID) {
		t.Fatal("capture action missing")
	}
}

func TestCloseReleasesWaitsAndRemovesSession(t *testing.T) {
	store := testsupport.NewMemoryStore(t)
	anchor := store.Put(5, nil, "image/jpeg", true)
	svc := newService(store, nil)

	session, err := svc.Open(context.Background(), pipeline.Trigger{Anchor: anchor, ExplicitIDs: []int64{5}})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	waitFor(t, session, func(u review.Update) bool { return u.Seq >= 2 })
	if svc.OpenSessions() != 1 {
		t.Fatalf("OpenSessions = %d", svc.OpenSessions())
	}

	session.Close()
	session.Close()
	if store.ActiveSubscriptions() != 0 {
		t.Fatalf("subscriptions leaked: %d", store.ActiveSubscriptions())
	}
	if _, err := svc.Session(session.ID()); !errors.Is(err, review.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestOpenOutlivesRequestContext(t *testing.T) {
	store := testsupport.NewMemoryStore(t)
	anchor := store.Put(5, nil, "image/jpeg", true)
	svc := newService(store, nil)
	defer svc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	session, err := svc.Open(ctx, pipeline.Trigger{Anchor: anchor, ExplicitIDs: []int64{5}})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	cancel()

	store.SetPending(5, false)
	final := waitFor(t, session, func(u review.Update) bool { return u.Done })
	if !final.Snapshot.AllReady() {
		t.Fatal("session stopped with the request context")
	}
}

func TestOpenRejectsMalformedAnchor(t *testing.T) {
	svc := newService(testsupport.NewMemoryStore(t), nil)
	if _, err := svc.Open(context.Background(), pipeline.Trigger{Anchor: "media://external/file/"}); !errors.Is(err, readiness.ErrMalformedReference) {
		t.Fatalf("expected ErrMalformedReference, got %v", err)
	}
	if svc.OpenSessions() != 0 {
		t.Fatal("failed open registered a session")
	}
}

type recordingLauncher struct {
	tokens []items.ActionToken
}

func (l *recordingLauncher) Launch(_ context.Context, token items.ActionToken) error {
	l.tokens = append(l.tokens, token)
	return nil
}

func TestResumeCapture(t *testing.T) {
	launcher := &recordingLauncher{}
	svc := newService(testsupport.NewMemoryStore(t), launcher)
	if err := svc.ResumeCapture(context.Background(), "still"); err != nil {
		t.Fatalf("ResumeCapture: %v", err)
	}
	if !reflect.DeepEqual(launcher.tokens, []items.ActionToken{"still"}) {
		t.Fatalf("tokens = %v", launcher.tokens)
	}

	bare := newService(testsupport.NewMemoryStore(t), nil)
	if err := bare.ResumeCapture(context.Background(), "still"); !errors.Is(err, review.ErrNoLauncher) {
		t.Fatalf("expected ErrNoLauncher, got %v", err)
	}
}
