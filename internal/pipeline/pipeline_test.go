package pipeline_test

import (
	"context"
	"errors"
	"iter"
	"reflect"
	"testing"
	"time"

	"lightbox/internal/items"
	"lightbox/internal/logging"
	"lightbox/internal/mediastore"
	"lightbox/internal/pipeline"
	"lightbox/internal/readiness"
	"lightbox/internal/siblings"
	"lightbox/internal/testsupport"
)

func newPipeline(store *testsupport.MemoryStore) *pipeline.Pipeline {
	logger := logging.NewNop()
	probe := readiness.NewProbe(store, logger)
	watcher := readiness.NewWatcher(probe, store, 10*time.Millisecond, logger)
	resolver := siblings.NewResolver(store, 0, logger)
	return pipeline.New(probe, resolver, watcher, pipeline.Tokens{Default: "still", Secure: "still-secure"}, logger)
}

type view struct {
	id    int64
	ready bool
}

func describe(snap items.Snapshot) []view {
	out := make([]view, 0, snap.Len())
	for _, it := range snap.Items() {
		switch v := it.(type) {
		case items.CaptureAction:
			out = append(out, view{id: v.ItemID(), ready: true})
		case items.Media:
			out = append(out, view{id: v.ID, ready: v.Ready})
		}
	}
	return out
}

// stream runs the sequence on a goroutine and forwards every snapshot.
func stream(seq *pipeline.Sequence) (<-chan items.Snapshot, <-chan struct{}) {
	out := make(chan items.Snapshot, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(out)
		for snap := range seq.All() {
			out <- snap
		}
	}()
	return out, done
}

func receive(t *testing.T, ch <-chan items.Snapshot) items.Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		if !ok {
			t.Fatal("sequence ended early")
		}
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a snapshot")
	}
	return items.Snapshot{}
}

func expectEnd(t *testing.T, ch <-chan items.Snapshot) {
	t.Helper()
	select {
	case snap, ok := <-ch:
		if ok {
			t.Fatalf("unexpected extra snapshot %v", describe(snap))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sequence did not end")
	}
}

func TestExplicitSiblingsPromoteAsTheyFinish(t *testing.T) {
	store := testsupport.NewMemoryStore(t)
	anchor := store.Put(5, nil, "image/jpeg", false)
	store.Put(4, nil, "image/jpeg", true)
	store.Put(3, nil, "image/jpeg", false)

	seq, err := newPipeline(store).Handle(context.Background(), pipeline.Trigger{
		Anchor:          anchor,
		ExplicitIDs:     []int64{5, 4, 3},
		ContentTypeHint: "image/jpeg",
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	snaps, _ := stream(seq)

	first := receive(t, snaps)
	if want := []view{{-1, true}, {5, true}}; !reflect.DeepEqual(describe(first), want) {
		t.Fatalf("stage A = %v, want %v", describe(first), want)
	}
	second := receive(t, snaps)
	if want := []view{{-1, true}, {5, true}, {4, false}, {3, true}}; !reflect.DeepEqual(describe(second), want) {
		t.Fatalf("stage B = %v, want %v", describe(second), want)
	}

	select {
	case snap := <-snaps:
		t.Fatalf("item promoted before it was written: %v", describe(snap))
	case <-time.After(50 * time.Millisecond):
	}

	store.SetPending(4, false)
	final := receive(t, snaps)
	if want := []view{{-1, true}, {5, true}, {4, true}, {3, true}}; !reflect.DeepEqual(describe(final), want) {
		t.Fatalf("final = %v, want %v", describe(final), want)
	}
	expectEnd(t, snaps)
	if store.ActiveSubscriptions() != 0 {
		t.Fatalf("subscriptions leaked: %d", store.ActiveSubscriptions())
	}
}

func TestExplicitNegativeIDNeverCollidesWithCaptureAction(t *testing.T) {
	store := testsupport.NewMemoryStore(t)
	anchor := store.Put(5, nil, "image/jpeg", false)

	seq, err := newPipeline(store).Handle(context.Background(), pipeline.Trigger{
		Anchor:      anchor,
		ExplicitIDs: []int64{5, items.CaptureActionID},
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	var last items.Snapshot
	count := 0
	for snap := range seq.All() {
		count++
		seen := make(map[int64]bool)
		for _, id := range snap.IDs() {
			if seen[id] {
				t.Fatalf("snapshot %d repeats id %d: %v", count, id, snap.IDs())
			}
			seen[id] = true
		}
		last = snap
	}
	if want := []view{{-1, true}, {5, true}}; !reflect.DeepEqual(describe(last), want) {
		t.Fatalf("final = %v, want %v", describe(last), want)
	}
	if store.ActiveSubscriptions() != 0 {
		t.Fatalf("subscriptions leaked: %d", store.ActiveSubscriptions())
	}
}

func TestFirstSnapshotDoesNotWaitForResolver(t *testing.T) {
	store := testsupport.NewMemoryStore(t)
	anchor := store.Put(9, testsupport.Bucket(1), "image/jpeg", true)
	store.Put(8, testsupport.Bucket(1), "image/jpeg", false)
	release := store.GateGroup()
	defer release()

	seq, err := newPipeline(store).Handle(context.Background(), pipeline.Trigger{Anchor: anchor})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	next, stop := iter.Pull(seq.All())
	defer stop()

	first, ok := next()
	if !ok {
		t.Fatal("no first snapshot")
	}
	if want := []view{{-1, true}, {9, false}}; !reflect.DeepEqual(describe(first), want) {
		t.Fatalf("stage A = %v, want %v", describe(first), want)
	}
	if store.GroupCalls() != 0 {
		t.Fatalf("group query ran before the first snapshot")
	}
	if action, ok := first.At(0).(items.CaptureAction); !ok || action.Token != "still" {
		t.Fatalf("unexpected capture action %+v", first.At(0))
	}

	release()
	second, ok := next()
	if !ok {
		t.Fatal("no second snapshot")
	}
	if want := []view{{-1, true}, {9, false}, {8, true}}; !reflect.DeepEqual(describe(second), want) {
		t.Fatalf("stage B = %v, want %v", describe(second), want)
	}
}

func TestDiscoveryWithNoGroupShowsAnchorOnly(t *testing.T) {
	store := testsupport.NewMemoryStore(t)
	anchor := store.Put(3, nil, "image/jpeg", false)

	seq, err := newPipeline(store).Handle(context.Background(), pipeline.Trigger{Anchor: anchor})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	var got [][]view
	for snap := range seq.All() {
		got = append(got, describe(snap))
	}
	want := [][]view{
		{{-1, true}, {3, true}},
		{{-1, true}, {3, true}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("snapshots = %v, want %v", got, want)
	}
}

func TestAnchorAppearsOnceWhenItLeadsTheGroup(t *testing.T) {
	store := testsupport.NewMemoryStore(t)
	anchor := store.Put(7, testsupport.Bucket(2), "image/jpeg", false)
	store.Put(6, testsupport.Bucket(2), "image/jpeg", false)

	seq, err := newPipeline(store).Handle(context.Background(), pipeline.Trigger{Anchor: anchor})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	var last items.Snapshot
	for snap := range seq.All() {
		last = snap
	}
	if want := []int64{-1, 7, 6}; !reflect.DeepEqual(last.IDs(), want) {
		t.Fatalf("ids = %v, want %v", last.IDs(), want)
	}
}

func TestSnapshotsKeepIDsUniqueAndReadinessMonotonic(t *testing.T) {
	store := testsupport.NewMemoryStore(t)
	anchor := store.Put(10, testsupport.Bucket(4), "image/jpeg", true)
	for id := int64(6); id < 10; id++ {
		store.Put(id, testsupport.Bucket(4), "video/mp4", true)
	}

	seq, err := newPipeline(store).Handle(context.Background(), pipeline.Trigger{Anchor: anchor, ContentTypeHint: "image/jpeg"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	snaps, done := stream(seq)

	go func() {
		for id := int64(10); id >= 6; id-- {
			time.Sleep(5 * time.Millisecond)
			store.SetPending(id, false)
		}
	}()

	seen := make(map[int64]bool)
	count := 0
	for snap := range snaps {
		count++
		ids := make(map[int64]bool)
		for _, v := range describe(snap) {
			if ids[v.id] {
				t.Fatalf("duplicate id %d in %v", v.id, describe(snap))
			}
			ids[v.id] = true
			if seen[v.id] && !v.ready {
				t.Fatalf("item %d went back to not ready", v.id)
			}
			if v.ready {
				seen[v.id] = true
			}
		}
	}
	<-done
	if count < 2 {
		t.Fatalf("expected several snapshots, got %d", count)
	}
	for id := int64(6); id <= 10; id++ {
		if !seen[id] {
			t.Fatalf("item %d never became ready", id)
		}
	}
}

func TestCancellationReleasesEveryWait(t *testing.T) {
	store := testsupport.NewMemoryStore(t)
	anchor := store.Put(5, nil, "image/jpeg", false)
	store.Put(4, nil, "image/jpeg", true)
	store.Put(3, nil, "image/jpeg", true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	seq, err := newPipeline(store).Handle(ctx, pipeline.Trigger{Anchor: anchor, ExplicitIDs: []int64{5, 4, 3}})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	snaps, done := stream(seq)
	receive(t, snaps)
	receive(t, snaps)

	deadline := time.Now().Add(2 * time.Second)
	for store.ActiveSubscriptions() != 2 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if store.ActiveSubscriptions() != 2 {
		t.Fatalf("expected 2 outstanding waits, got %d", store.ActiveSubscriptions())
	}

	cancel()
	<-done
	if store.ActiveSubscriptions() != 0 {
		t.Fatalf("subscriptions leaked after cancel: %d", store.ActiveSubscriptions())
	}
}

func TestBreakingIterationReleasesEveryWait(t *testing.T) {
	store := testsupport.NewMemoryStore(t)
	anchor := store.Put(5, nil, "image/jpeg", false)
	store.Put(4, nil, "image/jpeg", true)
	store.Put(3, nil, "image/jpeg", true)

	seq, err := newPipeline(store).Handle(context.Background(), pipeline.Trigger{Anchor: anchor, ExplicitIDs: []int64{5, 4, 3}})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	count := 0
	for range seq.All() {
		count++
		if count == 2 {
			store.SetPending(4, false)
		}
		if count == 3 {
			break
		}
	}
	if store.ActiveSubscriptions() != 0 {
		t.Fatalf("subscriptions leaked after break: %d", store.ActiveSubscriptions())
	}
}

func TestSequenceIsSingleUse(t *testing.T) {
	store := testsupport.NewMemoryStore(t)
	anchor := store.Put(1, nil, "image/jpeg", false)
	seq, err := newPipeline(store).Handle(context.Background(), pipeline.Trigger{Anchor: anchor})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	for range seq.All() {
	}
	for range seq.All() {
		t.Fatal("second iteration yielded a snapshot")
	}
}

func TestHandleRejectsMalformedAnchor(t *testing.T) {
	store := testsupport.NewMemoryStore(t)
	_, err := newPipeline(store).Handle(context.Background(), pipeline.Trigger{Anchor: mediastore.Locator("media://external/images/media/latest")})
	if !errors.Is(err, readiness.ErrMalformedReference) {
		t.Fatalf("expected ErrMalformedReference, got %v", err)
	}
}

func TestSecureTriggerUsesSecureToken(t *testing.T) {
	store := testsupport.NewMemoryStore(t)
	anchor := store.Put(1, nil, "image/jpeg", false)
	p := newPipeline(store)

	tests := []struct {
		name string
		trig pipeline.Trigger
		want items.ActionToken
	}{
		{"default", pipeline.Trigger{Anchor: anchor}, "still"},
		{"secure", pipeline.Trigger{Anchor: anchor, Secure: true}, "still-secure"},
		{"explicit token", pipeline.Trigger{Anchor: anchor, Secure: true, ActionToken: "resume-42"}, "resume-42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq, err := p.Handle(context.Background(), tt.trig)
			if err != nil {
				t.Fatalf("Handle: %v", err)
			}
			for snap := range seq.All() {
				action := snap.At(0).(items.CaptureAction)
				if action.Token != tt.want {
					t.Fatalf("token = %q, want %q", action.Token, tt.want)
				}
				break
			}
		})
	}
}

type failingWaiter struct{}

func (failingWaiter) AwaitReady(context.Context, mediastore.Locator) error {
	return errors.New("watch unavailable")
}

func TestWaitFailureLeavesItemNotReady(t *testing.T) {
	store := testsupport.NewMemoryStore(t)
	anchor := store.Put(5, nil, "image/jpeg", false)
	store.Put(4, nil, "image/jpeg", true)

	logger := logging.NewNop()
	probe := readiness.NewProbe(store, logger)
	p := pipeline.New(probe, siblings.NewResolver(store, 0, logger), failingWaiter{}, pipeline.Tokens{}, logger)
	seq, err := p.Handle(context.Background(), pipeline.Trigger{Anchor: anchor, ExplicitIDs: []int64{5, 4}})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	var last items.Snapshot
	count := 0
	for snap := range seq.All() {
		last = snap
		count++
	}
	if count != 2 {
		t.Fatalf("expected stages A and B only, got %d snapshots", count)
	}
	if last.AllReady() {
		t.Fatal("failed wait promoted its item")
	}
}
