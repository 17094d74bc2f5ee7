package ipc_test

import (
	"context"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"lightbox/internal/daemon"
	"lightbox/internal/ipc"
	"lightbox/internal/items"
	"lightbox/internal/logging"
	"lightbox/internal/mediastore"
	"lightbox/internal/testsupport"
)

func startServer(t *testing.T) (*ipc.Client, *mediastore.Store, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	d, err := daemon.New(cfg, store, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(d.Stop)

	socket := cfg.Paths.SocketPath
	srv, err := ipc.NewServer(ctx, socket, d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	client, err := ipc.DialWait(ctx, socket, 2*time.Second)
	if err != nil {
		t.Fatalf("ipc.DialWait: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client, store, socket
}

func TestIPCReviewRoundTrip(t *testing.T) {
	client, store, _ := startServer(t)
	ctx := context.Background()
	anchor := testsupport.NewMedia(t, store, 3, "image/jpeg", false)
	sibling := testsupport.NewMedia(t, store, 3, "image/jpeg", true)

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running || status.PID == 0 {
		t.Fatalf("unexpected status %+v", status)
	}

	open, err := client.OpenReview(ipc.OpenReviewRequest{
		Anchor:      string(anchor.Locator()),
		ExplicitIDs: []int64{anchor.ID, sibling.ID},
		ContentType: "image/jpeg",
		Token:       "resume-7",
	})
	if err != nil {
		t.Fatalf("OpenReview: %v", err)
	}
	if open.SessionID == "" || open.AnchorID != anchor.ID {
		t.Fatalf("unexpected open response %+v", open)
	}

	var (
		after uint64
		snap  items.Snapshot
	)
	for !snap.Contains(sibling.ID) {
		resp, err := client.NextSnapshot(ipc.NextSnapshotRequest{SessionID: open.SessionID, After: after, WaitMillis: 1000})
		if err != nil {
			t.Fatalf("NextSnapshot: %v", err)
		}
		if resp.TimedOut {
			t.Fatal("timed out waiting for stage B")
		}
		after = resp.Seq
		snap = ipc.DecodeSnapshot(resp.Items)
	}
	if want := []int64{items.CaptureActionID, anchor.ID, sibling.ID}; !reflect.DeepEqual(snap.IDs(), want) {
		t.Fatalf("ids = %v, want %v", snap.IDs(), want)
	}
	if action := snap.At(0).(items.CaptureAction); action.Token != "resume-7" {
		t.Fatalf("token = %q", action.Token)
	}

	resp, err := client.NextSnapshot(ipc.NextSnapshotRequest{SessionID: open.SessionID, After: after, WaitMillis: 50})
	if err != nil {
		t.Fatalf("NextSnapshot: %v", err)
	}
	if !resp.TimedOut || resp.Seq != after {
		t.Fatalf("expected a timed out poll, got %+v", resp)
	}

	if _, err := client.Delete(anchor.ID, false); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	resp, err = client.NextSnapshot(ipc.NextSnapshotRequest{SessionID: open.SessionID, After: after, WaitMillis: 1000})
	if err != nil {
		t.Fatalf("NextSnapshot: %v", err)
	}
	after = resp.Seq
	if ipc.DecodeSnapshot(resp.Items).Contains(anchor.ID) {
		t.Fatal("deleted item still returned")
	}

	if err := store.MarkReady(ctx, sibling.ID); err != nil {
		t.Fatalf("MarkReady: %v", err)
	}
	done := false
	for !done {
		resp, err := client.NextSnapshot(ipc.NextSnapshotRequest{SessionID: open.SessionID, After: after, WaitMillis: 2000})
		if err != nil {
			t.Fatalf("NextSnapshot: %v", err)
		}
		if resp.TimedOut {
			t.Fatal("timed out waiting for readiness")
		}
		after, done = resp.Seq, resp.Done
		snap = ipc.DecodeSnapshot(resp.Items)
	}
	if want := []int64{items.CaptureActionID, sibling.ID}; !reflect.DeepEqual(snap.IDs(), want) {
		t.Fatalf("final ids = %v, want %v", snap.IDs(), want)
	}
	if !snap.AllReady() {
		t.Fatal("final snapshot not ready")
	}

	// Delivering the final update releases the session.
	if _, err := client.CloseReview(open.SessionID); err == nil {
		t.Fatal("expected a finished session to be gone")
	}
	status, err = client.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.OpenSessions != 0 || status.ActiveSubscriptions != 0 {
		t.Fatalf("finished review still held: %d session(s), %d subscription(s)", status.OpenSessions, status.ActiveSubscriptions)
	}
}

func TestIPCCloseReviewTwice(t *testing.T) {
	client, store, _ := startServer(t)
	anchor := testsupport.NewMedia(t, store, 2, "image/jpeg", true)

	open, err := client.OpenReview(ipc.OpenReviewRequest{Anchor: string(anchor.Locator())})
	if err != nil {
		t.Fatalf("OpenReview: %v", err)
	}
	closed, err := client.CloseReview(open.SessionID)
	if err != nil || !closed.Closed {
		t.Fatalf("CloseReview = %+v, %v", closed, err)
	}
	if _, err := client.CloseReview(open.SessionID); err == nil {
		t.Fatal("closing twice should report an unknown session")
	}
}

func TestIPCDisconnectReleasesSessions(t *testing.T) {
	client, store, socket := startServer(t)
	anchor := testsupport.NewMedia(t, store, 4, "image/jpeg", false)
	pending := testsupport.NewMedia(t, store, 4, "image/jpeg", true)

	other, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	open, err := other.OpenReview(ipc.OpenReviewRequest{
		Anchor:      string(anchor.Locator()),
		ExplicitIDs: []int64{anchor.ID, pending.ID},
	})
	if err != nil {
		t.Fatalf("OpenReview: %v", err)
	}

	// Wait until the pending item is being watched, then hang up without
	// closing the review.
	waitStatus(t, client, func(s *ipc.StatusResponse) bool { return s.ActiveSubscriptions == 1 })
	if err := other.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	waitStatus(t, client, func(s *ipc.StatusResponse) bool {
		return s.OpenSessions == 0 && s.ActiveSubscriptions == 0
	})
	if _, err := client.NextSnapshot(ipc.NextSnapshotRequest{SessionID: open.SessionID, WaitMillis: 50}); err == nil {
		t.Fatal("expected the abandoned session to be gone")
	}
}

func TestIPCDisconnectDuringLongPoll(t *testing.T) {
	client, store, socket := startServer(t)
	anchor := testsupport.NewMedia(t, store, 6, "image/jpeg", true)

	other, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	open, err := other.OpenReview(ipc.OpenReviewRequest{Anchor: string(anchor.Locator())})
	if err != nil {
		t.Fatalf("OpenReview: %v", err)
	}
	first, err := other.NextSnapshot(ipc.NextSnapshotRequest{SessionID: open.SessionID, WaitMillis: 1000})
	if err != nil {
		t.Fatalf("NextSnapshot: %v", err)
	}

	// A long poll with nothing new is outstanding when the client goes away.
	polled := make(chan struct{})
	go func() {
		defer close(polled)
		_, _ = other.NextSnapshot(ipc.NextSnapshotRequest{SessionID: open.SessionID, After: first.Seq + 100, WaitMillis: 60000})
	}()
	time.Sleep(100 * time.Millisecond)
	if err := other.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	<-polled

	waitStatus(t, client, func(s *ipc.StatusResponse) bool {
		return s.OpenSessions == 0 && s.ActiveSubscriptions == 0
	})
}

func waitStatus(t *testing.T, client *ipc.Client, ok func(*ipc.StatusResponse) bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		status, err := client.Status()
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if ok(status) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("status never settled: %d session(s), %d subscription(s)", status.OpenSessions, status.ActiveSubscriptions)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestIPCListMediaAndErrors(t *testing.T) {
	client, store, _ := startServer(t)
	first := testsupport.NewMedia(t, store, 1, "image/jpeg", false)
	second := testsupport.NewMedia(t, store, 1, "video/mp4", true)

	list, err := client.ListMedia(0)
	if err != nil {
		t.Fatalf("ListMedia: %v", err)
	}
	if len(list.Items) != 2 || list.Items[0].ID != second.ID || list.Items[1].ID != first.ID {
		t.Fatalf("unexpected list %+v", list.Items)
	}
	if list.Items[0].Locator != string(mediastore.LocatorFor(second.ID, "video/mp4")) || !list.Items[0].Pending {
		t.Fatalf("unexpected record %+v", list.Items[0])
	}

	if _, err := client.OpenReview(ipc.OpenReviewRequest{Anchor: "media://external/images/media/"}); err == nil {
		t.Fatal("expected malformed anchor error")
	}
	if _, err := client.ResumeCapture("still"); err == nil {
		t.Fatal("expected error without a capture command")
	}
}

func TestDialWaitGivesUpWithoutDaemon(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "missing.sock")
	start := time.Now()
	if _, err := ipc.DialWait(context.Background(), socket, 200*time.Millisecond); err == nil {
		t.Fatal("expected dial failure")
	}
	if time.Since(start) > 3*time.Second {
		t.Fatal("DialWait exceeded its budget")
	}
	if _, err := ipc.Dial(socket); !ipc.IsDaemonDown(err) {
		t.Fatalf("expected daemon-down error, got %v", err)
	}
}

func TestSnapshotEncoding(t *testing.T) {
	snap := items.NewSnapshot(
		items.CaptureAction{Token: "t"},
		items.Media{ID: 4, Locator: mediastore.LocatorFor(4, ""), Ready: false},
	)
	wire := ipc.EncodeSnapshot(snap)
	if wire[0].Kind != ipc.KindCapture || wire[1].Kind != ipc.KindMedia || wire[1].MimeType != "" {
		t.Fatalf("unexpected wire items %+v", wire)
	}
	back := ipc.DecodeSnapshot(append(wire, ipc.SnapshotItem{Kind: "bogus", ID: 99}))
	if !reflect.DeepEqual(back.IDs(), snap.IDs()) {
		t.Fatalf("ids = %v", back.IDs())
	}
}
