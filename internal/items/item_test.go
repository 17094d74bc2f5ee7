package items_test

import (
	"testing"

	"lightbox/internal/items"
	"lightbox/internal/mediastore"
)

func media(id int64, ready bool) items.Media {
	return items.Media{ID: id, Locator: mediastore.LocatorFor(id, "image/jpeg"), MimeType: "image/jpeg", Ready: ready}
}

func TestSameIdentityAndContent(t *testing.T) {
	capture := items.CaptureAction{Token: "a"}
	otherCapture := items.CaptureAction{Token: "b"}

	tests := []struct {
		name         string
		a, b         items.Item
		wantIdentity bool
		wantContent  bool
	}{
		{"same media same readiness", media(5, false), media(5, false), true, true},
		{"same media readiness changed", media(5, false), media(5, true), true, false},
		{"different media", media(5, true), media(6, true), false, true},
		{"capture actions", capture, otherCapture, true, true},
		{"capture versus media", capture, media(5, true), false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := items.SameIdentity(tt.a, tt.b); got != tt.wantIdentity {
				t.Errorf("SameIdentity = %v, want %v", got, tt.wantIdentity)
			}
			if got := items.SameContent(tt.a, tt.b); got != tt.wantContent {
				t.Errorf("SameContent = %v, want %v", got, tt.wantContent)
			}
		})
	}
}

func TestWithReadyCopies(t *testing.T) {
	m := media(3, false)
	ready := m.WithReady()
	if m.Ready {
		t.Fatal("WithReady mutated the receiver")
	}
	if !ready.Ready || ready.ID != 3 {
		t.Fatalf("unexpected ready copy %+v", ready)
	}
}

func TestSnapshotReplaceIsCopyOnWrite(t *testing.T) {
	snap := items.NewSnapshot(items.CaptureAction{}, media(5, true), media(4, false))
	next := snap.Replace(media(4, false).WithReady())

	if snap.AllReady() {
		t.Fatal("original snapshot changed")
	}
	if !next.AllReady() {
		t.Fatal("replacement did not land")
	}
	if got := next.IDs(); len(got) != 3 || got[0] != items.CaptureActionID || got[1] != 5 || got[2] != 4 {
		t.Fatalf("unexpected ids %v", got)
	}
	if same := snap.Replace(media(99, true)); same.Len() != 3 || same.Contains(99) {
		t.Fatal("replacing an absent id should be a no-op")
	}
}

func TestSnapshotFilterAndNotReady(t *testing.T) {
	snap := items.NewSnapshot(items.CaptureAction{}, media(5, true), media(4, false), media(3, false))
	filtered := snap.Filter(func(it items.Item) bool { return it.ItemID() != 4 })
	if filtered.Contains(4) || filtered.Len() != 3 {
		t.Fatalf("filter kept %v", filtered.IDs())
	}
	pending := snap.NotReady()
	if len(pending) != 2 || pending[0].ID != 4 || pending[1].ID != 3 {
		t.Fatalf("NotReady = %+v", pending)
	}
	list := snap.Items()
	list[0] = media(100, true)
	if snap.Contains(100) {
		t.Fatal("Items exposed internal storage")
	}
}
