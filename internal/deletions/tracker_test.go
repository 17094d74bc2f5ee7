package deletions_test

import (
	"sync"
	"testing"

	"lightbox/internal/deletions"
	"lightbox/internal/items"
)

func TestTrackerMarkAndFilter(t *testing.T) {
	tracker := deletions.NewTracker()
	snap := items.NewSnapshot(items.CaptureAction{}, items.Media{ID: 5, Ready: true}, items.Media{ID: 4})

	if got := tracker.Filter(snap); got.Len() != 3 {
		t.Fatalf("empty tracker filtered %v", got.IDs())
	}

	tracker.MarkDeleted(4)
	tracker.MarkDeleted(4)
	if !tracker.IsDeleted(4) || tracker.IsDeleted(5) || tracker.Len() != 1 {
		t.Fatalf("unexpected tracker state: len=%d", tracker.Len())
	}

	got := tracker.Filter(snap)
	if got.Contains(4) || !got.Contains(5) || !got.Contains(items.CaptureActionID) {
		t.Fatalf("filtered ids = %v", got.IDs())
	}
	if !snap.Contains(4) {
		t.Fatal("Filter modified its input")
	}
}

func TestTrackerCaptureActionSurvivesReservedID(t *testing.T) {
	tracker := deletions.NewTracker()
	tracker.MarkDeleted(items.CaptureActionID)
	got := tracker.Filter(items.NewSnapshot(items.CaptureAction{}))
	if got.Len() != 1 {
		t.Fatal("capture action was filtered")
	}
}

func TestTrackerConcurrentUse(t *testing.T) {
	tracker := deletions.NewTracker()
	snap := items.NewSnapshot(items.Media{ID: 1}, items.Media{ID: 2})

	var wg sync.WaitGroup
	for i := int64(0); i < 50; i++ {
		wg.Add(2)
		go func(id int64) {
			defer wg.Done()
			tracker.MarkDeleted(id)
		}(i)
		go func() {
			defer wg.Done()
			_ = tracker.Filter(snap)
		}()
	}
	wg.Wait()
	if tracker.Len() != 50 {
		t.Fatalf("Len = %d, want 50", tracker.Len())
	}
}
