package deletions

import (
	"sync"

	"lightbox/internal/items"
)

// Tracker is an append-only set of deleted ids shared by every review
// session of a process. It is safe for concurrent use.
type Tracker struct {
	mu  sync.RWMutex
	ids map[int64]struct{}
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{ids: make(map[int64]struct{})}
}

// MarkDeleted records id. Marking twice is a no-op.
func (t *Tracker) MarkDeleted(id int64) {
	t.mu.Lock()
	t.ids[id] = struct{}{}
	t.mu.Unlock()
}

// IsDeleted reports whether id was marked.
func (t *Tracker) IsDeleted(id int64) bool {
	t.mu.RLock()
	_, ok := t.ids[id]
	t.mu.RUnlock()
	return ok
}

// Len returns the number of marked ids.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.ids)
}

// Filter drops deleted media from snap. The capture action is never dropped.
func (t *Tracker) Filter(snap items.Snapshot) items.Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.ids) == 0 {
		return snap
	}
	return snap.Filter(func(it items.Item) bool {
		if _, ok := it.(items.Media); !ok {
			return true
		}
		_, deleted := t.ids[it.ItemID()]
		return !deleted
	})
}
