package items

// Snapshot is an immutable ordered list of items. Modifying operations return
// a new Snapshot and leave the receiver untouched.
type Snapshot struct {
	items []Item
}

// NewSnapshot copies list into a snapshot.
func NewSnapshot(list ...Item) Snapshot {
	if len(list) == 0 {
		return Snapshot{}
	}
	copied := make([]Item, len(list))
	copy(copied, list)
	return Snapshot{items: copied}
}

// Items returns a copy of the entries in display order.
func (s Snapshot) Items() []Item {
	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}

// At returns the entry at index i.
func (s Snapshot) At(i int) Item { return s.items[i] }

// Len returns the number of entries.
func (s Snapshot) Len() int { return len(s.items) }

// IDs returns the entry ids in display order.
func (s Snapshot) IDs() []int64 {
	ids := make([]int64, len(s.items))
	for i, it := range s.items {
		ids[i] = it.ItemID()
	}
	return ids
}

// Contains reports whether an entry with id is present.
func (s Snapshot) Contains(id int64) bool {
	return s.index(id) >= 0
}

func (s Snapshot) index(id int64) int {
	for i, it := range s.items {
		if it.ItemID() == id {
			return i
		}
	}
	return -1
}

// Replace returns a snapshot with the entry sharing item's id swapped for
// item. The receiver is returned unchanged when no entry matches.
func (s Snapshot) Replace(item Item) Snapshot {
	idx := s.index(item.ItemID())
	if idx < 0 {
		return s
	}
	out := s.Items()
	out[idx] = item
	return Snapshot{items: out}
}

// Filter returns the entries for which keep reports true.
func (s Snapshot) Filter(keep func(Item) bool) Snapshot {
	out := make([]Item, 0, len(s.items))
	for _, it := range s.items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return Snapshot{items: out}
}

// Media returns the media entries in display order.
func (s Snapshot) Media() []Media {
	out := make([]Media, 0, len(s.items))
	for _, it := range s.items {
		if m, ok := it.(Media); ok {
			out = append(out, m)
		}
	}
	return out
}

// NotReady returns the media entries still pending, in display order.
func (s Snapshot) NotReady() []Media {
	var out []Media
	for _, m := range s.Media() {
		if !m.Ready {
			out = append(out, m)
		}
	}
	return out
}

// AllReady reports whether every media entry is ready.
func (s Snapshot) AllReady() bool {
	return len(s.NotReady()) == 0
}
