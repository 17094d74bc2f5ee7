package items

// ChangeKind classifies one entry of a Diff.
type ChangeKind int

const (
	Removed ChangeKind = iota
	Inserted
	Changed
	Moved
)

func (k ChangeKind) String() string {
	switch k {
	case Removed:
		return "removed"
	case Inserted:
		return "inserted"
	case Changed:
		return "changed"
	case Moved:
		return "moved"
	default:
		return "unknown"
	}
}

// Change is one update a client applies to go from the old snapshot to the
// new one. From is the index in the old snapshot (-1 for inserts) and To the
// index in the new snapshot (-1 for removals).
type Change struct {
	Kind ChangeKind
	ID   int64
	From int
	To   int
}

// Diff lists the changes between old and next using SameIdentity to pair
// entries and SameContent to decide whether a paired entry changed. Entries
// whose relative order differs from the longest in-order run are reported as
// moved.
func Diff(old, next Snapshot) []Change {
	oldIndex := make(map[int64]int, old.Len())
	for i, it := range old.items {
		oldIndex[it.ItemID()] = i
	}
	newIndex := make(map[int64]int, next.Len())
	for i, it := range next.items {
		newIndex[it.ItemID()] = i
	}

	var changes []Change
	for i, it := range old.items {
		if _, ok := newIndex[it.ItemID()]; !ok {
			changes = append(changes, Change{Kind: Removed, ID: it.ItemID(), From: i, To: -1})
		}
	}

	// Old positions of surviving entries in new order; entries on the longest
	// increasing run stay put, the rest moved.
	var (
		survivors []int
		positions []int
	)
	for j, it := range next.items {
		if i, ok := oldIndex[it.ItemID()]; ok {
			survivors = append(survivors, j)
			positions = append(positions, i)
		}
	}
	stable := longestIncreasing(positions)

	for j, it := range next.items {
		if _, ok := oldIndex[it.ItemID()]; !ok {
			changes = append(changes, Change{Kind: Inserted, ID: it.ItemID(), From: -1, To: j})
		}
	}
	for k, j := range survivors {
		it := next.items[j]
		i := positions[k]
		if !stable[k] {
			changes = append(changes, Change{Kind: Moved, ID: it.ItemID(), From: i, To: j})
		}
		if !SameContent(old.items[i], it) {
			changes = append(changes, Change{Kind: Changed, ID: it.ItemID(), From: i, To: j})
		}
	}
	return changes
}

// longestIncreasing marks the members of one longest strictly increasing
// subsequence of seq.
func longestIncreasing(seq []int) []bool {
	marked := make([]bool, len(seq))
	if len(seq) == 0 {
		return marked
	}
	tails := make([]int, 0, len(seq))
	prev := make([]int, len(seq))
	for i, v := range seq {
		lo, hi := 0, len(tails)
		for lo < hi {
			mid := (lo + hi) / 2
			if seq[tails[mid]] < v {
				lo = mid + 1
			} else {
				hi = mid
			}
		}
		if lo > 0 {
			prev[i] = tails[lo-1]
		} else {
			prev[i] = -1
		}
		if lo == len(tails) {
			tails = append(tails, i)
		} else {
			tails[lo] = i
		}
	}
	for i := tails[len(tails)-1]; i >= 0; i = prev[i] {
		marked[i] = true
	}
	return marked
}
