package siblings

import "lightbox/internal/items"

// MergeAnchor combines the anchor shown first with the resolved siblings.
// When the siblings already include the anchor's id the sibling order wins
// and the anchor is not repeated; otherwise the anchor leads. The merged
// anchor entry is ready if either side saw it ready, and no id appears twice.
func MergeAnchor(anchor items.Media, resolved []items.Media) []items.Media {
	out := make([]items.Media, 0, len(resolved)+1)
	seen := make(map[int64]struct{}, len(resolved)+1)

	containsAnchor := false
	for _, m := range resolved {
		if m.ID == anchor.ID {
			containsAnchor = true
			break
		}
	}
	if !containsAnchor {
		out = append(out, anchor)
		seen[anchor.ID] = struct{}{}
	}

	for _, m := range resolved {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		if m.ID == anchor.ID && anchor.Ready {
			m = m.WithReady()
		}
		out = append(out, m)
	}
	return out
}
