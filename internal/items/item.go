package items

import "lightbox/internal/mediastore"

// CaptureActionID is the reserved id of the capture action entry. Media ids
// are non-negative so it never collides.
const CaptureActionID int64 = -1

// ActionToken is an opaque handle that resumes the capture flow. It is passed
// through unchanged.
type ActionToken string

// Item is one displayed entry: either a CaptureAction or a Media.
type Item interface {
	ItemID() int64
	item()
}

// CaptureAction is the "take another" entry. It is always first in a snapshot.
type CaptureAction struct {
	Token ActionToken
}

func (CaptureAction) ItemID() int64 { return CaptureActionID }
func (CaptureAction) item()         {}

// Media is a stored media item.
type Media struct {
	ID      int64
	Locator mediastore.Locator
	// MimeType is empty when the content type is unknown.
	MimeType string
	Ready    bool
}

func (m Media) ItemID() int64 { return m.ID }
func (Media) item()           {}

// WithReady returns a ready copy of m.
func (m Media) WithReady() Media {
	m.Ready = true
	return m
}

// SameIdentity reports whether a and b are the same logical entry.
func SameIdentity(a, b Item) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.ItemID() == b.ItemID()
}

// SameContent reports whether the entry needs no redraw between a and b.
// Media compare by readiness; anything else compares by id.
func SameContent(a, b Item) bool {
	am, aok := a.(Media)
	bm, bok := b.(Media)
	if aok && bok {
		return am.Ready == bm.Ready
	}
	return SameIdentity(a, b)
}
