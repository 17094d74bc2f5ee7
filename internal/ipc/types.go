package ipc

import (
	"time"

	"lightbox/internal/items"
	"lightbox/internal/mediastore"
	"lightbox/internal/pipeline"
)

// Item kinds on the wire.
const (
	KindCapture = "capture"
	KindMedia   = "media"
)

// SnapshotItem is one snapshot entry on the wire.
type SnapshotItem struct {
	Kind     string `json:"kind"`
	ID       int64  `json:"id"`
	Token    string `json:"token,omitempty"`
	Locator  string `json:"locator,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Ready    bool   `json:"ready"`
}

// MediaRecord is a stored media row on the wire.
type MediaRecord struct {
	ID          int64     `json:"id"`
	BucketID    *int64    `json:"bucket_id,omitempty"`
	DisplayName string    `json:"display_name"`
	Path        string    `json:"path"`
	MimeType    string    `json:"mime_type"`
	Pending     bool      `json:"pending"`
	Locator     string    `json:"locator"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents daemon status information.
type StatusResponse struct {
	Running             bool      `json:"running"`
	PID                 int       `json:"pid"`
	StartedAt           time.Time `json:"started_at"`
	DatabasePath        string    `json:"database_path"`
	LockPath            string    `json:"lock_path"`
	CaptureDir          string    `json:"capture_dir"`
	IngestEnabled       bool      `json:"ingest_enabled"`
	DeviceMonitor       bool      `json:"device_monitor"`
	OpenSessions        int       `json:"open_sessions"`
	ActiveSubscriptions int       `json:"active_subscriptions"`
	DeletedItems        int       `json:"deleted_items"`
}

// OpenReviewRequest starts a review session. A null ExplicitIDs selects
// sibling discovery; an empty list reviews the anchor alone.
type OpenReviewRequest struct {
	Anchor      string  `json:"anchor"`
	ExplicitIDs []int64 `json:"explicit_ids"`
	ContentType string  `json:"content_type"`
	Token       string  `json:"token"`
	Secure      bool    `json:"secure"`
}

// Trigger converts the request to a pipeline trigger.
func (r OpenReviewRequest) Trigger() pipeline.Trigger {
	return pipeline.Trigger{
		Anchor:          mediastore.Locator(r.Anchor),
		ExplicitIDs:     r.ExplicitIDs,
		ContentTypeHint: r.ContentType,
		ActionToken:     items.ActionToken(r.Token),
		Secure:          r.Secure,
	}
}

// OpenReviewResponse identifies the new session.
type OpenReviewResponse struct {
	SessionID string `json:"session_id"`
	AnchorID  int64  `json:"anchor_id"`
}

// NextSnapshotRequest long-polls for an update newer than After.
type NextSnapshotRequest struct {
	SessionID  string `json:"session_id"`
	After      uint64 `json:"after"`
	WaitMillis int    `json:"wait_ms"`
}

// NextSnapshotResponse carries the update. TimedOut reports that the wait
// window closed without a newer update; Items is then empty.
type NextSnapshotResponse struct {
	Seq      uint64         `json:"seq"`
	Items    []SnapshotItem `json:"items"`
	Done     bool           `json:"done"`
	TimedOut bool           `json:"timed_out"`
}

// CloseReviewRequest ends a session.
type CloseReviewRequest struct {
	SessionID string `json:"session_id"`
}

// CloseReviewResponse reports the outcome.
type CloseReviewResponse struct {
	Closed bool `json:"closed"`
}

// DeleteRequest hides an item from every review, optionally removing it.
type DeleteRequest struct {
	ID    int64 `json:"id"`
	Purge bool  `json:"purge"`
}

// DeleteResponse reports whether a record was removed.
type DeleteResponse struct {
	Removed bool `json:"removed"`
}

// ResumeCaptureRequest hands a capture token to the daemon.
type ResumeCaptureRequest struct {
	Token string `json:"token"`
}

// ResumeCaptureResponse reports the outcome.
type ResumeCaptureResponse struct {
	Launched bool `json:"launched"`
}

// ListMediaRequest lists the newest records.
type ListMediaRequest struct {
	Limit int `json:"limit"`
}

// ListMediaResponse contains media rows.
type ListMediaResponse struct {
	Items []MediaRecord `json:"items"`
}

// EncodeSnapshot converts a snapshot to wire items.
func EncodeSnapshot(snap items.Snapshot) []SnapshotItem {
	out := make([]SnapshotItem, 0, snap.Len())
	for _, it := range snap.Items() {
		switch v := it.(type) {
		case items.CaptureAction:
			out = append(out, SnapshotItem{Kind: KindCapture, ID: v.ItemID(), Token: string(v.Token), Ready: true})
		case items.Media:
			out = append(out, SnapshotItem{
				Kind:     KindMedia,
				ID:       v.ID,
				Locator:  string(v.Locator),
				MimeType: v.MimeType,
				Ready:    v.Ready,
			})
		}
	}
	return out
}

// DecodeSnapshot rebuilds a snapshot from wire items. Unknown kinds are skipped.
func DecodeSnapshot(list []SnapshotItem) items.Snapshot {
	out := make([]items.Item, 0, len(list))
	for _, it := range list {
		switch it.Kind {
		case KindCapture:
			out = append(out, items.CaptureAction{Token: items.ActionToken(it.Token)})
		case KindMedia:
			out = append(out, items.Media{
				ID:       it.ID,
				Locator:  mediastore.Locator(it.Locator),
				MimeType: it.MimeType,
				Ready:    it.Ready,
			})
		}
	}
	return items.NewSnapshot(out...)
}

// EncodeRecord converts a media row to its wire form.
func EncodeRecord(rec mediastore.Record) MediaRecord {
	out := MediaRecord{
		ID:          rec.ID,
		DisplayName: rec.DisplayName,
		Path:        rec.Path,
		MimeType:    rec.MimeType,
		Pending:     rec.Pending,
		Locator:     string(rec.Locator()),
		UpdatedAt:   rec.UpdatedAt,
	}
	if rec.HasBucket {
		bucket := rec.BucketID
		out.BucketID = &bucket
	}
	return out
}
