package testsupport

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"lightbox/internal/logging"
	"lightbox/internal/mediastore"
)

// ErrInjected is returned by MemoryStore queries configured to fail.
var ErrInjected = errors.New("injected store failure")

// MemoryStore is an in-memory media store with the query and subscription
// surface of mediastore.Store. Failures and latency can be injected per
// operation.
type MemoryStore struct {
	hub *mediastore.Hub

	mu      sync.Mutex
	records map[int64]mediastore.Record
	nextID  int64

	failLookup    map[int64]bool
	failPending   bool
	failGroupKey  bool
	failGroup     bool
	failSubscribe bool
	readyOnSub    map[int64]bool
	groupGate     chan struct{}

	pendingCalls atomic.Int64
	groupCalls   atomic.Int64
	lookupCalls  atomic.Int64
}

// NewMemoryStore creates an empty store and registers Close with t.Cleanup.
func NewMemoryStore(t testing.TB) *MemoryStore {
	t.Helper()
	m := &MemoryStore{
		hub:        mediastore.NewHub(logging.NewNop()),
		records:    make(map[int64]mediastore.Record),
		failLookup: make(map[int64]bool),
		readyOnSub: make(map[int64]bool),
	}
	t.Cleanup(m.Close)
	return m
}

// Close stops notification delivery.
func (m *MemoryStore) Close() { m.hub.Close() }

// Put stores a record with the given attributes and returns its locator.
// A nil bucket leaves the record ungrouped.
func (m *MemoryStore) Put(id int64, bucket *int64, mimeType string, pending bool) mediastore.Locator {
	m.mu.Lock()
	rec := mediastore.Record{ID: id, MimeType: mimeType, Pending: pending}
	if bucket != nil {
		rec.BucketID = *bucket
		rec.HasBucket = true
	}
	m.records[id] = rec
	if id > m.nextID {
		m.nextID = id
	}
	m.mu.Unlock()
	return rec.Locator()
}

// SetPending changes the pending flag of id and notifies subscribers.
func (m *MemoryStore) SetPending(id int64, pending bool) {
	m.mu.Lock()
	rec, ok := m.records[id]
	if ok {
		rec.Pending = pending
		m.records[id] = rec
	}
	m.mu.Unlock()
	m.hub.Notify(id)
}

// Remove deletes id and notifies subscribers.
func (m *MemoryStore) Remove(id int64) {
	m.mu.Lock()
	delete(m.records, id)
	m.mu.Unlock()
	m.hub.Notify(id)
}

// Touch notifies subscribers of id without changing it.
func (m *MemoryStore) Touch(id int64) { m.hub.Notify(id) }

// FailLookup makes Lookup of id return ErrInjected.
func (m *MemoryStore) FailLookup(id int64) {
	m.mu.Lock()
	m.failLookup[id] = true
	m.mu.Unlock()
}

// FailPendingState makes every PendingState call return ErrInjected.
func (m *MemoryStore) FailPendingState(fail bool) {
	m.mu.Lock()
	m.failPending = fail
	m.mu.Unlock()
}

// FailGroupKey makes GroupKey return ErrInjected.
func (m *MemoryStore) FailGroupKey() {
	m.mu.Lock()
	m.failGroupKey = true
	m.mu.Unlock()
}

// FailGroup makes Group return ErrInjected.
func (m *MemoryStore) FailGroup() {
	m.mu.Lock()
	m.failGroup = true
	m.mu.Unlock()
}

// FailSubscribe makes Subscribe return ErrInjected.
func (m *MemoryStore) FailSubscribe() {
	m.mu.Lock()
	m.failSubscribe = true
	m.mu.Unlock()
}

// GateGroup blocks Group until the returned release function is called.
func (m *MemoryStore) GateGroup() (release func()) {
	gate := make(chan struct{})
	m.mu.Lock()
	m.groupGate = gate
	m.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// PendingStateCalls returns how many PendingState queries ran.
func (m *MemoryStore) PendingStateCalls() int64 { return m.pendingCalls.Load() }

// GroupCalls returns how many Group queries ran.
func (m *MemoryStore) GroupCalls() int64 { return m.groupCalls.Load() }

// LookupCalls returns how many Lookup queries ran.
func (m *MemoryStore) LookupCalls() int64 { return m.lookupCalls.Load() }

// ActiveSubscriptions returns the number of live subscriptions.
func (m *MemoryStore) ActiveSubscriptions() int { return m.hub.Active() }

// Lookup implements the catalog lookup.
func (m *MemoryStore) Lookup(_ context.Context, id int64) (mediastore.Record, bool, error) {
	m.lookupCalls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failLookup[id] {
		return mediastore.Record{}, false, ErrInjected
	}
	rec, ok := m.records[id]
	return rec, ok, nil
}

func (m *MemoryStore) resolve(loc mediastore.Locator) (mediastore.Record, bool) {
	id, ok := mediastore.ParseID(loc)
	if !ok {
		return mediastore.Record{}, false
	}
	rec, ok := m.records[id]
	if !ok || !loc.Collection().Accepts(rec.MimeType) {
		return mediastore.Record{}, false
	}
	return rec, true
}

// PendingState implements the readiness query.
func (m *MemoryStore) PendingState(_ context.Context, loc mediastore.Locator) (bool, bool, error) {
	m.pendingCalls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPending {
		return false, false, ErrInjected
	}
	rec, ok := m.resolve(loc)
	if !ok {
		return false, false, nil
	}
	return rec.Pending, true, nil
}

// GroupKey implements the bucket lookup.
func (m *MemoryStore) GroupKey(_ context.Context, loc mediastore.Locator) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGroupKey {
		return 0, false, ErrInjected
	}
	rec, ok := m.resolve(loc)
	if !ok || !rec.HasBucket {
		return 0, false, nil
	}
	return rec.BucketID, true, nil
}

// Group implements the bucket query: newest id first, pending included.
func (m *MemoryStore) Group(ctx context.Context, bucket int64, limit int) ([]mediastore.Record, error) {
	m.groupCalls.Add(1)
	m.mu.Lock()
	gate := m.groupGate
	m.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGroup {
		return nil, ErrInjected
	}
	var out []mediastore.Record
	for _, rec := range m.records {
		if rec.HasBucket && rec.BucketID == bucket {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Subscribe implements change subscriptions.
func (m *MemoryStore) Subscribe(loc mediastore.Locator, fn func()) (*mediastore.Subscription, error) {
	id, ok := mediastore.ParseID(loc)
	m.mu.Lock()
	fail := m.failSubscribe
	if ok && m.readyOnSub[id] {
		delete(m.readyOnSub, id)
		if rec, found := m.records[id]; found {
			rec.Pending = false
			m.records[id] = rec
		}
	}
	m.mu.Unlock()
	if fail || !ok {
		return nil, ErrInjected
	}
	return m.hub.Subscribe(id, fn), nil
}

// ReadyOnSubscribe makes the next Subscribe for id finish the item first
// without sending a change notification.
func (m *MemoryStore) ReadyOnSubscribe(id int64) {
	m.mu.Lock()
	m.readyOnSub[id] = true
	m.mu.Unlock()
}

// Bucket returns a pointer to v for Put.
func Bucket(v int64) *int64 { return &v }
