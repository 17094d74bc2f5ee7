package mediastore

import (
	"log/slog"
	"sync"

	"lightbox/internal/logging"
)

// Hub fans record change notifications out to per-id subscribers. Callbacks
// are invoked one at a time on a single delivery goroutine, so a callback must
// return quickly and must not query the store for other records.
type Hub struct {
	logger *slog.Logger

	mu      sync.Mutex
	nextKey uint64
	subs    map[int64]map[uint64]func()
	pending map[int64]struct{}
	closed  bool

	wake chan struct{}
	done chan struct{}
}

// Subscription is a live registration on a Hub. Unsubscribe is idempotent and
// safe to call from any goroutine, including from inside the callback.
type Subscription struct {
	hub  *Hub
	id   int64
	key  uint64
	once sync.Once
}

// NewHub starts a hub with its delivery goroutine. Close stops it.
func NewHub(logger *slog.Logger) *Hub {
	h := &Hub{
		logger:  logging.NewComponentLogger(logger, "notify-hub"),
		subs:    make(map[int64]map[uint64]func()),
		pending: make(map[int64]struct{}),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go h.deliver()
	return h
}

// Subscribe registers fn for changes to record id.
func (h *Hub) Subscribe(id int64, fn func()) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextKey++
	key := h.nextKey
	byKey, ok := h.subs[id]
	if !ok {
		byKey = make(map[uint64]func())
		h.subs[id] = byKey
	}
	byKey[key] = fn
	return &Subscription{hub: h, id: id, key: key}
}

// Unsubscribe releases the registration.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() {
		s.hub.remove(s.id, s.key)
	})
}

func (h *Hub) remove(id int64, key uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	byKey, ok := h.subs[id]
	if !ok {
		return
	}
	delete(byKey, key)
	if len(byKey) == 0 {
		delete(h.subs, id)
	}
}

// Notify queues a change notification for each id. It never blocks on
// subscribers; repeated notifications for the same id coalesce until delivered.
func (h *Hub) Notify(ids ...int64) {
	if len(ids) == 0 {
		return
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	for _, id := range ids {
		if _, ok := h.subs[id]; ok {
			h.pending[id] = struct{}{}
		}
	}
	if len(h.pending) > 0 {
		select {
		case h.wake <- struct{}{}:
		default:
		}
	}
	h.mu.Unlock()
}

// Active returns the number of live subscriptions across all ids.
func (h *Hub) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	total := 0
	for _, byKey := range h.subs {
		total += len(byKey)
	}
	return total
}

// Close stops the delivery goroutine. Pending notifications are dropped.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.pending = make(map[int64]struct{})
	h.mu.Unlock()
	close(h.wake)
	<-h.done
}

func (h *Hub) deliver() {
	defer close(h.done)
	for range h.wake {
		for {
			callbacks := h.takePending()
			if len(callbacks) == 0 {
				break
			}
			for _, fn := range callbacks {
				h.invoke(fn)
			}
		}
	}
}

func (h *Hub) takePending() []func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.pending) == 0 {
		return nil
	}
	var callbacks []func()
	for id := range h.pending {
		for _, fn := range h.subs[id] {
			callbacks = append(callbacks, fn)
		}
		delete(h.pending, id)
	}
	return callbacks
}

func (h *Hub) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(h.logger, "change callback panicked", "notify_callback_panic",
				logging.Any("panic", r),
				logging.String(logging.FieldErrorHint, "subscriber callbacks must not panic"),
			)
		}
	}()
	fn()
}
