package review

import (
	"context"
	"sync"

	"lightbox/internal/items"
)

// Update is one read from a session.
type Update struct {
	Seq      uint64
	Snapshot items.Snapshot
	// Done is set once the sequence has ended; Snapshot is then the final one.
	Done bool
}

// Session is one open review.
type Session struct {
	id      string
	service *Service
	cancel  context.CancelFunc
	done    chan struct{}

	mu      sync.Mutex
	seq     uint64
	latest  items.Snapshot
	has     bool
	ended   bool
	changed chan struct{}

	closeOnce sync.Once
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

func (s *Session) signalLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *Session) publish(snap items.Snapshot) {
	s.mu.Lock()
	s.seq++
	s.latest = snap
	s.has = true
	s.signalLocked()
	s.mu.Unlock()
}

// republish bumps the sequence number so readers fetch a freshly filtered
// copy of the latest snapshot.
func (s *Session) republish() {
	s.mu.Lock()
	if s.has {
		s.seq++
		s.signalLocked()
	}
	s.mu.Unlock()
}

func (s *Session) finish() {
	s.mu.Lock()
	s.ended = true
	s.signalLocked()
	s.mu.Unlock()
}

// Next blocks until an update newer than after exists or the session ends.
func (s *Session) Next(ctx context.Context, after uint64) (Update, error) {
	for {
		s.mu.Lock()
		if s.seq > after || s.ended {
			update := Update{
				Seq:      s.seq,
				Snapshot: s.service.tracker.Filter(s.latest),
				Done:     s.ended,
			}
			s.mu.Unlock()
			return update, nil
		}
		changed := s.changed
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return Update{}, ctx.Err()
		case <-changed:
		}
	}
}

// Latest returns the newest update without blocking.
func (s *Session) Latest() Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Update{Seq: s.seq, Snapshot: s.service.tracker.Filter(s.latest), Done: s.ended}
}

// Done is closed once the pipeline goroutine has returned.
func (s *Session) Done() <-chan struct{} { return s.done }

// Close cancels the pipeline and waits for every outstanding wait to be
// released. It is safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
		s.service.remove(s.id)
	})
}
