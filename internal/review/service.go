package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"lightbox/internal/deletions"
	"lightbox/internal/items"
	"lightbox/internal/logging"
	"lightbox/internal/pipeline"
)

var (
	// ErrSessionNotFound reports an unknown or closed session id.
	ErrSessionNotFound = errors.New("review session not found")
	// ErrNoLauncher reports that resuming capture is not configured.
	ErrNoLauncher = errors.New("no capture launcher configured")
)

// Handler starts pipeline sequences.
type Handler interface {
	Handle(ctx context.Context, trig pipeline.Trigger) (*pipeline.Sequence, error)
}

// Launcher resumes the capture flow for an action token.
type Launcher interface {
	Launch(ctx context.Context, token items.ActionToken) error
}

// Service owns open review sessions.
type Service struct {
	handler  Handler
	tracker  *deletions.Tracker
	launcher Launcher
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewService constructs a service. launcher may be nil.
func NewService(handler Handler, tracker *deletions.Tracker, launcher Launcher, logger *slog.Logger) *Service {
	if tracker == nil {
		tracker = deletions.NewTracker()
	}
	return &Service{
		handler:  handler,
		tracker:  tracker,
		launcher: launcher,
		logger:   logging.NewComponentLogger(logger, "review"),
		sessions: make(map[string]*Session),
	}
}

// Open starts a session for trig. The session outlives ctx; callers end it
// with Close.
func (s *Service) Open(ctx context.Context, trig pipeline.Trigger) (*Session, error) {
	id := uuid.NewString()
	sessionCtx, cancel := context.WithCancel(logging.WithSessionID(context.WithoutCancel(ctx), id))

	seq, err := s.handler.Handle(sessionCtx, trig)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open review: %w", err)
	}

	session := &Session{
		id:      id,
		service: s,
		cancel:  cancel,
		done:    make(chan struct{}),
		changed: make(chan struct{}),
	}
	s.mu.Lock()
	s.sessions[id] = session
	s.mu.Unlock()

	logger := logging.WithContext(sessionCtx, s.logger)
	logger.Info("review session opened",
		logging.Int64(logging.FieldItemID, seq.AnchorID()),
		logging.Bool("explicit", trig.ExplicitIDs != nil),
		logging.Bool("secure", trig.Secure),
	)

	go func() {
		defer close(session.done)
		count := 0
		for snap := range seq.All() {
			count++
			session.publish(snap)
		}
		session.finish()
		logger.Debug("review sequence ended", logging.Int("snapshots", count))
	}()
	return session, nil
}

// Session returns the open session with id.
func (s *Service) Session(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return session, nil
}

// OpenSessions returns the number of open sessions.
func (s *Service) OpenSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Service) remove(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// NotifyDeleted records a deletion and refreshes every open session.
func (s *Service) NotifyDeleted(id int64) {
	s.tracker.MarkDeleted(id)
	s.mu.Lock()
	open := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		open = append(open, session)
	}
	s.mu.Unlock()
	for _, session := range open {
		session.republish()
	}
	s.logger.Info("item deleted", logging.Int64(logging.FieldItemID, id), logging.Int("sessions", len(open)))
}

// ResumeCapture hands token to the configured launcher.
func (s *Service) ResumeCapture(ctx context.Context, token items.ActionToken) error {
	if s.launcher == nil {
		return ErrNoLauncher
	}
	if err := s.launcher.Launch(ctx, token); err != nil {
		return fmt.Errorf("resume capture: %w", err)
	}
	return nil
}

// Close ends every open session.
func (s *Service) Close() {
	s.mu.Lock()
	open := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		open = append(open, session)
	}
	s.mu.Unlock()
	for _, session := range open {
		session.Close()
	}
}
