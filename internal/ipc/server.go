package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"lightbox/internal/daemon"
	"lightbox/internal/items"
	"lightbox/internal/logging"
	"lightbox/internal/mediastore"
	"lightbox/internal/review"
)

const (
	serviceName       = "Lightbox"
	defaultWait       = 30 * time.Second
	maxWait           = 2 * time.Minute
	defaultListLimit  = 50
	maxListLimit      = 1000
	socketPermissions = 0o600
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	connMu sync.Mutex
	conns  map[net.Conn]struct{}
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}
	if err := os.Chmod(path, socketPermissions); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("restrict socket permissions: %w", err)
	}

	if err := rpc.NewServer().RegisterName(serviceName, &service{}); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:     path,
		daemon:   d,
		logger:   logger,
		listener: listener,
		ctx:      serverCtx,
		cancel:   cancel,
		conns:    make(map[net.Conn]struct{}),
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.track(conn, true)
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				defer s.track(c, false)
				s.serveConn(c)
			}(conn)
		}
	}()
}

// serveConn serves one client. Review sessions opened on the connection are
// owned by it and closed when the client hangs up.
func (s *Server) serveConn(conn net.Conn) {
	connCtx, hangup := context.WithCancel(s.ctx)
	defer hangup()

	srv := &service{daemon: s.daemon, logger: s.logger, ctx: connCtx, owned: newSessionSet()}
	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName(serviceName, srv); err != nil {
		_ = conn.Close()
		return
	}
	rpcServer.ServeCodec(hangupCodec{ServerCodec: jsonrpc.NewServerCodec(conn), hangup: hangup})

	for _, id := range srv.owned.drain() {
		srv.closeSession(id)
	}
}

// hangupCodec cancels the connection context as soon as reading fails, so
// long polls still in flight stop waiting.
type hangupCodec struct {
	rpc.ServerCodec
	hangup context.CancelFunc
}

func (c hangupCodec) ReadRequestHeader(r *rpc.Request) error {
	err := c.ServerCodec.ReadRequestHeader(r)
	if err != nil {
		c.hangup()
	}
	return err
}

// sessionSet tracks the review sessions one connection opened.
type sessionSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func newSessionSet() *sessionSet {
	return &sessionSet{ids: make(map[string]struct{})}
}

func (o *sessionSet) add(id string) {
	o.mu.Lock()
	o.ids[id] = struct{}{}
	o.mu.Unlock()
}

func (o *sessionSet) remove(id string) {
	o.mu.Lock()
	delete(o.ids, id)
	o.mu.Unlock()
}

func (o *sessionSet) drain() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]string, 0, len(o.ids))
	for id := range o.ids {
		ids = append(ids, id)
	}
	clear(o.ids)
	return ids
}

func (s *Server) track(conn net.Conn, add bool) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

// Close stops the server, disconnects clients and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.connMu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.connMu.Unlock()
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
	owned  *sessionSet
}

// closeSession releases a session this connection no longer needs. A session
// already closed elsewhere is not an error.
func (s *service) closeSession(id string) {
	s.owned.remove(id)
	if err := s.daemon.CloseReview(id); err != nil && !errors.Is(err, review.ErrSessionNotFound) {
		logging.WarnWithContext(s.logger, "review session not released", "ipc_session_release_failed",
			logging.String(logging.FieldSessionID, id),
			logging.Error(err),
			logging.String(logging.FieldImpact, "the session keeps its readiness waits until the daemon stops"),
		)
		return
	}
	s.logger.Debug("review session released", logging.String(logging.FieldSessionID, id))
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status()
	resp.Running = status.Running
	resp.PID = os.Getpid()
	resp.StartedAt = status.StartedAt
	resp.DatabasePath = status.DatabasePath
	resp.LockPath = status.LockPath
	resp.CaptureDir = status.CaptureDir
	resp.IngestEnabled = status.IngestEnabled
	resp.DeviceMonitor = status.DeviceMonitor
	resp.OpenSessions = status.OpenSessions
	resp.ActiveSubscriptions = status.ActiveSubscriptions
	resp.DeletedItems = status.DeletedItems
	return nil
}

func (s *service) OpenReview(req OpenReviewRequest, resp *OpenReviewResponse) error {
	session, err := s.daemon.OpenReview(s.ctx, req.Trigger())
	if err != nil {
		return err
	}
	s.owned.add(session.ID())
	resp.SessionID = session.ID()
	resp.AnchorID, _ = mediastore.ParseID(mediastore.Locator(req.Anchor))
	s.logger.Debug("review opened via ipc",
		logging.String(logging.FieldSessionID, session.ID()),
		logging.String(logging.FieldLocator, req.Anchor),
	)
	return nil
}

func (s *service) NextSnapshot(req NextSnapshotRequest, resp *NextSnapshotResponse) error {
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 {
		wait = defaultWait
	}
	if wait > maxWait {
		wait = maxWait
	}
	ctx, cancel := context.WithTimeout(s.ctx, wait)
	defer cancel()

	update, err := s.daemon.NextSnapshot(ctx, req.SessionID, req.After)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			resp.Seq = req.After
			resp.TimedOut = true
			return nil
		}
		return err
	}
	resp.Seq = update.Seq
	resp.Items = EncodeSnapshot(update.Snapshot)
	resp.Done = update.Done
	if update.Done {
		s.closeSession(req.SessionID)
	}
	return nil
}

func (s *service) CloseReview(req CloseReviewRequest, resp *CloseReviewResponse) error {
	if err := s.daemon.CloseReview(req.SessionID); err != nil {
		return err
	}
	s.owned.remove(req.SessionID)
	resp.Closed = true
	return nil
}

func (s *service) Delete(req DeleteRequest, resp *DeleteResponse) error {
	ctx := logging.WithItemID(logging.WithRequestID(s.ctx, uuid.NewString()), req.ID)
	removed, err := s.daemon.Delete(ctx, req.ID, req.Purge)
	if err != nil {
		return err
	}
	resp.Removed = removed
	logging.WithContext(ctx, s.logger).Info("item deleted via ipc",
		logging.String(logging.FieldEventType, "review_item_deleted"),
		logging.Bool("purge", req.Purge),
	)
	return nil
}

func (s *service) ResumeCapture(req ResumeCaptureRequest, resp *ResumeCaptureResponse) error {
	if err := s.daemon.ResumeCapture(s.ctx, items.ActionToken(req.Token)); err != nil {
		return err
	}
	resp.Launched = true
	return nil
}

func (s *service) ListMedia(req ListMediaRequest, resp *ListMediaResponse) error {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	records, err := s.daemon.ListMedia(s.ctx, limit)
	if err != nil {
		return err
	}
	resp.Items = make([]MediaRecord, 0, len(records))
	for _, rec := range records {
		resp.Items = append(resp.Items, EncodeRecord(rec))
	}
	return nil
}
