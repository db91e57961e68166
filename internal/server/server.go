package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"rdesktopd/internal/capture"
	"rdesktopd/internal/input"
	"rdesktopd/internal/logging"
	"rdesktopd/internal/wire"
)

const writeTimeout = 2 * time.Second

func deadlineSoon() time.Time { return time.Now().Add(writeTimeout) }

// DesktopSource provides the desktops advertised to clients.
type DesktopSource interface {
	Desktops() []capture.Desktop
}

// InputSink accepts decoded input batches.
type InputSink interface {
	Send(ctx context.Context, ev input.Event) error
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithInput forwards WebSocket input messages to sink.
func WithInput(sink InputSink) Option {
	return func(s *Server) { s.input = sink }
}

// WithAPIRevision sets the revision the server accepts and announces.
func WithAPIRevision(revision uint64) Option {
	return func(s *Server) { s.revision = revision }
}

// Server accepts wire-protocol clients.
type Server struct {
	desktops DesktopSource
	input    InputSink
	revision uint64
	logger   *slog.Logger

	mu       sync.Mutex
	clients  map[*session]struct{}
	closing  bool
	handlers sync.WaitGroup
}

// New constructs a Server.
func New(desktops DesktopSource, opts ...Option) *Server {
	s := &Server{
		desktops: desktops,
		revision: 1,
		logger:   logging.NewNop(),
		clients:  make(map[*session]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve accepts TCP clients on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	s.logger.Info("client listener ready",
		logging.String(logging.FieldEventType, "listener_ready"),
		logging.String("address", ln.Addr().String()),
		logging.String("transport", "tcp"),
	)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.start(ctx, newTCPConn(conn))
	}
}

// ServeWebSocket accepts WebSocket clients on ln until ctx is cancelled.
func (s *Server) ServeWebSocket(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.WebSocketHandler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}
	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	})
	defer stop()

	s.logger.Info("client listener ready",
		logging.String(logging.FieldEventType, "listener_ready"),
		logging.String("address", ln.Addr().String()),
		logging.String("transport", "websocket"),
	)
	if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve websocket: %w", err)
	}
	return nil
}

// WebSocketHandler upgrades requests and runs the client exchange.
func (s *Server) WebSocketHandler(ctx context.Context) http.Handler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Debug("websocket upgrade failed", logging.Error(err), logging.String(logging.FieldRemote, r.RemoteAddr))
			return
		}
		conn := &wsConn{conn: ws}
		conn.onInput = func(ev input.Event, err error) { s.forwardInput(ctx, conn.RemoteAddr(), ev, err) }
		s.start(ctx, conn)
	})
}

func (s *Server) forwardInput(ctx context.Context, remote string, ev input.Event, err error) {
	if err != nil {
		logging.WarnWithContext(s.logger, "rejected input message", "input_rejected",
			logging.Error(err),
			logging.String(logging.FieldRemote, remote),
			logging.String(logging.FieldErrorHint, "client sent an unknown key or malformed batch"),
			logging.String(logging.FieldImpact, "input batch ignored"),
		)
		return
	}
	if s.input == nil {
		return
	}
	if err := s.input.Send(ctx, ev); err != nil && ctx.Err() == nil {
		logging.WarnWithContext(s.logger, "input queue unavailable", "input_queue_failed",
			logging.Error(err),
			logging.String(logging.FieldRemote, remote),
		)
	}
}

func (s *Server) start(ctx context.Context, conn clientConn) {
	sess := &session{conn: conn, server: s, logger: s.logger.With(logging.String(logging.FieldRemote, conn.RemoteAddr()))}

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		_ = conn.WritePacket(wire.End{})
		_ = conn.Close()
		return
	}
	s.clients[sess] = struct{}{}
	s.handlers.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.handlers.Done()
		defer s.remove(sess)
		sess.run(ctx)
	}()
}

func (s *Server) remove(sess *session) {
	s.mu.Lock()
	delete(s.clients, sess)
	s.mu.Unlock()
	sess.close()
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close sends End to every client, closes their connections, and waits for
// their handlers to return. New connections are refused afterwards.
func (s *Server) Close() {
	s.mu.Lock()
	s.closing = true
	sessions := make([]*session, 0, len(s.clients))
	for sess := range s.clients {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.end()
	}
	s.handlers.Wait()
}

func (s *Server) desktopList() wire.DesktopList {
	if s.desktops == nil {
		return wire.DesktopList{}
	}
	desktops := s.desktops.Desktops()
	entries := make([]wire.DesktopEntry, 0, len(desktops))
	for _, d := range desktops {
		entries = append(entries, wire.DesktopEntry{ID: d.Index, Width: d.Width, Height: d.Height})
	}
	return wire.DesktopList{Entries: entries}
}

func (s *Server) knownDesktop(id uint64) (capture.Desktop, bool) {
	if s.desktops == nil {
		return capture.Desktop{}, false
	}
	for _, d := range s.desktops.Desktops() {
		if d.Index == id {
			return d, true
		}
	}
	return capture.Desktop{}, false
}

type session struct {
	conn   clientConn
	server *Server
	logger *slog.Logger

	closeOnce sync.Once
	mu        sync.Mutex
	active    *capture.Desktop
}

func (c *session) run(ctx context.Context) {
	first, err := c.conn.ReadPacket()
	if err != nil {
		c.logReadError(err)
		return
	}
	hello, ok := first.(wire.Handshake)
	if !ok {
		logging.WarnWithContext(c.logger, "client did not open with a handshake", "client_protocol_error",
			logging.String("packet", first.Tag().String()),
			logging.String(logging.FieldImpact, "connection closed"),
		)
		return
	}
	accepted := hello.APIRevision == c.server.revision
	if err := c.conn.WritePacket(wire.Handshake{APIRevision: c.server.revision, Accepted: accepted}); err != nil {
		c.logger.Debug("handshake reply failed", logging.Error(err))
		return
	}
	if !accepted {
		logging.WarnWithContext(c.logger, "client revision rejected", "client_rejected",
			logging.Uint64("client_revision", hello.APIRevision),
			logging.Uint64("server_revision", c.server.revision),
			logging.String(logging.FieldErrorHint, "upgrade the client to match the daemon"),
			logging.String(logging.FieldImpact, "connection closed"),
		)
		return
	}

	list := c.server.desktopList()
	if err := c.conn.WritePacket(list); err != nil {
		c.logger.Debug("desktop list write failed", logging.Error(err))
		return
	}
	c.logger.Info("client connected",
		logging.String(logging.FieldEventType, "client_connected"),
		logging.Int("desktops", len(list.Entries)),
	)

	for {
		if ctx.Err() != nil {
			return
		}
		pkt, err := c.conn.ReadPacket()
		if err != nil {
			c.logReadError(err)
			return
		}
		switch p := pkt.(type) {
		case wire.SwitchSource:
			desktop, ok := c.server.knownDesktop(p.NewSource)
			if !ok {
				logging.WarnWithContext(c.logger, "client selected unknown desktop", "client_unknown_desktop",
					logging.Uint64(logging.FieldDesktopIndex, p.NewSource),
					logging.String(logging.FieldImpact, "connection closed"),
				)
				c.end()
				return
			}
			c.mu.Lock()
			c.active = &desktop
			c.mu.Unlock()
			c.logger.Info("client switched desktop",
				logging.String(logging.FieldEventType, "client_switch"),
				logging.Uint64(logging.FieldDesktopIndex, desktop.Index),
				logging.Int("port", int(desktop.Port)),
			)
		case wire.End:
			c.logger.Info("client disconnected", logging.String(logging.FieldEventType, "client_end"))
			return
		default:
			logging.WarnWithContext(c.logger, "unexpected packet from client", "client_protocol_error",
				logging.String("packet", pkt.Tag().String()),
				logging.String(logging.FieldImpact, "connection closed"),
			)
			return
		}
	}
}

// Active returns the desktop the client last selected.
func (c *session) Active() (capture.Desktop, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return capture.Desktop{}, false
	}
	return *c.active, true
}

func (c *session) logReadError(err error) {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.logger.Debug("client connection closed", logging.Error(err))
		return
	}
	if errors.Is(err, wire.ErrInvalidPacketLength) || errors.Is(err, wire.ErrInvalidField) {
		logging.WarnWithContext(c.logger, "client sent a malformed packet", "client_framing_error",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "client and daemon disagree on the wire format"),
			logging.String(logging.FieldImpact, "connection closed"),
		)
		return
	}
	c.logger.Debug("client read failed", logging.Error(err))
}

// end sends End and closes the connection.
func (c *session) end() {
	c.closeOnce.Do(func() {
		if err := c.conn.WritePacket(wire.End{}); err != nil {
			c.logger.Debug("end write failed", logging.Error(err))
		}
		_ = c.conn.Close()
	})
}

func (c *session) close() {
	c.closeOnce.Do(func() { _ = c.conn.Close() })
}
