// Package server implements the WebSocket endpoint that accepts hubwire
// connections and wires each one to a hub lifetime manager and a transport
// pump.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hubwire/hubwire"
	"github.com/hubwire/hubwire/internal/hub"
	"github.com/hubwire/hubwire/internal/protocol"
	"github.com/hubwire/hubwire/internal/transport"
)

// Subprotocol identifiers offered during upgrade negotiation. The negotiated
// subprotocol selects the connection's wire format; no negotiation means JSON.
const (
	SubprotocolJSON    = "hubwire-json"
	SubprotocolMsgpack = "hubwire-msgpack"
)

const defaultPingInterval = 54 * time.Second

// CheckOriginFn validates the origin of an upgrade request.
type CheckOriginFn = func(r *http.Request) bool

// UserResolverFn extracts the authenticated identity from an upgrade request.
// Returning "" leaves the connection anonymous. Authentication itself is the
// caller's concern (middleware, tokens); the server only records the result.
type UserResolverFn = func(r *http.Request) string

// ConnectFn is called after a connection registers; DisconnectFn after it is
// removed.
type ConnectFn = func(conn hubwire.Connection)
type DisconnectFn = func(conn hubwire.Connection)

// RateLimitConfig defines token-bucket rate limiting of inbound messages,
// applied independently per connection.
type RateLimitConfig struct {
	MessagesPerSecond rate.Limit
	Burst             int
	Enabled           bool
}

// DefaultRateLimitConfig allows 100 messages per second with burst of 200.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		MessagesPerSecond: 100,
		Burst:             200,
		Enabled:           true,
	}
}

// NoRateLimit returns a configuration with rate limiting disabled.
func NoRateLimit() *RateLimitConfig {
	return &RateLimitConfig{Enabled: false}
}

// Config configures a Server. Zero values get defaults.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string
	// CloseTimeout bounds the shutdown wait for the second pump loop
	// before the socket is aborted. Default transport.DefaultCloseTimeout.
	CloseTimeout time.Duration
	// TransferMode selects text or binary outbound WebSocket messages.
	// Binary-format codecs such as msgpack require TransferBinary (the
	// default).
	TransferMode hubwire.TransferMode
	// QueueCapacity bounds each per-connection message queue.
	QueueCapacity int
	// ReadLimit is the maximum inbound message size in bytes.
	ReadLimit int64
	// ReadTimeout, WriteTimeout and PingInterval tune keepalive.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PingInterval time.Duration

	RateLimit    *RateLimitConfig
	CheckOrigin  CheckOriginFn
	UserResolver UserResolverFn
	OnConnect    ConnectFn
	OnDisconnect DisconnectFn

	// Codecs overrides the wire format registry. Default: JSON + msgpack.
	Codecs *protocol.Registry
	Logger *slog.Logger
}

// Server implements hubwire.Server.
type Server struct {
	cfg      Config
	log      *slog.Logger
	codecs   *protocol.Registry
	manager  *hub.Manager
	handlers sync.Map // map[string]hubwire.HandlerFunc
	upgrader websocket.Upgrader

	mu       sync.Mutex
	running  bool
	baseCtx  context.Context
	cancel   context.CancelFunc
	httpSrv  *http.Server
	sessions sync.WaitGroup
}

// New creates a server from cfg, applying defaults for unset fields.
func New(cfg Config) *Server {
	if cfg.RateLimit == nil {
		cfg.RateLimit = DefaultRateLimitConfig()
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Codecs == nil {
		cfg.Codecs = protocol.DefaultRegistry()
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:     cfg,
		log:     cfg.Logger,
		codecs:  cfg.Codecs,
		manager: hub.NewManager(cfg.Codecs, cfg.Logger),
		baseCtx: baseCtx,
		cancel:  cancel,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			Subprotocols:    []string{SubprotocolJSON, SubprotocolMsgpack},
			CheckOrigin:     cfg.CheckOrigin,
		},
	}
}

// Start starts the WebSocket server.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return hubwire.ErrServerAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	s.httpSrv = &http.Server{Addr: s.cfg.Addr, Handler: s.Handler()}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	case <-ctx.Done():
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(stopCtx)
	case <-time.After(100 * time.Millisecond):
		s.log.Info("server listening", "addr", s.cfg.Addr)
		return nil
	}
}

// Stop gracefully stops the server: each live connection's outbound queue is
// completed so its pump performs the normal close handshake, the listener
// shuts down, and remaining sessions are force-cancelled.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	for _, c := range s.manager.Connections() {
		c.Outbound().Complete()
	}

	var err error
	if s.httpSrv != nil {
		err = s.httpSrv.Shutdown(ctx)
	}
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

// Handler returns the HTTP handler serving the upgrade endpoint at /ws, for
// mounting into an existing mux instead of Start's own listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)
	return mux
}

// RegisterHandler registers a handler for inbound invocations of method.
func (s *Server) RegisterHandler(method string, handler hubwire.HandlerFunc) {
	s.handlers.Store(method, handler)
}

// BroadcastAll enqueues an invocation onto every live connection.
func (s *Server) BroadcastAll(ctx context.Context, method string, args ...any) error {
	return s.manager.BroadcastAll(ctx, method, args...)
}

// BroadcastGroup enqueues an invocation onto the group's members.
func (s *Server) BroadcastGroup(ctx context.Context, group, method string, args ...any) error {
	return s.manager.BroadcastGroup(ctx, group, method, args...)
}

// BroadcastUser enqueues an invocation onto the user's connections.
func (s *Server) BroadcastUser(ctx context.Context, user, method string, args ...any) error {
	return s.manager.BroadcastUser(ctx, user, method, args...)
}

// Invoke calls one connection and waits for its completion.
func (s *Server) Invoke(ctx context.Context, connectionID, method string, args ...any) (any, error) {
	return s.manager.Invoke(ctx, connectionID, method, args...)
}

// AddGroup adds the connection to the named group.
func (s *Server) AddGroup(connectionID, group string) error {
	return s.manager.AddGroup(connectionID, group)
}

// RemoveGroup removes the connection from the named group.
func (s *Server) RemoveGroup(connectionID, group string) error {
	return s.manager.RemoveGroup(connectionID, group)
}

// handleUpgrade upgrades the HTTP request and hands the socket to a session
// goroutine. The request context dies with this handler, so sessions run off
// the server's base context.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade failed", "remote_addr", r.RemoteAddr, "err", err)
		return
	}

	var user string
	if s.cfg.UserResolver != nil {
		user = s.cfg.UserResolver(r)
	}
	conn := hub.NewConnection(hub.Options{
		User:          user,
		Format:        formatFromSubprotocol(wsConn.Subprotocol()),
		Mode:          s.cfg.TransferMode,
		QueueCapacity: s.cfg.QueueCapacity,
	})
	sock := transport.NewWebSocket(wsConn, transport.SocketOptions{
		ReadLimit:    s.cfg.ReadLimit,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	})

	s.sessions.Add(1)
	go func() {
		defer s.sessions.Done()
		s.serveConnection(s.baseCtx, conn, sock)
	}()
}

func formatFromSubprotocol(sub string) string {
	switch sub {
	case SubprotocolMsgpack:
		return protocol.FormatMsgpack
	default:
		return protocol.FormatJSON
	}
}

// serveConnection owns one connection's lifetime: registration, the transport
// pump, the inbound dispatch loop and keepalive.
func (s *Server) serveConnection(ctx context.Context, conn *hub.Connection, sock *transport.WebSocket) {
	s.manager.OnConnect(conn)
	if s.cfg.OnConnect != nil {
		s.cfg.OnConnect(conn)
	}
	defer func() {
		s.manager.OnDisconnect(conn)
		if s.cfg.OnDisconnect != nil {
			s.cfg.OnDisconnect(conn)
		}
		sock.Abort()
	}()

	var limiter *rate.Limiter
	if s.cfg.RateLimit.Enabled {
		limiter = rate.NewLimiter(s.cfg.RateLimit.MessagesPerSecond, s.cfg.RateLimit.Burst)
	}

	stopPing := make(chan struct{})
	go s.keepalive(sock, stopPing)
	defer close(stopPing)

	pump := transport.NewPump(conn, sock, s.cfg.CloseTimeout, s.log)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := pump.Run(gctx)
		// Pump done: nothing more arrives, so release the dispatch loop.
		conn.Inbound().Complete()
		return err
	})
	g.Go(func() error {
		return s.dispatch(gctx, conn, sock, limiter)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Error("connection closed with fault", "connection_id", conn.ID(), "err", err)
	} else {
		s.log.Debug("connection closed", "connection_id", conn.ID())
	}
}

func (s *Server) keepalive(sock *transport.WebSocket, stop <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := sock.Ping(); err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}

// dispatch consumes the inbound queue, decoding each message into an
// invocation (routed to a handler goroutine) or a completion (resolved
// against the connection's pending invocations).
func (s *Server) dispatch(ctx context.Context, conn *hub.Connection, sock *transport.WebSocket, limiter *rate.Limiter) error {
	codec, err := s.codecs.Get(conn.Format())
	if err != nil {
		return err
	}
	for {
		data, err := conn.Inbound().Read(ctx)
		if err != nil {
			if errors.Is(err, hubwire.ErrQueueCompleted) {
				return nil
			}
			return err
		}
		if limiter != nil && !limiter.Allow() {
			s.log.Warn("rate limit exceeded", "connection_id", conn.ID())
			sock.CloseOutput(transport.ClosePolicyViolation, "rate limit exceeded")
			conn.Outbound().Complete()
			return nil
		}
		msg, err := codec.Decode(data)
		if err != nil {
			s.log.Warn("malformed inbound message", "connection_id", conn.ID(), "err", err)
			sock.CloseOutput(transport.CloseProtocolError, "malformed message")
			conn.Outbound().Complete()
			return nil
		}
		switch m := msg.(type) {
		case *protocol.Completion:
			if err := s.manager.ResolveCompletion(conn, m); err != nil {
				s.log.Warn("completion not resolved", "connection_id", conn.ID(), "invocation_id", m.ID, "err", err)
			}
		case *protocol.Invocation:
			// Handlers run in their own goroutines so a slow handler
			// does not block dispatch.
			go s.runHandler(conn, codec, m)
		}
	}
}

// runHandler executes one inbound invocation and, when the invocation is
// correlated, queues the completion back to the peer.
func (s *Server) runHandler(conn *hub.Connection, codec protocol.Codec, inv *protocol.Invocation) {
	comp := &protocol.Completion{ID: inv.ID}
	h, ok := s.handlers.Load(inv.Method)
	if !ok {
		if inv.ID == "" {
			return // fire-and-forget to an unknown method is ignored
		}
		comp.Error = fmt.Sprintf("unknown method %q", inv.Method)
	} else {
		result, err := h.(hubwire.HandlerFunc)(conn, inv.Args)
		if inv.ID == "" {
			return
		}
		if err != nil {
			comp.Error = err.Error()
		} else {
			comp.Result = result
		}
	}
	data, err := codec.EncodeCompletion(comp)
	if err != nil {
		s.log.Error("encode completion failed", "connection_id", conn.ID(), "err", err)
		return
	}
	if err := conn.Outbound().Write(s.baseCtx, data); err != nil {
		s.log.Debug("completion dropped, connection closing", "connection_id", conn.ID(), "err", err)
	}
}
