package transport

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// SocketOptions tunes the WebSocket adapter. Zero values get the defaults
// below.
type SocketOptions struct {
	// ReadLimit is the maximum size of one inbound message.
	ReadLimit int64
	// ReadTimeout bounds the gap between inbound frames; pongs reset it.
	ReadTimeout time.Duration
	// WriteTimeout bounds each outbound write.
	WriteTimeout time.Duration
}

const (
	defaultReadLimit    = 512 * 1024
	defaultReadTimeout  = 60 * time.Second
	defaultWriteTimeout = 10 * time.Second
)

// WebSocket adapts a gorilla *websocket.Conn to the Socket interface,
// exposing gorilla's per-message readers as fragment-level receives.
type WebSocket struct {
	conn         *websocket.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration

	state     atomic.Int32
	abortOnce sync.Once

	// current in-progress inbound message; receive-loop-only state
	reader     io.Reader
	readerKind FrameKind
}

// NewWebSocket wraps an already-upgraded connection.
func NewWebSocket(conn *websocket.Conn, opts SocketOptions) *WebSocket {
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = defaultReadLimit
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = defaultReadTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	w := &WebSocket{
		conn:         conn,
		readTimeout:  opts.ReadTimeout,
		writeTimeout: opts.WriteTimeout,
	}
	conn.SetReadLimit(opts.ReadLimit)
	conn.SetReadDeadline(time.Now().Add(opts.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(opts.ReadTimeout))
	})
	return w
}

// Receive reads the next fragment of the current inbound message. Blocking is
// bounded by the read deadline rather than ctx; Abort unblocks it.
func (w *WebSocket) Receive(_ context.Context, buf []byte) (int, bool, FrameKind, error) {
	for {
		if w.reader == nil {
			kind, r, err := w.nextMessage()
			if err != nil {
				return 0, false, 0, err
			}
			if kind == FrameClose {
				return 0, true, FrameClose, nil
			}
			w.reader = r
			w.readerKind = kind
		}
		n, err := w.reader.Read(buf)
		if err == io.EOF {
			w.reader = nil
			return n, true, w.readerKind, nil
		}
		if err != nil {
			w.state.Store(int32(StateAborted))
			return 0, false, w.readerKind, err
		}
		if n == 0 {
			continue
		}
		return n, false, w.readerKind, nil
	}
}

func (w *WebSocket) nextMessage() (FrameKind, io.Reader, error) {
	mt, r, err := w.conn.NextReader()
	if err != nil {
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			w.state.Store(int32(StateClosed))
			return FrameClose, nil, nil
		}
		w.state.Store(int32(StateAborted))
		return 0, nil, err
	}
	w.conn.SetReadDeadline(time.Now().Add(w.readTimeout))
	if mt == websocket.TextMessage {
		return FrameText, r, nil
	}
	return FrameBinary, r, nil
}

// Send writes data as one whole WebSocket message. Gorilla assembles
// fragments itself, so final is always honored as message-complete.
func (w *WebSocket) Send(_ context.Context, data []byte, kind FrameKind, _ bool) error {
	mt := websocket.BinaryMessage
	if kind == FrameText {
		mt = websocket.TextMessage
	}
	w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout))
	return w.conn.WriteMessage(mt, data)
}

// CloseOutput sends a close control frame with the status code. Safe
// concurrently with a blocked Send or Receive.
func (w *WebSocket) CloseOutput(code CloseCode, reason string) error {
	w.state.CompareAndSwap(int32(StateOpen), int32(StateClosing))
	msg := websocket.FormatCloseMessage(int(code), reason)
	return w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(w.writeTimeout))
}

// Abort hard-closes the underlying connection, unblocking any pending read or
// write. Idempotent.
func (w *WebSocket) Abort() {
	w.abortOnce.Do(func() {
		w.state.Store(int32(StateAborted))
		w.conn.Close()
	})
}

// Ping sends a ping control frame; the peer's pong resets the read deadline.
func (w *WebSocket) Ping() error {
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(w.writeTimeout))
}

// State returns the current socket state.
func (w *WebSocket) State() SocketState {
	return SocketState(w.state.Load())
}
