package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hubwire/hubwire"
	"github.com/hubwire/hubwire/internal/hub"
)

// DefaultCloseTimeout bounds the wait for the second pump loop during
// shutdown before the socket is forcibly aborted.
const DefaultCloseTimeout = 10 * time.Second

// receiveBufferSize is the per-read fragment buffer. Messages larger than
// this arrive as multiple fragments and are flattened before delivery.
const receiveBufferSize = 4096

// Pump runs the two loops that move whole byte messages between one socket
// and one connection's queues. A pump attaches to its socket exactly once.
type Pump struct {
	conn         *hub.Connection
	sock         Socket
	closeTimeout time.Duration
	log          *slog.Logger
	started      atomic.Bool
}

// NewPump creates a pump for one connection/socket pair. A zero closeTimeout
// gets DefaultCloseTimeout; a nil logger gets slog.Default().
func NewPump(conn *hub.Connection, sock Socket, closeTimeout time.Duration, log *slog.Logger) *Pump {
	if closeTimeout <= 0 {
		closeTimeout = DefaultCloseTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pump{conn: conn, sock: sock, closeTimeout: closeTimeout, log: log}
}

// Run pumps until one loop finishes, then drives the shutdown protocol:
// whichever loop finishes first is the trigger and its outcome decides the
// close status code (1011 on failure, 1000 otherwise); the outbound queue is
// completed immediately so further application writes are rejected; the close
// frame is sent; the other loop is waited on for the close timeout, after
// which the socket is aborted and the wait is treated as satisfied. Run
// returns the trigger's error, if any.
//
// Run must be called exactly once; a second call is a programming error and
// panics.
func (p *Pump) Run(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		panic("transport: pump already attached to a socket")
	}

	// The receive task must exist before the send task: on some socket
	// implementations sends are only valid once a receive is outstanding.
	recvDone := make(chan error, 1)
	go func() { recvDone <- p.receiveLoop(ctx) }()
	sendDone := make(chan error, 1)
	go func() { sendDone <- p.sendLoop(ctx) }()

	var trigger error
	var other <-chan error
	select {
	case trigger = <-recvDone:
		other = sendDone
	case trigger = <-sendDone:
		other = recvDone
	}

	code := CloseNormal
	if trigger != nil {
		code = CloseInternalError
	}
	p.conn.Outbound().Complete()
	if err := p.sock.CloseOutput(code, ""); err != nil {
		p.log.Debug("close frame not sent", "connection_id", p.conn.ID(), "err", err)
	}

	// Bounded wait for the other loop, with a cancellation signal scoped
	// only to this wait. On expiry the hard abort unblocks whichever read
	// or write the loop is stuck in; the abort is never retried.
	waitCtx, cancel := context.WithTimeout(context.Background(), p.closeTimeout)
	defer cancel()
	select {
	case <-other:
	case <-waitCtx.Done():
		p.log.Warn("close handshake timed out, aborting socket",
			"connection_id", p.conn.ID(), "timeout", p.closeTimeout)
		p.sock.Abort()
	}

	return trigger
}

// receiveLoop reads frames, accumulating fragments until one marks
// end-of-message, then flattens them into a single message on the inbound
// queue. A close frame ends the loop normally; any other fault propagates.
func (p *Pump) receiveLoop(ctx context.Context) error {
	buf := make([]byte, receiveBufferSize)
	var message []byte
	for {
		n, final, kind, err := p.sock.Receive(ctx, buf)
		if err != nil {
			return fmt.Errorf("transport: receive: %w", err)
		}
		if kind == FrameClose {
			return nil
		}
		message = append(message, buf[:n]...)
		if !final {
			continue
		}
		msg := message
		message = nil
		if err := p.conn.Inbound().Write(ctx, msg); err != nil {
			if errors.Is(err, hubwire.ErrQueueCompleted) {
				return nil
			}
			return err
		}
	}
}

// sendLoop writes each dequeued message as one socket message using the
// connection's transfer mode. Once the socket is no longer sendable, messages
// still draining out of the queue are dropped without failing the loop.
func (p *Pump) sendLoop(ctx context.Context) error {
	kind := FrameBinary
	if p.conn.TransferMode() == hubwire.TransferText {
		kind = FrameText
	}
	for {
		msg, err := p.conn.Outbound().Read(ctx)
		if err != nil {
			if errors.Is(err, hubwire.ErrQueueCompleted) {
				return nil
			}
			return err
		}
		if st := p.sock.State(); st != StateOpen {
			p.log.Debug("dropping outbound message, socket not sendable",
				"connection_id", p.conn.ID(), "state", st.String())
			continue
		}
		if err := p.sock.Send(ctx, msg, kind, true); err != nil {
			if st := p.sock.State(); st != StateOpen {
				p.log.Debug("send failed on unsendable socket, dropping",
					"connection_id", p.conn.ID(), "state", st.String(), "err", err)
				continue
			}
			return fmt.Errorf("transport: send: %w", err)
		}
	}
}
