// Package hubwire provides the server-side core of a real-time, bidirectional
// invocation layer that multiplexes many logical remote calls over long-lived
// WebSocket connections.
//
// A server built on hubwire can broadcast method invocations to every
// connection, to a named group, to a specific user, or to one connection, and
// can correlate asynchronous replies back to the originating caller.
//
// # Architecture
//
// Each connection owns a pair of bounded byte-message queues. The hub lifetime
// manager serializes invocations with the connection's negotiated wire codec
// and enqueues them outbound; a per-connection transport pump drains the
// outbound queue onto the socket and pushes socket-received messages inbound,
// where a dispatch loop decodes them into invocations (routed to registered
// handlers) or completions (resolved against the caller's pending invocation).
//
// Queues apply backpressure: a full outbound queue suspends the broadcaster
// rather than dropping or growing without bound.
//
// # Quick Start
//
//	import "github.com/hubwire/hubwire/ws"
//
//	srv := ws.New(ws.NewConfig(":8080", ws.DefaultRateLimitConfig(), ws.AllOrigins()))
//
//	// Respond to client-to-server invocations of "Echo".
//	srv.RegisterHandler("Echo", func(conn hubwire.Connection, args []any) (any, error) {
//	    return args, nil
//	})
//
//	srv.Start(ctx)
//
//	// Push an invocation to every member of a group.
//	srv.BroadcastGroup(ctx, "news", "Tick", 1)
//
//	// Call one connection and wait for its reply.
//	result, err := srv.Invoke(ctx, connectionID, "Ping")
//
// # Wire Formats
//
// Invocations and completions travel as single WebSocket messages encoded by a
// wire codec chosen per connection during subprotocol negotiation. Two codecs
// ship with the module: JSON (subprotocol "hubwire-json", the default) and
// msgpack (subprotocol "hubwire-msgpack", binary transfer). The core treats
// encoded messages as opaque bytes.
//
// # Rate Limiting
//
// Each connection has independent token-bucket rate limiting of inbound
// messages:
//
//	// Default: 100 messages/second, burst 200
//	cfg := ws.NewConfig(":8080", ws.DefaultRateLimitConfig(), ws.AllOrigins())
//
//	// Disabled
//	cfg := ws.NewConfig(":8080", ws.NoRateLimit(), ws.AllOrigins())
//
// When the limit is exceeded the connection is closed with code 1008
// (Policy Violation).
//
// # Shutdown
//
// Closing is a two-task race: whichever pump loop finishes first decides the
// close status (1011 on failure, 1000 otherwise), the outbound queue stops
// accepting writes, and the other loop is waited on for a configurable close
// timeout before the socket is forcibly aborted. Disconnecting a connection
// cancels all of its pending invocations so blocked callers fail instead of
// hanging.
//
// # Important
//
//   - Handlers execute in their own goroutines (no execution order guarantee)
//   - Per-connection outbound order is preserved; order across connections is not
//   - Configure CheckOrigin in production (never use ws.AllOrigins() in production)
package hubwire
