// Package ws is the public entry point for running a hubwire WebSocket
// server.
package ws

import (
	"net/http"

	"github.com/hubwire/hubwire"
	"github.com/hubwire/hubwire/internal/server"
)

type Config = server.Config
type RateLimitConfig = server.RateLimitConfig
type CheckOriginFn = server.CheckOriginFn
type UserResolverFn = server.UserResolverFn
type ConnectFn = server.ConnectFn
type DisconnectFn = server.DisconnectFn

// Subprotocol identifiers accepted during upgrade negotiation.
const (
	SubprotocolJSON    = server.SubprotocolJSON
	SubprotocolMsgpack = server.SubprotocolMsgpack
)

// New creates a hubwire WebSocket server from cfg. Unset fields get defaults:
// JSON+msgpack codecs, binary transfer, 256-message queues, a 10s close
// timeout and the default rate limit.
//
// Example:
//
//	srv := ws.New(ws.NewConfig(":8080", ws.DefaultRateLimitConfig(), ws.AllOrigins()))
//	srv.RegisterHandler("Echo", func(conn hubwire.Connection, args []any) (any, error) {
//	    return args, nil
//	})
//	srv.Start(ctx)
func New(cfg Config) hubwire.Server {
	return server.New(cfg)
}

// NewConfig builds a Config with the most common knobs.
func NewConfig(addr string, rateLimit *RateLimitConfig, checkOrigin CheckOriginFn) Config {
	return Config{
		Addr:        addr,
		RateLimit:   rateLimit,
		CheckOrigin: checkOrigin,
	}
}

// AllOrigins returns a checkOrigin function that allows all origins.
// Development use only.
func AllOrigins() CheckOriginFn {
	return func(r *http.Request) bool {
		return true
	}
}

// DefaultRateLimitConfig allows 100 messages per second with burst of 200.
func DefaultRateLimitConfig() *RateLimitConfig {
	return server.DefaultRateLimitConfig()
}

// NoRateLimit returns a configuration with rate limiting disabled.
func NoRateLimit() *RateLimitConfig {
	return server.NoRateLimit()
}
