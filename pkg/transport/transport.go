// Package transport carries protocol messages between the live runtime and
// browsers over WebSocket connections.
package transport

import (
	"errors"
	"time"

	"github.com/gabrielmiguelok/tropa/pkg/core"
)

// Common transport errors.
var (
	ErrNotConnected     = errors.New("transport not connected")
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendTimeout      = errors.New("send timeout")
	ErrOriginNotAllowed = errors.New("origin not allowed")
)

// Config holds transport configuration.
type Config struct {
	// ReadTimeout is the maximum idle time between client frames.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait for a write.
	WriteTimeout time.Duration

	// PingInterval is how often to ping the client.
	PingInterval time.Duration

	// MaxMessageSize is the maximum message size in bytes.
	MaxMessageSize int64

	// SendBufferSize is the size of the send channel buffer.
	SendBufferSize int

	// ReceiveBufferSize is the size of the receive channel buffer.
	ReceiveBufferSize int

	// AllowedOrigins lists cross-origin pages allowed to connect.
	AllowedOrigins []string

	// InsecureDevMode disables origin validation (ONLY for development).
	InsecureDevMode bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ReadTimeout:       90 * time.Second,
		WriteTimeout:      10 * time.Second,
		PingInterval:      30 * time.Second,
		MaxMessageSize:    64 * 1024,
		SendBufferSize:    64,
		ReceiveBufferSize: 64,
	}
}

// ConfigFrom derives the transport settings from the runtime config.
func ConfigFrom(cfg core.Config) Config {
	c := DefaultConfig()
	if cfg.Timeouts.WebSocketRead > 0 {
		c.ReadTimeout = cfg.Timeouts.WebSocketRead
	}
	if cfg.Timeouts.WebSocketWrite > 0 {
		c.WriteTimeout = cfg.Timeouts.WebSocketWrite
	}
	if cfg.Timeouts.PingInterval > 0 {
		c.PingInterval = cfg.Timeouts.PingInterval
	}
	if cfg.MaxMessageSize > 0 {
		c.MaxMessageSize = cfg.MaxMessageSize
	}
	c.AllowedOrigins = cfg.Security.AllowedOrigins
	c.InsecureDevMode = cfg.Security.InsecureDevMode
	return c
}
