package core

import (
	"time"
)

// TimeoutConfig configures timeouts for various operations.
type TimeoutConfig struct {
	// RequestTimeout is the overall timeout for HTTP requests.
	RequestTimeout time.Duration `mapstructure:"request"`

	// ComponentMount is the timeout for component Mount() calls.
	ComponentMount time.Duration `mapstructure:"mount"`

	// ComponentEvent is the timeout for HandleEvent() and HandleInfo() calls.
	ComponentEvent time.Duration `mapstructure:"event"`

	// WebSocketRead is the idle read timeout for live connections.
	WebSocketRead time.Duration `mapstructure:"ws_read"`

	// WebSocketWrite is the write timeout for live connections.
	WebSocketWrite time.Duration `mapstructure:"ws_write"`

	// PingInterval is how often the server pings live connections.
	PingInterval time.Duration `mapstructure:"ping"`

	// GracefulShutdown is the timeout for graceful shutdown.
	GracefulShutdown time.Duration `mapstructure:"shutdown"`
}

// DefaultTimeoutConfig returns default timeout configuration.
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		RequestTimeout:   30 * time.Second,
		ComponentMount:   5 * time.Second,
		ComponentEvent:   5 * time.Second,
		WebSocketRead:    90 * time.Second,
		WebSocketWrite:   10 * time.Second,
		PingInterval:     30 * time.Second,
		GracefulShutdown: 15 * time.Second,
	}
}

// SecurityConfig configures security settings.
type SecurityConfig struct {
	// AllowedOrigins for live connections. Empty means same-origin only.
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// InsecureDevMode disables origin checks (ONLY for development!).
	InsecureDevMode bool `mapstructure:"insecure_dev_mode"`
}

// Config combines the live runtime settings.
type Config struct {
	Timeouts TimeoutConfig  `mapstructure:"timeouts"`
	Security SecurityConfig `mapstructure:"security"`

	// MaxMessageSize caps a single client frame.
	MaxMessageSize int64 `mapstructure:"max_message_size"`

	// MaxConnections caps concurrent live connections. Zero means no limit.
	MaxConnections int `mapstructure:"max_connections"`

	// InfoQueueSize is the per-socket HandleInfo backlog.
	InfoQueueSize int `mapstructure:"info_queue_size"`

	// Codec is the default wire codec, "json" or "msgpack".
	Codec string `mapstructure:"codec"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Timeouts:       DefaultTimeoutConfig(),
		MaxMessageSize: 64 * 1024,
		MaxConnections: 1000,
		InfoQueueSize:  16,
		Codec:          "json",
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.MaxMessageSize <= 0 {
		return ErrInvalidMaxMessageSize
	}
	if c.Timeouts.ComponentEvent <= 0 || c.Timeouts.ComponentMount <= 0 {
		return ErrInvalidTimeout
	}
	if c.Codec != "" && c.Codec != "json" && c.Codec != "msgpack" {
		return ErrInvalidCodec
	}
	return nil
}

// Configuration errors.
var (
	ErrInvalidMaxMessageSize = configError("max_message_size must be positive")
	ErrInvalidTimeout        = configError("component timeouts must be positive")
	ErrInvalidCodec          = configError("codec must be json or msgpack")
)

type configError string

func (e configError) Error() string { return string(e) }
