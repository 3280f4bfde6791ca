// Package config loads tropa settings from defaults, an optional tropa.yaml,
// TROPA_* environment variables and command-line flags, in increasing order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/gabrielmiguelok/tropa/internal/storage"
	"github.com/gabrielmiguelok/tropa/pkg/core"
)

// EnvPrefix prefixes every environment variable, e.g. TROPA_ADDR.
const EnvPrefix = "TROPA"

// Config is the full application configuration.
type Config struct {
	core.Config `mapstructure:",squash"`

	// Addr is the HTTP listen address.
	Addr string `mapstructure:"addr"`

	Database storage.Config `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Drafts   DraftConfig    `mapstructure:"drafts"`
	Lookup   LookupConfig   `mapstructure:"lookup"`
}

// LogConfig selects the log level and handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DraftConfig controls wizard drafts.
type DraftConfig struct {
	// MaxAge is how long an untouched draft is kept by the purge job.
	MaxAge time.Duration `mapstructure:"max_age"`

	// PurgeInterval is how often serve purges stale drafts. Zero disables it.
	PurgeInterval time.Duration `mapstructure:"purge_interval"`
}

// LookupConfig sizes the place selector cache.
type LookupConfig struct {
	CacheSize int           `mapstructure:"cache_size"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Config:   core.DefaultConfig(),
		Addr:     "127.0.0.1:8080",
		Database: storage.Config{Path: "tropa.db", BusyTimeout: 5 * time.Second},
		Log:      LogConfig{Level: "info", Format: "text"},
		Drafts:   DraftConfig{MaxAge: 30 * 24 * time.Hour, PurgeInterval: time.Hour},
		Lookup:   LookupConfig{CacheSize: 256, CacheTTL: 10 * time.Minute},
	}
}

// SetDefaults registers every key with its default so that environment
// variables are picked up for all of them.
func SetDefaults(v *viper.Viper) {
	d := Default()
	defaults := map[string]any{
		"addr":                       d.Addr,
		"database.path":              d.Database.Path,
		"database.busy_timeout":      d.Database.BusyTimeout,
		"log.level":                  d.Log.Level,
		"log.format":                 d.Log.Format,
		"drafts.max_age":             d.Drafts.MaxAge,
		"drafts.purge_interval":      d.Drafts.PurgeInterval,
		"lookup.cache_size":          d.Lookup.CacheSize,
		"lookup.cache_ttl":           d.Lookup.CacheTTL,
		"timeouts.request":           d.Timeouts.RequestTimeout,
		"timeouts.mount":             d.Timeouts.ComponentMount,
		"timeouts.event":             d.Timeouts.ComponentEvent,
		"timeouts.ws_read":           d.Timeouts.WebSocketRead,
		"timeouts.ws_write":          d.Timeouts.WebSocketWrite,
		"timeouts.ping":              d.Timeouts.PingInterval,
		"timeouts.shutdown":          d.Timeouts.GracefulShutdown,
		"security.allowed_origins":   d.Security.AllowedOrigins,
		"security.insecure_dev_mode": d.Security.InsecureDevMode,
		"max_message_size":           d.MaxMessageSize,
		"max_connections":            d.MaxConnections,
		"info_queue_size":            d.InfoQueueSize,
		"codec":                      d.Codec,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// Load reads the configuration. When file is empty, tropa.yaml is looked up
// in the working directory and is optional.
func Load(v *viper.Viper, file string) (Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("tropa")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the runtime settings and the application settings.
func (c Config) Validate() error {
	if err := c.Config.Validate(); err != nil {
		return err
	}
	if c.Addr == "" {
		return errors.New("config: addr is required")
	}
	if c.Database.Path == "" {
		return errors.New("config: database.path is required")
	}
	return nil
}
