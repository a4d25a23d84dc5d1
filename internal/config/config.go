// Package config loads server settings from defaults, an optional config
// file, a .env file and WAVESYNC_* environment variables, in rising order of
// precedence. Command-line flags bound by the caller win over all of them.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "WAVESYNC"

type Config struct {
	Server ServerConfig
	WS     WSConfig
	Coord  CoordConfig
	Locks  LocksConfig
	Log    LogConfig
}

type ServerConfig struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

type WSConfig struct {
	OutboxSize     int
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	OriginPatterns []string
}

type CoordConfig struct {
	InboxSize           int
	DeliveryTimeout     time.Duration
	DeliveryConcurrency int
}

type LocksConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// New returns a viper instance with every default set and the environment
// wired. Callers may bind flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("server.addr", ":5000")
	v.SetDefault("server.read_header_timeout", 5*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("ws.outbox_size", 64)
	v.SetDefault("ws.ping_interval", 25*time.Second)
	v.SetDefault("ws.write_timeout", 3*time.Second)
	v.SetDefault("ws.origin_patterns", []string{})
	v.SetDefault("coord.inbox_size", 256)
	v.SetDefault("coord.delivery_timeout", 2*time.Second)
	v.SetDefault("coord.delivery_concurrency", 16)
	v.SetDefault("locks.ttl", 10*time.Minute)
	v.SetDefault("locks.sweep_interval", 30*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional .env and config file into v and decodes the result.
// An empty file skips the config file.
func Load(v *viper.Viper, file string) (Config, error) {
	// a missing .env is normal outside development
	_ = godotenv.Load()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	cfg := Config{
		Server: ServerConfig{
			Addr:              v.GetString("server.addr"),
			ReadHeaderTimeout: v.GetDuration("server.read_header_timeout"),
			ShutdownTimeout:   v.GetDuration("server.shutdown_timeout"),
		},
		WS: WSConfig{
			OutboxSize:     v.GetInt("ws.outbox_size"),
			PingInterval:   v.GetDuration("ws.ping_interval"),
			WriteTimeout:   v.GetDuration("ws.write_timeout"),
			OriginPatterns: v.GetStringSlice("ws.origin_patterns"),
		},
		Coord: CoordConfig{
			InboxSize:           v.GetInt("coord.inbox_size"),
			DeliveryTimeout:     v.GetDuration("coord.delivery_timeout"),
			DeliveryConcurrency: v.GetInt("coord.delivery_concurrency"),
		},
		Locks: LocksConfig{
			TTL:           v.GetDuration("locks.ttl"),
			SweepInterval: v.GetDuration("locks.sweep_interval"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.WS.OutboxSize <= 0 {
		return fmt.Errorf("ws.outbox_size must be positive, got %d", c.WS.OutboxSize)
	}
	if c.Coord.InboxSize <= 0 {
		return fmt.Errorf("coord.inbox_size must be positive, got %d", c.Coord.InboxSize)
	}
	if c.Locks.TTL > 0 && c.Locks.SweepInterval <= 0 {
		return errors.New("locks.sweep_interval must be positive when locks.ttl is set")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	return nil
}
