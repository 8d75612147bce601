package config

import (
	"fmt"
	"strings"
	"time"
)

// Config represents the persistent lmgate configuration stored as config.toml
// in the .lmgate/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version int           `toml:"version"`
	Gateway GatewayConfig `toml:"gateway"`
	API     APIConfig     `toml:"api"`
	Storage StorageConfig `toml:"storage"`
	Events  EventsConfig  `toml:"events"`
	Client  ClientConfig  `toml:"client"`
}

// GatewayConfig holds gateway settings. The upstream address is read once at
// startup and never changes for the lifetime of the process.
type GatewayConfig struct {
	Listen   string `toml:"listen,omitempty"`
	Upstream string `toml:"upstream,omitempty"`

	// Delimiter is the upstream line delimiter: "newline" or "blank-line".
	Delimiter string `toml:"delimiter,omitempty"`

	// Field is the record field that carries generated text.
	Field string `toml:"field,omitempty"`

	DefaultModel string `toml:"default_model,omitempty"`

	// ConnectTimeout is a Go duration string (e.g. "60s") bounding each
	// upstream connection attempt.
	ConnectTimeout string `toml:"connect_timeout,omitempty"`
}

// ConnectTimeoutDuration parses ConnectTimeout.
func (g GatewayConfig) ConnectTimeoutDuration() (time.Duration, error) {
	if g.ConnectTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(g.ConnectTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid gateway.connect_timeout: %w", err)
	}
	return d, nil
}

// APIConfig holds history API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// StorageConfig holds generation record storage settings. When both are
// empty records are kept in memory.
type StorageConfig struct {
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// EventsConfig holds event stream settings. Publishing is disabled when no
// brokers are configured.
type EventsConfig struct {
	KafkaBrokers string `toml:"kafka_brokers,omitempty"`
	KafkaTopic   string `toml:"kafka_topic,omitempty"`
}

// Brokers splits the comma-separated broker list.
func (e EventsConfig) Brokers() []string {
	var brokers []string
	for b := range strings.SplitSeq(e.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// ClientConfig holds settings for CLI commands that talk to a running
// gateway (e.g. lmgate generate, lmgate models). Values are full URLs.
type ClientConfig struct {
	GatewayTarget string `toml:"gateway_target,omitempty"`
	APITarget     string `toml:"api_target,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"gateway.listen": {
		get: func(c *Config) string { return c.Gateway.Listen },
		set: func(c *Config, v string) error { c.Gateway.Listen = v; return nil },
	},
	"gateway.upstream": {
		get: func(c *Config) string { return c.Gateway.Upstream },
		set: func(c *Config, v string) error { c.Gateway.Upstream = v; return nil },
	},
	"gateway.delimiter": {
		get: func(c *Config) string { return c.Gateway.Delimiter },
		set: func(c *Config, v string) error {
			switch v {
			case "newline", "blank-line":
				c.Gateway.Delimiter = v
				return nil
			default:
				return fmt.Errorf("invalid value for gateway.delimiter: %q (available: newline, blank-line)", v)
			}
		},
	},
	"gateway.field": {
		get: func(c *Config) string { return c.Gateway.Field },
		set: func(c *Config, v string) error { c.Gateway.Field = v; return nil },
	},
	"gateway.default_model": {
		get: func(c *Config) string { return c.Gateway.DefaultModel },
		set: func(c *Config, v string) error { c.Gateway.DefaultModel = v; return nil },
	},
	"gateway.connect_timeout": {
		get: func(c *Config) string { return c.Gateway.ConnectTimeout },
		set: func(c *Config, v string) error {
			if _, err := time.ParseDuration(v); err != nil {
				return fmt.Errorf("invalid value for gateway.connect_timeout: %w", err)
			}
			c.Gateway.ConnectTimeout = v
			return nil
		},
	},
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"storage.postgres_dsn": {
		get: func(c *Config) string { return c.Storage.PostgresDSN },
		set: func(c *Config, v string) error { c.Storage.PostgresDSN = v; return nil },
	},
	"events.kafka_brokers": {
		get: func(c *Config) string { return c.Events.KafkaBrokers },
		set: func(c *Config, v string) error { c.Events.KafkaBrokers = v; return nil },
	},
	"events.kafka_topic": {
		get: func(c *Config) string { return c.Events.KafkaTopic },
		set: func(c *Config, v string) error { c.Events.KafkaTopic = v; return nil },
	},
	"client.gateway_target": {
		get: func(c *Config) string { return c.Client.GatewayTarget },
		set: func(c *Config, v string) error { c.Client.GatewayTarget = v; return nil },
	},
	"client.api_target": {
		get: func(c *Config) string { return c.Client.APITarget },
		set: func(c *Config, v string) error { c.Client.APITarget = v; return nil },
	},
}
