package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/svcpanel/internal/logger"
	"github.com/loykin/svcpanel/internal/registry"
)

// Config is the top-level TOML structure consumed by the daemon.
//
//	max_workers = 8
//	grace_period = "5s"
//	[log]        # supervisor log level + captured service output
//	[store]      # optional settings/state persistence (sqlite or postgres DSN)
//	[history]    # optional ClickHouse lifecycle-event export
//	[server]     # HTTP API
//	[[services]] # service definitions
type Config struct {
	MaxWorkers  int                   `toml:"max_workers" mapstructure:"max_workers"`
	GracePeriod time.Duration         `toml:"grace_period" mapstructure:"grace_period"`
	MaxLog      int                   `toml:"max_log_entries" mapstructure:"max_log_entries"`
	Env         map[string]string     `toml:"env" mapstructure:"env"`
	Log         logger.Config         `toml:"log" mapstructure:"log"`
	Store       StoreConfig           `toml:"store" mapstructure:"store"`
	History     HistoryConfig         `toml:"history" mapstructure:"history"`
	Server      ServerConfig          `toml:"server" mapstructure:"server"`
	Services    []registry.Definition `toml:"services" mapstructure:"services"`
}

type StoreConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

type HistoryConfig struct {
	ClickHouseAddr  string `toml:"clickhouse_addr" mapstructure:"clickhouse_addr"`
	ClickHouseTable string `toml:"clickhouse_table" mapstructure:"clickhouse_table"`
}

type ServerConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
	Metrics  bool   `toml:"metrics" mapstructure:"metrics"`
}

// Defaults mirror the original control panel settings.
const (
	DefaultMaxWorkers  = 8
	DefaultGracePeriod = 5 * time.Second
	DefaultListen      = ":8080"
	DefaultBasePath    = "/api"
)

// Load parses the TOML config at path and applies defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = DefaultMaxWorkers
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = DefaultGracePeriod
	}
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}
	if c.Server.BasePath == "" {
		c.Server.BasePath = DefaultBasePath
	}
	if c.History.ClickHouseAddr != "" && c.History.ClickHouseTable == "" {
		c.History.ClickHouseTable = "svcpanel_events"
	}
}

func (c *Config) validate() error {
	seen := make(map[string]bool, len(c.Services))
	for _, d := range c.Services {
		if d.Name == "" {
			return fmt.Errorf("service with empty name (path %q)", d.Path)
		}
		if seen[d.Name] {
			return fmt.Errorf("duplicate service %q in config", d.Name)
		}
		seen[d.Name] = true
	}
	return nil
}

// ApplySettings overlays store-persisted settings (the original kept these in
// a relational settings table editable from the UI). Unknown keys and
// unparsable values are skipped so a stale table never breaks startup.
func (c *Config) ApplySettings(settings map[string]string) {
	if v, ok := settings["max_workers"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.MaxWorkers = n
		}
	}
	if v, ok := settings["grace_period"]; ok {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.GracePeriod = d
		}
	}
	if v, ok := settings["log_level"]; ok && v != "" {
		c.Log.Level = v
	}
}
