// Package config loads the daemon configuration from TOML.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/sailfishos-mirror/kdbusaddons/internal/logger"
	"github.com/sailfishos-mirror/kdbusaddons/internal/service"
)

// FileConfig represents the top-level TOML structure.
type FileConfig struct {
	Service ServiceConfig  `toml:"service" mapstructure:"service"`
	Log     *logger.Config `toml:"log" mapstructure:"log"`
	HTTP    *HTTPConfig    `toml:"http" mapstructure:"http"`
	Metrics *MetricsConfig `toml:"metrics" mapstructure:"metrics"`
	History *HistoryConfig `toml:"history" mapstructure:"history"`
}

type ServiceConfig struct {
	// Domain is the application's organization domain (e.g. "kde.org");
	// Name is the application name. Together they make the bus name.
	Domain string `toml:"domain" mapstructure:"domain"`
	Name   string `toml:"name" mapstructure:"name"`

	// Mode is "unique" (default) or "multiple".
	Mode string `toml:"mode" mapstructure:"mode"`

	Replace         bool          `toml:"replace" mapstructure:"replace"`
	NoExitOnFailure bool          `toml:"no_exit_on_failure" mapstructure:"no_exit_on_failure"`
	ReplaceTimeout  time.Duration `toml:"replace_timeout" mapstructure:"replace_timeout"`

	// Delivery is "sync" (default) or "queued".
	Delivery  string `toml:"delivery" mapstructure:"delivery"`
	QueueSize int    `toml:"queue_size" mapstructure:"queue_size"`
}

type HTTPConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

type HistoryConfig struct {
	// DSNs lists activation-history sinks: sqlite paths, postgres:// or
	// clickhouse:// URLs. Events fan out to all of them.
	DSNs []string `toml:"dsns" mapstructure:"dsns"`
}

// Load reads and validates a TOML config file.
func Load(path string) (*FileConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, err
	}
	if err := fc.Validate(); err != nil {
		return nil, err
	}
	return &fc, nil
}

// Validate rejects values the coordinator would refuse later, so the
// daemon fails at startup with a config-shaped error.
func (fc *FileConfig) Validate() error {
	s := fc.Service
	if s.Domain == "" {
		return fmt.Errorf("config: service.domain is required")
	}
	if s.Name == "" {
		return fmt.Errorf("config: service.name is required")
	}
	switch s.Mode {
	case "", "unique", "multiple":
	default:
		return fmt.Errorf("config: service.mode %q (want unique or multiple)", s.Mode)
	}
	switch s.Delivery {
	case "", "sync", "queued":
	default:
		return fmt.Errorf("config: service.delivery %q (want sync or queued)", s.Delivery)
	}
	return nil
}

// Options translates the service section into startup option flags.
func (s ServiceConfig) Options() service.StartupOptions {
	opts := service.Unique
	if s.Mode == "multiple" {
		opts = service.Multiple
	}
	if s.Replace {
		opts |= service.Replace
	}
	if s.NoExitOnFailure {
		opts |= service.NoExitOnFailure
	}
	return opts
}

// DeliveryMode translates the delivery string, defaulting to sync.
func (s ServiceConfig) DeliveryMode() service.DeliveryMode {
	if s.Delivery == "queued" {
		return service.DeliverQueued
	}
	return service.DeliverSync
}
