// Package config loads the stackd TOML configuration: the fixed service set
// plus supervisor, monitor, server, metrics and history settings.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/stackd-io/stackd/internal/logger"
	"github.com/stackd-io/stackd/internal/service"
)

// ServiceConfig is one supervised service as declared in TOML. Declaration
// order is start order.
type ServiceConfig struct {
	Name           string        `mapstructure:"name"`
	Port           int           `mapstructure:"port"`
	Command        []string      `mapstructure:"command"`
	WorkDir        string        `mapstructure:"workdir"`
	Env            []string      `mapstructure:"env"`
	HealthURL      string        `mapstructure:"health_url"`
	AcceptStatuses []int         `mapstructure:"accept_statuses"` // default [200]
	StartupTimeout time.Duration `mapstructure:"startup_timeout"`
}

type ServerConfig struct {
	Listen   string `mapstructure:"listen"`
	BasePath string `mapstructure:"base_path"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

type MonitorConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	Threshold int           `mapstructure:"threshold"`
	Grace     time.Duration `mapstructure:"grace"`
}

type HistoryConfig struct {
	DSN string `mapstructure:"dsn"` // sqlite path/URL or postgres URL; empty disables

	// Optional ClickHouse sink alongside the SQL one.
	ClickHouseAddr     string `mapstructure:"clickhouse_addr"`
	ClickHouseDatabase string `mapstructure:"clickhouse_database"`
	ClickHouseUsername string `mapstructure:"clickhouse_username"`
	ClickHousePassword string `mapstructure:"clickhouse_password"`
	ClickHouseTable    string `mapstructure:"clickhouse_table"`
}

// Config is the top-level TOML structure.
type Config struct {
	StateFile string          `mapstructure:"state_file"`
	Log       logger.Config   `mapstructure:"log"`
	Server    *ServerConfig   `mapstructure:"server"`
	Metrics   *MetricsConfig  `mapstructure:"metrics"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	History   HistoryConfig   `mapstructure:"history"`
	Services  []ServiceConfig `mapstructure:"services"`
}

// Load reads and validates a TOML config file.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.Services) == 0 {
		return fmt.Errorf("no services configured")
	}
	seen := make(map[string]bool, len(c.Services))
	for i, sc := range c.Services {
		if sc.Name == "" {
			return fmt.Errorf("services[%d]: name required", i)
		}
		if seen[sc.Name] {
			return fmt.Errorf("duplicate service name %q", sc.Name)
		}
		seen[sc.Name] = true
		if len(sc.Command) == 0 {
			return fmt.Errorf("service %q: command required", sc.Name)
		}
		if sc.Port <= 0 || sc.Port > 65535 {
			return fmt.Errorf("service %q: invalid port %d", sc.Name, sc.Port)
		}
	}
	return nil
}

// ServiceConfigs converts the declared services into descriptor configs,
// building the per-service healthy-status predicate from accept_statuses.
func (c *Config) ServiceConfigs() []service.Config {
	out := make([]service.Config, 0, len(c.Services))
	for _, sc := range c.Services {
		out = append(out, service.Config{
			Name:           sc.Name,
			Port:           sc.Port,
			Command:        sc.Command,
			WorkDir:        sc.WorkDir,
			Env:            sc.Env,
			HealthURL:      sc.HealthURL,
			Healthy:        healthyPredicate(sc.AcceptStatuses),
			StartupTimeout: sc.StartupTimeout,
		})
	}
	return out
}

// healthyPredicate generalizes the dev-server case: any configured status
// counts as healthy. Empty means 200 only.
func healthyPredicate(accept []int) func(int) bool {
	if len(accept) == 0 {
		return nil // descriptor default: 200 only
	}
	set := make(map[int]bool, len(accept))
	for _, code := range accept {
		set[code] = true
	}
	return func(status int) bool { return set[status] }
}
