// Package config loads and validates the daemon configuration from a TOML
// file and environment variables. Environment variables always win over the
// file; defaults fill anything left unset.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the sync daemon.
type Config struct {
	Local   DatabaseConfig `toml:"local"`
	Remote  DatabaseConfig `toml:"remote"`
	Sync    SyncConfig     `toml:"sync"`
	Logging LoggingConfig  `toml:"logging"`
}

// DatabaseConfig describes one PostgreSQL endpoint (LOCAL or REMOTE).
type DatabaseConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Database string `toml:"database"`
	User     string `toml:"user"`
	Password string `toml:"password"`

	// Pool tuning. Zero values are replaced by defaults in applyDefaults.
	MaxConns        int `toml:"max_conns"`
	ConnIdleSeconds int `toml:"conn_idle_seconds"`
	ConnectTimeout  int `toml:"connect_timeout_seconds"`
}

// SyncConfig holds scheduler and daemon settings.
type SyncConfig struct {
	IntervalSeconds int    `toml:"interval_seconds"`
	APIKey          string `toml:"api_key"`
	PIDFile         string `toml:"pid_file"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level string `toml:"level"` // debug, info, warn, error
}

// DSN renders the keyword/value connection string pgx expects.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s connect_timeout=%d",
		d.Host, d.Port, d.Database, d.User, d.Password, d.ConnectTimeout,
	)
}

// Interval returns the sync cadence as a duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Sync.IntervalSeconds) * time.Second
}

// ConnIdle returns the pool idle timeout for this endpoint.
func (d DatabaseConfig) ConnIdle() time.Duration {
	return time.Duration(d.ConnIdleSeconds) * time.Second
}
