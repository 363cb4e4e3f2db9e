package config

import (
	"os"
	"strconv"
)

// Environment variable names. The POSTGRES_SYNC_* family configures the
// LOCAL (edge) database, POSTGRES_CLIENT_* the REMOTE (authoritative) one.
const (
	EnvLocalHost     = "POSTGRES_SYNC_HOST"
	EnvLocalPort     = "POSTGRES_SYNC_PORT"
	EnvLocalDatabase = "POSTGRES_SYNC_DB"
	EnvLocalUser     = "POSTGRES_SYNC_USER"
	EnvLocalPassword = "POSTGRES_SYNC_PASSWORD"

	EnvRemoteHost     = "POSTGRES_CLIENT_HOST"
	EnvRemotePort     = "POSTGRES_CLIENT_PORT"
	EnvRemoteDatabase = "POSTGRES_CLIENT_DB"
	EnvRemoteUser     = "POSTGRES_CLIENT_USER"
	EnvRemotePassword = "POSTGRES_CLIENT_PASSWORD"

	EnvInterval = "EDGESYNC_INTERVAL_SECONDS"
	EnvLogLevel = "EDGESYNC_LOG_LEVEL"
	EnvAPIKey   = "EDGESYNC_API_KEY"
)

// applyEnvOverrides overwrites cfg fields for every environment variable
// that is set. Invalid numeric values are ignored rather than fatal so that
// a typo in the environment cannot take the daemon down on restart; the
// validator reports the effective value instead.
func applyEnvOverrides(cfg *Config) {
	applyDatabaseEnv(&cfg.Local,
		EnvLocalHost, EnvLocalPort, EnvLocalDatabase, EnvLocalUser, EnvLocalPassword)
	applyDatabaseEnv(&cfg.Remote,
		EnvRemoteHost, EnvRemotePort, EnvRemoteDatabase, EnvRemoteUser, EnvRemotePassword)

	if v := os.Getenv(EnvInterval); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sync.IntervalSeconds = n
		}
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv(EnvAPIKey); v != "" {
		cfg.Sync.APIKey = v
	}
}

func applyDatabaseEnv(d *DatabaseConfig, host, port, database, user, password string) {
	if v := os.Getenv(host); v != "" {
		d.Host = v
	}

	if v := os.Getenv(port); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			d.Port = n
		}
	}

	if v := os.Getenv(database); v != "" {
		d.Database = v
	}

	if v := os.Getenv(user); v != "" {
		d.User = v
	}

	if v := os.Getenv(password); v != "" {
		d.Password = v
	}
}
