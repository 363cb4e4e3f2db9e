package config

// Default values applied when neither the config file nor the environment
// provides a setting.
const (
	DefaultLocalPort  = 5432
	DefaultRemotePort = 5432

	DefaultMaxConns        = 10
	DefaultConnIdleSeconds = 30
	DefaultConnectTimeout  = 5 // seconds; establishment only, not queries

	DefaultIntervalSeconds = 60
	DefaultLogLevel        = "info"
)

// applyDefaults fills zero-valued fields in place.
func applyDefaults(cfg *Config) {
	applyDatabaseDefaults(&cfg.Local, DefaultLocalPort)
	applyDatabaseDefaults(&cfg.Remote, DefaultRemotePort)

	if cfg.Sync.IntervalSeconds == 0 {
		cfg.Sync.IntervalSeconds = DefaultIntervalSeconds
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
}

func applyDatabaseDefaults(d *DatabaseConfig, port int) {
	if d.Port == 0 {
		d.Port = port
	}

	if d.MaxConns == 0 {
		d.MaxConns = DefaultMaxConns
	}

	if d.ConnIdleSeconds == 0 {
		d.ConnIdleSeconds = DefaultConnIdleSeconds
	}

	if d.ConnectTimeout == 0 {
		d.ConnectTimeout = DefaultConnectTimeout
	}
}
