package config

import (
	"fmt"
	"strings"
)

// validLogLevels is the accepted set for logging.level.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the resolved configuration and returns an error listing
// every problem found, not just the first.
func Validate(cfg *Config) error {
	var problems []string

	problems = append(problems, validateDatabase("local", cfg.Local)...)
	problems = append(problems, validateDatabase("remote", cfg.Remote)...)

	if cfg.Sync.IntervalSeconds < 1 {
		problems = append(problems,
			fmt.Sprintf("sync.interval_seconds must be >= 1 (got %d)", cfg.Sync.IntervalSeconds))
	}

	if !validLogLevels[cfg.Logging.Level] {
		problems = append(problems,
			fmt.Sprintf("logging.level must be one of debug/info/warn/error (got %q)", cfg.Logging.Level))
	}

	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}

	return nil
}

func validateDatabase(side string, d DatabaseConfig) []string {
	var problems []string

	if d.Host == "" {
		problems = append(problems, side+".host is required")
	}

	if d.Database == "" {
		problems = append(problems, side+".database is required")
	}

	if d.User == "" {
		problems = append(problems, side+".user is required")
	}

	if d.Port < 1 || d.Port > 65535 {
		problems = append(problems, fmt.Sprintf("%s.port out of range (got %d)", side, d.Port))
	}

	return problems
}
