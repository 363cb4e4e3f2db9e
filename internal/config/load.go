package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/BurntSushi/toml"
)

// Load resolves the effective configuration: TOML file (if path is non-empty
// or the default path exists), then environment overrides, then defaults,
// then validation. A missing file at the default path is not an error — a
// pure-environment deployment is supported.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	explicit := path != ""
	if path == "" {
		path = DefaultPath()
	}

	if err := loadFile(cfg, path, explicit); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultPath returns the conventional config file location.
func DefaultPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir + "/edgesync/config.toml"
	}

	return "/etc/edgesync/config.toml"
}

// loadFile decodes the TOML file into cfg. A missing file is fatal only when
// the user named it explicitly.
func loadFile(cfg *Config, path string, explicit bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil
		}

		return fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}

	return nil
}
