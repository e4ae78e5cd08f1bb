// Package config loads himdctl's on-disk YAML configuration, the way
// jdfalk-audiobook-organizer's internal/config package layers a YAML file
// on top of its runtime settings.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is himdctl's persistent configuration file.
type Config struct {
	// MountDir is the local directory a HiMD volume or disc image is
	// mounted at, passed to internal/osfs.
	MountDir string `yaml:"mount_dir"`

	// DefaultEncoding names a string encoding. It is loaded and saved with
	// the rest of the file, but nothing in himdctl reads it: titles are
	// always encoded by trying Latin-1, Shift-JIS, then UTF-16BE.
	DefaultEncoding string `yaml:"default_encoding"`

	// AllowUnsafeWipe permits the "wipe" subcommand to run without an
	// interactive confirmation prompt.
	AllowUnsafeWipe bool `yaml:"allow_unsafe_wipe"`
}

// Default returns the built-in configuration used when no file is found.
func Default() Config {
	return Config{
		DefaultEncoding: "latin1",
		AllowUnsafeWipe: false,
	}
}

// Load reads a YAML config file at path, filling in defaults for any field
// the file leaves unset. A missing file is not an error: Default() is
// returned unchanged.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.DefaultEncoding == "" {
		cfg.DefaultEncoding = "latin1"
	}
	return cfg, nil
}

// Save writes cfg to path as YAML, creating or truncating the file.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
