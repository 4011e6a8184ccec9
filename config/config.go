// Package config loads the dbcrossbar configuration file and holds the
// two pieces of process-wide mutable state: the credential registry and
// the TLS client-cert / extra-CA registry. Both follow a "register
// early, read often" discipline: they are populated at startup before
// any cloud client is built, and reads never block after that.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// A Config holds the parsed dbcrossbar.toml.
type Config struct {
	// Temporary lists scratch locators added to every transfer, in
	// addition to any --temporary flags.
	Temporary []string `toml:"temporary"`
}

// Dir returns the configuration directory: $DBCROSSBAR_CONFIG_DIR, or
// the OS config dir plus "dbcrossbar".
func Dir() (string, error) {
	if dir := os.Getenv("DBCROSSBAR_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: cannot find config directory: %w", err)
	}
	return filepath.Join(base, "dbcrossbar"), nil
}

// Load reads dbcrossbar.toml from the configuration directory. A
// missing file is not an error; the zero Config is returned.
func Load() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	return LoadFrom(filepath.Join(dir, "dbcrossbar.toml"))
}

// LoadFrom reads a specific configuration file.
func LoadFrom(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return &cfg, nil
}
