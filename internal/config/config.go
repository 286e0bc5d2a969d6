// Package config loads and validates wolfpack's config.toml, the single
// file describing where state lives on disk and which repositories to
// pull from.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the top-level shape of config.toml.
type Config struct {
	StoreDir string `toml:"store_dir"`
	CacheDir string `toml:"cache_dir"`
	MaxAge   int64  `toml:"max_age"`

	Repo map[string]Repo `toml:"repo"`
}

// Repo is one [repo.<name>] table.
type Repo struct {
	Format        string   `toml:"format"`
	BaseURLs      []string `toml:"base_urls"`
	Suites        []string `toml:"suites"`
	Components    []string `toml:"components"`
	PublicKeyFile string   `toml:"public_key_file"`
	Verify        *bool    `toml:"verify,omitempty"`
}

// VerifyEnabled returns whether signature verification is on for this repo;
// the default, when unset, is true.
func (r Repo) VerifyEnabled() bool {
	if r.Verify == nil {
		return true
	}
	return *r.Verify
}

// Load reads and validates path, rejecting any key not named above —
// config.toml is a closed schema, not an extensible one.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg Config
	meta, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config: %s: unknown key(s): %v", path, undecoded)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.StoreDir == "" {
		return fmt.Errorf("store_dir is required")
	}
	if c.CacheDir == "" {
		return fmt.Errorf("cache_dir is required")
	}
	if c.MaxAge <= 0 {
		return fmt.Errorf("max_age must be a positive number of seconds")
	}
	for name, r := range c.Repo {
		if len(r.BaseURLs) == 0 {
			return fmt.Errorf("repo %q: base_urls is required", name)
		}
		if len(r.Suites) == 0 {
			return fmt.Errorf("repo %q: suites is required", name)
		}
		if len(r.Components) == 0 {
			return fmt.Errorf("repo %q: components is required", name)
		}
		if r.VerifyEnabled() && r.PublicKeyFile == "" {
			return fmt.Errorf("repo %q: public_key_file is required when verify is true", name)
		}
	}
	return nil
}
