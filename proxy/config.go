package proxy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the proxy's runtime settings. LoadConfig overlays the yaml
// file on DefaultConfig, so keys absent from a partial file keep their
// default values; a key set explicitly (even to a zero value) wins.
type Config struct {
	// Listen is the address the forward proxy accepts clients on.
	Listen string `yaml:"listen"`

	// AdminListen is the address for the admin endpoints (/healthz,
	// /metrics, /stats). Empty disables the admin server.
	AdminListen string `yaml:"admin_listen"`

	// MaxCacheSize is the cache's total byte budget.
	MaxCacheSize int64 `yaml:"max_cache_size"`

	// MaxObjectSize caps the serialized size of a cacheable response.
	// Larger responses are relayed to the client without caching.
	MaxObjectSize int64 `yaml:"max_object_size"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Listen:        ":8080",
		AdminListen:   ":9090",
		MaxCacheSize:  1024 * 1024,
		MaxObjectSize: 100 * 1024,
	}
}

// LoadConfig reads a yaml config file and overlays it on the defaults.
// An empty path returns the defaults unchanged.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("proxy: read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("proxy: parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects settings the proxy cannot run with.
func (c Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("proxy: listen address must not be empty")
	}
	if c.MaxCacheSize <= 0 {
		return fmt.Errorf("proxy: max_cache_size must be > 0, got %d", c.MaxCacheSize)
	}
	if c.MaxObjectSize <= 0 {
		return fmt.Errorf("proxy: max_object_size must be > 0, got %d", c.MaxObjectSize)
	}
	if c.MaxObjectSize > c.MaxCacheSize {
		return fmt.Errorf("proxy: max_object_size %d exceeds max_cache_size %d",
			c.MaxObjectSize, c.MaxCacheSize)
	}
	return nil
}
