package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// TomlUpstream represents upstream feed source configuration from TOML
type TomlUpstream struct {
	BaseUrl        string `toml:"base_url"`
	AuthToken      string `toml:"auth_token,omitempty"`
	PageSize       int    `toml:"page_size,omitempty"`
	TimeoutSeconds int    `toml:"timeout_seconds,omitempty"`
	MaxRetries     int    `toml:"max_retries,omitempty"`
}

// TomlSync represents sync engine configuration
type TomlSync struct {
	Workers            int `toml:"workers,omitempty"`
	MaxPages           int `toml:"max_pages,omitempty"`
	RateLimitPerMinute int `toml:"rate_limit_per_minute,omitempty"`
	CacheTTLMinutes    int `toml:"cache_ttl_minutes,omitempty"`
	CacheSize          int `toml:"cache_size,omitempty"`
}

// TomlConfig represents the top-level configuration
type TomlConfig struct {
	Upstream TomlUpstream `toml:"upstream"`
	Sync     TomlSync     `toml:"sync"`
}

// Defaults applied to fields the file leaves unset.
const (
	DefaultPageSize           = 20
	DefaultTimeoutSeconds     = 30
	DefaultWorkers            = 4
	DefaultMaxPages           = 50
	DefaultRateLimitPerMinute = 30
	DefaultCacheTTLMinutes    = 30
	DefaultCacheSize          = 256
)

func LoadConfig(path string) (*TomlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config TomlConfig
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	config.applyDefaults()

	if config.Upstream.BaseUrl == "" {
		return nil, fmt.Errorf("config %s: upstream.base_url is required", path)
	}

	return &config, nil
}

func (c *TomlConfig) applyDefaults() {
	if c.Upstream.PageSize < 1 {
		c.Upstream.PageSize = DefaultPageSize
	}
	if c.Upstream.TimeoutSeconds < 1 {
		c.Upstream.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if c.Upstream.MaxRetries < 0 {
		c.Upstream.MaxRetries = 0
	}
	if c.Sync.Workers < 1 {
		c.Sync.Workers = DefaultWorkers
	}
	if c.Sync.MaxPages < 1 {
		c.Sync.MaxPages = DefaultMaxPages
	}
	if c.Sync.RateLimitPerMinute < 1 {
		c.Sync.RateLimitPerMinute = DefaultRateLimitPerMinute
	}
	if c.Sync.CacheTTLMinutes < 1 {
		c.Sync.CacheTTLMinutes = DefaultCacheTTLMinutes
	}
	if c.Sync.CacheSize < 1 {
		c.Sync.CacheSize = DefaultCacheSize
	}
}

func (c *TomlConfig) Timeout() time.Duration {
	return time.Duration(c.Upstream.TimeoutSeconds) * time.Second
}

func (c *TomlConfig) CacheTTL() time.Duration {
	return time.Duration(c.Sync.CacheTTLMinutes) * time.Minute
}
