package searchbridge

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full searchbridge configuration.
type Config struct {
	Listen     string       `yaml:"listen"`
	DBPath     string       `yaml:"db_path"`
	SiteURL    string       `yaml:"site_url"`
	SiteSecret string       `yaml:"site_secret"`
	Remote     RemoteConfig `yaml:"remote"`
	Sync       SyncConfig   `yaml:"sync"`
	Cache      CacheConfig  `yaml:"cache"`
}

// RemoteConfig configures the gateway client.
type RemoteConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

// SyncConfig configures batch processing.
type SyncConfig struct {
	BatchItems      int `yaml:"batch_items"`
	MinQueryLength  int `yaml:"min_query_length"`
	IntervalSeconds int `yaml:"interval_seconds"`
}

// CacheConfig configures the search result cache.
type CacheConfig struct {
	TTLSeconds int `yaml:"ttl_seconds"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen: ":8090",
		DBPath: "searchbridge.db",
		Sync: SyncConfig{
			BatchItems:      50,
			MinQueryLength:  2,
			IntervalSeconds: 300,
		},
		Cache: CacheConfig{
			TTLSeconds: 3600,
		},
		Remote: RemoteConfig{
			TimeoutSeconds: 30,
			MaxRetries:     2,
		},
	}
}

// LoadConfig reads and parses a YAML config file. Returns DefaultConfig merged with the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.SiteURL == "" {
		return fmt.Errorf("site_url is required")
	}
	if _, err := url.Parse(c.SiteURL); err != nil {
		return fmt.Errorf("site_url: %w", err)
	}
	if c.SiteSecret == "" {
		return fmt.Errorf("site_secret is required")
	}
	if c.Remote.BaseURL == "" {
		return fmt.Errorf("remote.base_url is required")
	}
	if c.Sync.BatchItems <= 0 {
		return fmt.Errorf("sync.batch_items must be > 0")
	}
	if c.Sync.MinQueryLength < 0 {
		return fmt.Errorf("sync.min_query_length must be >= 0")
	}
	if c.Sync.IntervalSeconds <= 0 {
		return fmt.Errorf("sync.interval_seconds must be > 0")
	}
	if c.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("cache.ttl_seconds must be > 0")
	}
	return nil
}

// RemoteTimeout returns the data-operation timeout as a duration.
func (c *Config) RemoteTimeout() time.Duration {
	return time.Duration(c.Remote.TimeoutSeconds) * time.Second
}

// CacheTTL returns the search cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// SyncInterval returns the scheduled-run period as a duration.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.Sync.IntervalSeconds) * time.Second
}
