package core

import (
	"fmt"
	"strings"
)

type CacheConfig struct {
	Scope      string `koanf:"scope" mapstructure:"scope"`
	TTLSeconds int    `koanf:"ttl_seconds" mapstructure:"ttl_seconds"`
}

type OutboxConfig struct {
	BatchSize             int `koanf:"batch_size" mapstructure:"batch_size"`
	MaxAttempts           int `koanf:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffSeconds int `koanf:"initial_backoff_seconds" mapstructure:"initial_backoff_seconds"`
	MaxBackoffSeconds     int `koanf:"max_backoff_seconds" mapstructure:"max_backoff_seconds"`
}

type Config struct {
	ServiceName     string       `koanf:"service_name" mapstructure:"service_name"`
	CopyTitleSuffix string       `koanf:"copy_title_suffix" mapstructure:"copy_title_suffix"`
	ListLimit       int          `koanf:"list_limit" mapstructure:"list_limit"`
	Cache           CacheConfig  `koanf:"cache" mapstructure:"cache"`
	Outbox          OutboxConfig `koanf:"outbox" mapstructure:"outbox"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:     "integrations",
		CopyTitleSuffix: "_copy",
		ListLimit:       25,
		Cache: CacheConfig{
			Scope:      "source_config",
			TTLSeconds: 300,
		},
		Outbox: OutboxConfig{
			BatchSize:             25,
			MaxAttempts:           5,
			InitialBackoffSeconds: 30,
			MaxBackoffSeconds:     900,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.CopyTitleSuffix) == "" {
		return fmt.Errorf("core: copy_title_suffix is required")
	}
	if c.ListLimit <= 0 {
		return fmt.Errorf("core: list_limit must be positive")
	}
	if strings.TrimSpace(c.Cache.Scope) == "" {
		return fmt.Errorf("core: cache.scope is required")
	}
	if c.Outbox.BatchSize <= 0 {
		return fmt.Errorf("core: outbox.batch_size must be positive")
	}
	return nil
}
