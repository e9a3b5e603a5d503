// Package config loads daemon configuration from YAML and the environment.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the resolver daemon
type Config struct {
	Resolver      ResolverConfig      `mapstructure:"resolver"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	HTTP          HTTPConfig          `mapstructure:"http"`
}

// ResolverConfig holds engine and upstream provider settings
type ResolverConfig struct {
	BaseURL              string          `mapstructure:"base_url"`
	APIKey               string          `mapstructure:"api_key"`
	BatchSize            int             `mapstructure:"batch_size"`
	MaxConcurrentBatches int             `mapstructure:"max_concurrent_batches"`
	Timeout              time.Duration   `mapstructure:"timeout"`
	RateLimit            RateLimitConfig `mapstructure:"rate_limit"`
	WarmupNames          []string        `mapstructure:"warmup_names"`
}

// RateLimitConfig holds upstream rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	Burst             int `mapstructure:"burst"`
}

// CacheConfig holds resolution cache sizing
type CacheConfig struct {
	MaxSize int           `mapstructure:"max_size"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// RedisConfig holds the optional shared cache tier
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

// MetricsConfig holds metrics settings
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// TracingConfig holds tracing settings
type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HTTPConfig holds the API listener settings
type HTTPConfig struct {
	Port int `mapstructure:"port"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults and env vars apply
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Resolver defaults
	v.SetDefault("resolver.base_url", "https://api.web3.bio")
	v.SetDefault("resolver.api_key", "")
	v.SetDefault("resolver.batch_size", 25)
	v.SetDefault("resolver.max_concurrent_batches", 4)
	v.SetDefault("resolver.timeout", "10s")
	v.SetDefault("resolver.rate_limit.requests_per_minute", 600)
	v.SetDefault("resolver.rate_limit.burst", 20)
	v.SetDefault("resolver.warmup_names", []string{})

	// Cache defaults
	v.SetDefault("cache.max_size", 1000)
	v.SetDefault("cache.ttl", "5m")

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Observability defaults
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.port", 9091)
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.endpoint", "localhost:4317")

	// HTTP defaults
	v.SetDefault("http.port", 8080)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Resolver.BaseURL == "" {
		return fmt.Errorf("resolver.base_url must not be empty")
	}
	if c.Resolver.BatchSize <= 0 {
		return fmt.Errorf("resolver.batch_size must be positive, got %d", c.Resolver.BatchSize)
	}
	if c.Resolver.MaxConcurrentBatches <= 0 {
		return fmt.Errorf("resolver.max_concurrent_batches must be positive, got %d", c.Resolver.MaxConcurrentBatches)
	}
	if c.Cache.MaxSize <= 0 {
		return fmt.Errorf("cache.max_size must be positive, got %d", c.Cache.MaxSize)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative, got %s", c.Cache.TTL)
	}
	if c.Redis.Enabled && c.Redis.Address == "" {
		return fmt.Errorf("redis.address must not be empty when redis is enabled")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be a valid port, got %d", c.HTTP.Port)
	}
	if c.Observability.Metrics.Enabled {
		if c.Observability.Metrics.Port <= 0 || c.Observability.Metrics.Port > 65535 {
			return fmt.Errorf("observability.metrics.port must be a valid port, got %d", c.Observability.Metrics.Port)
		}
	}
	return nil
}
