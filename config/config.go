package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/lendmatch/backend/internal/logging"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig
	Upstream   UpstreamConfig
	Sync       SyncConfig
	Client     ClientConfig
	Cache      CacheConfig
	Window     WindowConfig
	Normalizer NormalizerConfig
	Webhooks   WebhooksConfig
	RateLimit  RateLimitConfig
	Log        logging.Config
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// UpstreamConfig points at the staff backend that owns the catalog
type UpstreamConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	ProductsPath    string        `mapstructure:"products_path"`
	APIKey          string        `mapstructure:"api_key"`
	Timeout         time.Duration `mapstructure:"timeout"`
	RequestsPerHour int           `mapstructure:"requests_per_hour"`
	PullOnStart     bool          `mapstructure:"pull_on_start"`
}

// SyncConfig holds settings for the server-side sync endpoint
type SyncConfig struct {
	SharedSecret string `mapstructure:"shared_secret"`
	SeedFile     string `mapstructure:"seed_file"`
}

// ClientConfig holds settings for the lendctl client
type ClientConfig struct {
	SyncURL string        `mapstructure:"sync_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// CacheConfig holds client-side cache configuration
type CacheConfig struct {
	Type     string        `mapstructure:"type"` // "memory", "sqlite" or "redis"
	Path     string        `mapstructure:"path"` // sqlite data directory
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"` // 0 keeps entries until replaced
}

// WindowConfig holds the fetch-window schedule
type WindowConfig struct {
	FirstHourUTC  int           `mapstructure:"first_hour_utc"` // second window is 12h later
	CheckInterval time.Duration `mapstructure:"check_interval"`
}

// NormalizerConfig holds data-quality gating settings
type NormalizerConfig struct {
	MinSuccessRate float64 `mapstructure:"min_success_rate"`
}

// WebhooksConfig lists client apps to notify on catalog changes
type WebhooksConfig struct {
	URLs    []string      `mapstructure:"urls"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	PerIP int `mapstructure:"per_ip"` // requests per minute
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	cfg, _, err := load()
	return cfg, err
}

// LoadAndWatch loads configuration and, when a config file is in use,
// re-reads it on every change. onChange only receives configs that pass
// validation; invalid edits are reported through onError.
func LoadAndWatch(onChange func(*Config, fsnotify.Event), onError func(error)) (*Config, error) {
	cfg, v, err := load()
	if err != nil {
		return nil, err
	}

	if v.ConfigFileUsed() == "" {
		return cfg, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		next, err := decode(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(next, e)
	})
	v.WatchConfig()

	return cfg, nil
}

func load() (*Config, *viper.Viper, error) {
	if err := loadEnvFile(); err != nil {
		return nil, nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/lendmatch/")

	// Environment variable settings
	v.SetEnvPrefix("LENDMATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional - will use env vars if file doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5000"})

	// Upstream defaults
	v.SetDefault("upstream.base_url", "http://localhost:5001")
	v.SetDefault("upstream.products_path", "/api/lender-products")
	v.SetDefault("upstream.api_key", "")
	v.SetDefault("upstream.timeout", "10s")
	v.SetDefault("upstream.requests_per_hour", 1000)
	v.SetDefault("upstream.pull_on_start", true)

	// Sync defaults
	v.SetDefault("sync.shared_secret", "")
	v.SetDefault("sync.seed_file", "")

	// Client defaults
	v.SetDefault("client.sync_url", "http://localhost:8080/api/lender-products/sync")
	v.SetDefault("client.timeout", "10s")

	// Cache defaults
	v.SetDefault("cache.type", "sqlite")
	v.SetDefault("cache.path", "")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.ttl", "0s")

	// Window defaults: 00:00 and 12:00 UTC
	v.SetDefault("window.first_hour_utc", 0)
	v.SetDefault("window.check_interval", "5m")

	v.SetDefault("normalizer.min_success_rate", 0.8)

	v.SetDefault("webhooks.urls", []string{})
	v.SetDefault("webhooks.timeout", "5s")

	// Rate limit defaults
	v.SetDefault("ratelimit.per_ip", 120)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_path", "")
	v.SetDefault("log.development", false)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream base URL is required (set LENDMATCH_UPSTREAM_BASE_URL)")
	}

	if config.Server.Environment == "production" && config.Sync.SharedSecret == "" {
		return fmt.Errorf("sync shared secret is required in production (set LENDMATCH_SYNC_SHARED_SECRET)")
	}

	switch config.Cache.Type {
	case "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("cache type must be 'memory', 'sqlite' or 'redis', got: %s", config.Cache.Type)
	}

	if config.Cache.Type == "redis" && config.Cache.RedisURL == "" {
		return fmt.Errorf("redis URL is required when cache type is 'redis'")
	}

	if config.Window.FirstHourUTC < 0 || config.Window.FirstHourUTC > 11 {
		return fmt.Errorf("window first hour must be between 0 and 11, got: %d", config.Window.FirstHourUTC)
	}

	if config.Normalizer.MinSuccessRate <= 0 || config.Normalizer.MinSuccessRate > 1 {
		return fmt.Errorf("normalizer min success rate must be in (0, 1], got: %v", config.Normalizer.MinSuccessRate)
	}

	return nil
}

// loadEnvFile reads KEY=VALUE pairs from ./.env into the process environment.
// Existing variables win; a missing file is not an error.
func loadEnvFile() error {
	f, err := os.Open(".env")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return err
		}
	}

	return scanner.Err()
}
