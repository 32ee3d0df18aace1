// Package config loads service configuration from a yaml file and
// NICHERADAR_-prefixed environment variables, with env taking precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service.
type Config struct {
	Server    ServerConfig
	Fetch     FetchConfig
	Search    SearchConfig
	Catalog   CatalogConfig
	Generate  GenerateConfig
	Models    ModelsConfig
	Research  ResearchConfig
	Storage   StorageConfig
	Metrics   MetricsConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// FetchConfig holds render-provider settings.
type FetchConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	CountryCode    string        `mapstructure:"country_code"`
	RatePerSecond  float64       `mapstructure:"rate_per_second"`
	DirectFallback bool          `mapstructure:"direct_fallback"`
	Fingerprint    string        `mapstructure:"fingerprint"`
}

// SearchConfig holds search-provider credentials.
type SearchConfig struct {
	APIKey string `mapstructure:"api_key"`
	CX     string `mapstructure:"cx"`
}

// CatalogConfig holds product-data provider settings.
type CatalogConfig struct {
	APIKey            string  `mapstructure:"api_key"`
	Host              string  `mapstructure:"host"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	IncludeReviews    bool    `mapstructure:"include_reviews"`
}

// GenerateConfig holds completion-provider settings.
type GenerateConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Referer string `mapstructure:"referer"`
	AppName string `mapstructure:"app_name"`
}

// ModelsConfig names the per-tier models.
type ModelsConfig struct {
	Basic           string   `mapstructure:"basic"`
	Advanced        string   `mapstructure:"advanced"`
	AdvancedChoices []string `mapstructure:"advanced_choices"`
}

// ResearchConfig tunes the pipeline.
type ResearchConfig struct {
	WebSources   int `mapstructure:"web_sources"`
	VideoSources int `mapstructure:"video_sources"`
}

// StorageConfig selects the report repository backend.
type StorageConfig struct {
	// Backend is one of "memory", "sqlite", "postgres", "json".
	Backend string `mapstructure:"backend"`
	// DSN is the database connection string or file path, per backend.
	DSN string `mapstructure:"dsn"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// RateLimitConfig holds inbound rate limiting settings.
type RateLimitConfig struct {
	PerIP int `mapstructure:"per_ip"`
}

// Load reads configuration from config.yaml and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/nicheradar/")

	v.SetEnvPrefix("NICHERADAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; environment variables and defaults apply.
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Credential keys default to empty so env-only values survive Unmarshal.
	v.SetDefault("fetch.api_key", "")
	v.SetDefault("fetch.direct_fallback", false)
	v.SetDefault("search.api_key", "")
	v.SetDefault("search.cx", "")
	v.SetDefault("catalog.api_key", "")
	v.SetDefault("catalog.include_reviews", false)
	v.SetDefault("generate.api_key", "")
	v.SetDefault("generate.referer", "")
	v.SetDefault("storage.dsn", "")

	v.SetDefault("server.port", "8000")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("fetch.base_url", "https://app.scrapingbee.com/api/v1/")
	v.SetDefault("fetch.timeout", "90s")
	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("fetch.country_code", "us")
	v.SetDefault("fetch.rate_per_second", 2.0)
	v.SetDefault("fetch.fingerprint", "chrome")

	v.SetDefault("catalog.host", "real-time-amazon-data.p.rapidapi.com")
	v.SetDefault("catalog.requests_per_second", 1.0)

	v.SetDefault("generate.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("generate.app_name", "nicheradar")

	v.SetDefault("models.basic", "google/gemini-3.0-flash")
	v.SetDefault("models.advanced", "anthropic/claude-3.5-sonnet")
	v.SetDefault("models.advanced_choices", []string{
		"anthropic/claude-3.5-sonnet",
		"openai/gpt-4-turbo",
		"google/gemini-pro-1.5",
		"meta-llama/llama-3.1-405b",
	})

	v.SetDefault("research.web_sources", 3)
	v.SetDefault("research.video_sources", 3)

	v.SetDefault("storage.backend", "memory")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("ratelimit.per_ip", 60)
}

func validate(config *Config) error {
	if config.Fetch.APIKey == "" {
		return fmt.Errorf("fetch API key is required (set NICHERADAR_FETCH_API_KEY)")
	}

	switch config.Storage.Backend {
	case "memory":
	case "sqlite", "postgres", "json":
		if config.Storage.DSN == "" {
			return fmt.Errorf("storage DSN is required for the %s backend", config.Storage.Backend)
		}
	default:
		return fmt.Errorf("storage backend must be one of memory, sqlite, postgres, json; got %q", config.Storage.Backend)
	}

	return nil
}
