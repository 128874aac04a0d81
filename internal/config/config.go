// Package config provides application configuration with multi-source priority.
//
// Sources (highest to lowest):
//  1. Environment variables (GROUNDWORK_* prefix, plus DATABASE_URL)
//  2. Config file (config.yaml in the working directory or /etc/groundwork)
//  3. Defaults
//
// Validation uses sentinel errors so callers can check with errors.Is().
// Sensitive values (database password, API keys, JWT secret) are masked in
// MarshalJSON; update maskSensitive when adding new secret fields.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required provider API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates a model identifier is empty or malformed.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the default temperature is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidEmbedder indicates the embedder model or dimension is invalid.
	ErrInvalidEmbedder = errors.New("invalid embedder configuration")

	// ErrInvalidPostgres indicates the PostgreSQL configuration is invalid.
	ErrInvalidPostgres = errors.New("invalid PostgreSQL configuration")

	// ErrInvalidListenAddr indicates the HTTP listen address is invalid.
	ErrInvalidListenAddr = errors.New("invalid listen address")

	// ErrMissingJWTSecret indicates the JWT HMAC secret is not set.
	ErrMissingJWTSecret = errors.New("missing JWT secret")

	// ErrInvalidJWTSecret indicates the JWT HMAC secret is too short.
	ErrInvalidJWTSecret = errors.New("invalid JWT secret")

	// ErrInvalidRateLimit indicates rate-limit parameters are out of range.
	ErrInvalidRateLimit = errors.New("invalid rate limit")
)

// Defaults applied when neither file nor environment provides a value.
const (
	DefaultListenAddr = ":8080"

	// DefaultEmbedderModel outputs 768-dim vectors, matching the
	// vector(768) column on document_chunks.
	DefaultEmbedderModel     = "text-embedding-004"
	DefaultEmbedderDimension = 768

	// DefaultExpansionModel is the cheap model used for query expansion.
	DefaultExpansionModel = "gemini-2.5-flash"

	// DefaultCompletionModel is used when an agent carries no model override.
	DefaultCompletionModel = "gpt-4o-mini"

	DefaultTemperature float32 = 0.7

	DefaultExpansionCacheSize = 1024
	DefaultTelemetryQueueSize = 256

	DefaultRateLimitRPS   = 5
	DefaultRateLimitBurst = 10
)

// Config stores the service configuration.
type Config struct {
	// HTTP server
	ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`

	// PostgreSQL storage
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Gemini provider (embeddings + query expansion via Genkit)
	GeminiAPIKey   string `mapstructure:"gemini_api_key" json:"gemini_api_key"` // SENSITIVE
	EmbedderModel  string `mapstructure:"embedder_model" json:"embedder_model"`
	EmbedderDim    int    `mapstructure:"embedder_dimension" json:"embedder_dimension"`
	ExpansionModel string `mapstructure:"expansion_model" json:"expansion_model"`

	// Completion provider (OpenAI-compatible streaming endpoint)
	CompletionBaseURL string  `mapstructure:"completion_base_url" json:"completion_base_url"`
	CompletionAPIKey  string  `mapstructure:"completion_api_key" json:"completion_api_key"` // SENSITIVE
	CompletionModel   string  `mapstructure:"completion_model" json:"completion_model"`
	Temperature       float32 `mapstructure:"temperature" json:"temperature"`

	// Rerank provider (Cohere-compatible endpoint)
	RerankBaseURL string `mapstructure:"rerank_base_url" json:"rerank_base_url"`
	RerankAPIKey  string `mapstructure:"rerank_api_key" json:"rerank_api_key"` // SENSITIVE

	// Auth
	JWTSecret string `mapstructure:"jwt_secret" json:"jwt_secret"` // SENSITIVE

	// Per-company rate limiting
	RateLimitRPS   int `mapstructure:"rate_limit_rps" json:"rate_limit_rps"`
	RateLimitBurst int `mapstructure:"rate_limit_burst" json:"rate_limit_burst"`

	// Pipeline tuning
	ExpansionCacheSize int `mapstructure:"expansion_cache_size" json:"expansion_cache_size"`
	TelemetryQueueSize int `mapstructure:"telemetry_queue_size" json:"telemetry_queue_size"`

	// Observability (OTLP/HTTP trace export; empty disables tracing)
	OTLPEndpoint string `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`
	Environment  string `mapstructure:"environment" json:"environment"`
	ServiceName  string `mapstructure:"service_name" json:"service_name"`

	// Logging
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
	LogLevel string `mapstructure:"log_level" json:"log_level"`
}

// Load reads configuration from file, environment, and defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/groundwork")

	setDefaults(v)

	v.SetEnvPrefix("GROUNDWORK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine; defaults plus environment carry the config.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults", "config_name", "config.yaml")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL wins over individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", DefaultListenAddr)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "groundwork")
	v.SetDefault("postgres_db_name", "groundwork")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("embedder_model", DefaultEmbedderModel)
	v.SetDefault("embedder_dimension", DefaultEmbedderDimension)
	v.SetDefault("expansion_model", DefaultExpansionModel)

	v.SetDefault("completion_base_url", "https://api.openai.com/v1")
	v.SetDefault("completion_model", DefaultCompletionModel)
	v.SetDefault("temperature", DefaultTemperature)

	v.SetDefault("rerank_base_url", "https://api.cohere.com")

	v.SetDefault("rate_limit_rps", DefaultRateLimitRPS)
	v.SetDefault("rate_limit_burst", DefaultRateLimitBurst)

	v.SetDefault("expansion_cache_size", DefaultExpansionCacheSize)
	v.SetDefault("telemetry_queue_size", DefaultTelemetryQueueSize)

	v.SetDefault("environment", "dev")
	v.SetDefault("service_name", "groundwork")

	v.SetDefault("log_json", true)
	v.SetDefault("log_level", "info")
}

// MarshalJSON masks sensitive fields so configs can be logged safely.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config // avoid recursion
	masked := alias(c)
	masked.PostgresPassword = mask(masked.PostgresPassword)
	masked.GeminiAPIKey = mask(masked.GeminiAPIKey)
	masked.CompletionAPIKey = mask(masked.CompletionAPIKey)
	masked.RerankAPIKey = mask(masked.RerankAPIKey)
	masked.JWTSecret = mask(masked.JWTSecret)
	return json.Marshal(masked)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
