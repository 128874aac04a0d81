package config

import "fmt"

// Validate checks configuration values, returning sentinel errors that can
// be matched with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.ListenAddr == "" {
		return fmt.Errorf("%w: listen_addr cannot be empty", ErrInvalidListenAddr)
	}

	// Provider configuration
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("%w: gemini_api_key (or GROUNDWORK_GEMINI_API_KEY) is required for embeddings and query expansion", ErrMissingAPIKey)
	}
	if c.CompletionAPIKey == "" {
		return fmt.Errorf("%w: completion_api_key is required for the streamed completion provider", ErrMissingAPIKey)
	}
	if c.CompletionModel == "" {
		return fmt.Errorf("%w: completion_model cannot be empty", ErrInvalidModelName)
	}
	if c.ExpansionModel == "" {
		return fmt.Errorf("%w: expansion_model cannot be empty", ErrInvalidModelName)
	}

	// Temperature range per provider documentation: 0.0 to 2.0.
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}

	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedder)
	}
	// The document_chunks schema stores vector(768); a mismatched embedder
	// dimension fails at insert time with an opaque pgvector error, so catch
	// it here instead.
	if c.EmbedderDim != DefaultEmbedderDimension {
		return fmt.Errorf("%w: embedder_dimension must be %d to match the vector schema, got %d",
			ErrInvalidEmbedder, DefaultEmbedderDimension, c.EmbedderDim)
	}

	// PostgreSQL
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgres)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: port must be between 1 and 65535, got %d", ErrInvalidPostgres, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgres)
	}
	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: postgres_password must be set", ErrInvalidPostgres)
	}

	// Auth
	if c.JWTSecret == "" {
		return fmt.Errorf("%w: jwt_secret must be set", ErrMissingJWTSecret)
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("%w: jwt_secret must be at least 32 bytes, got %d", ErrInvalidJWTSecret, len(c.JWTSecret))
	}

	// Rate limiting
	if c.RateLimitRPS < 1 {
		return fmt.Errorf("%w: rate_limit_rps must be at least 1, got %d", ErrInvalidRateLimit, c.RateLimitRPS)
	}
	if c.RateLimitBurst < c.RateLimitRPS {
		return fmt.Errorf("%w: rate_limit_burst (%d) must be >= rate_limit_rps (%d)",
			ErrInvalidRateLimit, c.RateLimitBurst, c.RateLimitRPS)
	}

	return nil
}
