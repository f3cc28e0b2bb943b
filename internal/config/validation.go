package config

import (
	"fmt"
	"os"
	"slices"
)

// Validate validates configuration values. Returns sentinel errors that can
// be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required\n"+
			"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
			ErrMissingAPIKey)
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}

	// Gemini API range: 0.0 deterministic to 2.0 maximum sampling spread.
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}

	if c.MaxTokens < 1 || c.MaxTokens > 2097152 {
		return fmt.Errorf("%w: must be between 1 and 2,097,152, got %d", ErrInvalidMaxTokens, c.MaxTokens)
	}

	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}

	// Must match the vector(N) column width in the schema.
	if c.VectorDim < 1 || c.VectorDim > 4096 {
		return fmt.Errorf("%w: must be between 1 and 4096, got %d", ErrInvalidVectorDim, c.VectorDim)
	}

	if c.MaxRounds < 1 || c.MaxRounds > 64 {
		return fmt.Errorf("%w: must be between 1 and 64, got %d", ErrInvalidMaxRounds, c.MaxRounds)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}

	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}

	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}

	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: postgres_password must be set in config.yaml", ErrInvalidPostgresPassword)
	}

	// Deprecated allow/prefer modes are excluded (MITM vulnerable).
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	return nil
}

// NormalizeMaxHistoryMessages clamps the history window to a sane range.
func NormalizeMaxHistoryMessages(limit int32) int32 {
	const (
		minMessages int32 = 10
		maxMessages int32 = 10000
	)
	if limit <= 0 {
		return DefaultMaxHistoryMessages
	}
	if limit < minMessages {
		return minMessages
	}
	if limit > maxMessages {
		return maxMessages
	}
	return limit
}
