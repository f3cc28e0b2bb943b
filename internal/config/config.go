// Package config provides application configuration with multi-source
// priority.
//
// Sources, highest to lowest:
//  1. Environment variables
//  2. Config file (~/.tern/config.yaml)
//  3. Default values
//
// Sensitive values (passwords) are masked in MarshalJSON and String.
// Validation is fail-fast and returns sentinel errors checkable with
// errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidVectorDim indicates the embedding dimension is out of range.
	ErrInvalidVectorDim = errors.New("invalid vector dimension")

	// ErrInvalidMaxRounds indicates the tool-loop round cap is out of range.
	ErrInvalidMaxRounds = errors.New("invalid max rounds")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")
)

const (
	// DefaultEmbedderModel supports truncation to 768 dimensions via
	// OutputDimensionality; the pgvector schema stores vector(768).
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultVectorDim matches the vector(768) column in the schema.
	DefaultVectorDim = 768

	// DefaultMaxHistoryMessages is the default number of messages replayed
	// into a model request.
	DefaultMaxHistoryMessages int32 = 100

	// DefaultMaxRounds caps model round-trips within a single turn.
	DefaultMaxRounds = 8
)

// MCPServerConfig describes one external tool server launched as a
// subprocess.
type MCPServerConfig struct {
	Command string            `mapstructure:"command" json:"command"`
	Args    []string          `mapstructure:"args" json:"args"`
	Env     map[string]string `mapstructure:"env" json:"env"`
}

// SearXNGConfig configures the search backend used by the built-in web
// tool server.
type SearXNGConfig struct {
	BaseURL string `mapstructure:"base_url" json:"base_url"`
}

// Config stores application configuration.
// Sensitive fields are explicitly masked in MarshalJSON; when adding a new
// secret field, update MarshalJSON as well.
type Config struct {
	// Model configuration
	ModelName      string  `mapstructure:"model_name" json:"model_name"`
	Temperature    float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens      int     `mapstructure:"max_tokens" json:"max_tokens"`
	ThinkingBudget int32   `mapstructure:"thinking_budget" json:"thinking_budget"`

	// Embedding configuration
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`
	VectorDim     int    `mapstructure:"vector_dim" json:"vector_dim"`

	// Turn configuration
	MaxHistoryMessages int32 `mapstructure:"max_history_messages" json:"max_history_messages"`
	MaxRounds          int   `mapstructure:"max_rounds" json:"max_rounds"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Built-in web tool server
	SearXNG SearXNGConfig `mapstructure:"searxng" json:"searxng"`

	// External tool servers (see mcp.go)
	MCPServers  map[string]MCPServerConfig `mapstructure:"mcp_servers" json:"mcp_servers"`
	MCPAllowed  []string                   `mapstructure:"mcp_allowed" json:"mcp_allowed"`
	MCPExcluded []string                   `mapstructure:"mcp_excluded" json:"mcp_excluded"`
}

// Load loads and validates configuration.
// Priority: environment variables > config file > defaults.
func Load() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return cfg, nil
}

// LoadWebOnly loads configuration without validating model or storage
// settings, for commands that only use the built-in web tools and need
// neither an API key nor a database.
func LoadWebOnly() (*Config, error) {
	return load()
}

func load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".tern")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides the individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model_name", "gemini-2.5-flash")
	v.SetDefault("temperature", 0.7)
	v.SetDefault("max_tokens", 4096)
	v.SetDefault("thinking_budget", 0)

	v.SetDefault("embedder_model", DefaultEmbedderModel)
	v.SetDefault("vector_dim", DefaultVectorDim)

	v.SetDefault("max_history_messages", DefaultMaxHistoryMessages)
	v.SetDefault("max_rounds", DefaultMaxRounds)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "tern")
	v.SetDefault("postgres_password", "tern_dev_password")
	v.SetDefault("postgres_db_name", "tern")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("searxng.base_url", "")
}

// bindEnvVariables binds environment overrides explicitly. GEMINI_API_KEY is
// read directly by the model client, not via viper; Validate checks its
// presence.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("model_name", "TERN_MODEL_NAME")
	mustBind("embedder_model", "TERN_EMBEDDER_MODEL")
	mustBind("thinking_budget", "TERN_THINKING_BUDGET")
	mustBind("max_rounds", "TERN_MAX_ROUNDS")
	mustBind("searxng.base_url", "TERN_SEARXNG_URL")
}

// maskedValue uses full-width blocks so masked output can never be a
// substring of the real secret.
const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Short secrets are fully
// masked; longer ones keep the first and last two characters for debug
// utility. This defends against accidental logging, not compromised logs.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with sensitive field masking.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
