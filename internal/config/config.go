// Package config provides YAML-based configuration for plotline.
// Configuration is loaded with a layered precedence: defaults → YAML file → env vars.
// Environment variables always win, so deployments driven purely by env keep working.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. PLOTLINE_CONFIG environment variable
//  3. ~/.plotline/config.yaml
//  4. ./plotline.yaml
//
// If no file is found the system runs entirely from env vars.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Model configures the LLM chat model provider used by the writing agent.
	Model ModelConfig `yaml:"model"`

	// Embedding configures the default embedding provider.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Database configures the relational store holding books and chunks.
	Database DatabaseConfig `yaml:"database"`

	// VectorStore selects the chunk store backend.
	VectorStore VectorStoreConfig `yaml:"vector_store"`

	// Qdrant configures the Qdrant vector store connection.
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Redis configures the planning-context cache.
	Redis RedisConfig `yaml:"redis"`

	// Planning configures the planning-context budget.
	Planning PlanningConfig `yaml:"planning"`

	// Chunking configures the text chunker.
	Chunking ChunkingConfig `yaml:"chunking"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Tracing configures Langfuse tracing integration.
	Tracing TracingConfig `yaml:"tracing"`
}

// ModelConfig holds LLM chat model settings.
type ModelConfig struct {
	// Provider selects the backend: openai, openrouter, xai, ollama, azure, gemini, ark.
	Provider string `yaml:"provider"`

	// MaxTokens is the maximum number of tokens in the response.
	MaxTokens int `yaml:"max_tokens"`

	// Temperature controls response randomness (0.0–1.0).
	Temperature float32 `yaml:"temperature"`

	// Ollama holds Ollama-specific settings.
	Ollama OllamaConfig `yaml:"ollama"`

	// OpenAI holds OpenAI-specific settings.
	OpenAI KeyModelConfig `yaml:"openai"`

	// OpenRouter holds OpenRouter-specific settings.
	OpenRouter KeyModelConfig `yaml:"openrouter"`

	// XAI holds X.AI-specific settings.
	XAI KeyModelConfig `yaml:"xai"`

	// Azure holds Azure OpenAI-specific settings.
	Azure AzureConfig `yaml:"azure"`

	// Gemini holds Google Gemini-specific settings.
	Gemini KeyModelConfig `yaml:"gemini"`

	// Ark holds Volcengine Ark settings.
	Ark ArkConfig `yaml:"ark"`
}

// ArkConfig holds Volcengine Ark provider settings.
type ArkConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
	// BaseURL overrides the regional endpoint.
	BaseURL string `yaml:"base_url"`
}

// OllamaConfig holds Ollama provider settings.
type OllamaConfig struct {
	// Host is the Ollama API endpoint.
	Host string `yaml:"host"`
	// Model is the Ollama model name.
	Model string `yaml:"model"`
}

// KeyModelConfig holds settings for providers authenticated by a single API key.
type KeyModelConfig struct {
	// APIKey is the provider API key. Prefer the provider's env var.
	APIKey string `yaml:"api_key"`
	// Model is the model name.
	Model string `yaml:"model"`
}

// AzureConfig holds Azure OpenAI provider settings.
type AzureConfig struct {
	// APIKey is the Azure OpenAI API key. Prefer env var AZURE_OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the Azure OpenAI resource endpoint.
	Endpoint string `yaml:"endpoint"`
	// Deployment is the Azure OpenAI deployment name.
	Deployment string `yaml:"deployment"`
	// APIVersion is the Azure OpenAI API version.
	APIVersion string `yaml:"api_version"`
}

// EmbeddingConfig holds the default embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend (openai, openrouter, xai, azure, ollama).
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
	// MaxChars is the input truncation limit applied before each embed call.
	MaxChars int `yaml:"max_chars"`
	// TimeoutSeconds bounds every embedding call.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// DatabaseConfig holds relational database settings.
type DatabaseConfig struct {
	// Driver is sqlite or postgres.
	Driver string `yaml:"driver"`
	// DSN is the file path (sqlite) or connection URL (postgres).
	DSN string `yaml:"dsn"`
}

// VectorStoreConfig selects the chunk store backend.
type VectorStoreConfig struct {
	// Backend is gorm, qdrant or memory.
	Backend string `yaml:"backend"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// Collection is the Qdrant collection name.
	Collection string `yaml:"collection"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// RedisConfig holds planning-context cache settings.
type RedisConfig struct {
	// Addr is host:port of the Redis server. Empty disables caching.
	Addr string `yaml:"addr"`
	// Password is the Redis password. Prefer env var REDIS_PASSWORD.
	Password string `yaml:"password"`
	// DB is the Redis logical database index.
	DB int `yaml:"db"`
	// TTLSeconds is how long a cached planning context stays valid.
	TTLSeconds int `yaml:"ttl_seconds"`
}

// PlanningConfig holds planning-context budget settings.
type PlanningConfig struct {
	// TokenBudget is the token ceiling for the assembled planning context.
	TokenBudget int `yaml:"token_budget"`
	// CharsPerToken is the chars-per-token approximation.
	CharsPerToken int `yaml:"chars_per_token"`
	// RowCap is the per-row text cap applied when truncation is active.
	RowCap int `yaml:"row_cap"`
}

// ChunkingConfig holds text chunker settings.
type ChunkingConfig struct {
	// Size is the target characters per chunk.
	Size int `yaml:"size"`
	// Overlap is the characters shared between consecutive chunks.
	Overlap int `yaml:"overlap"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// APIKey is the Bearer token for API authentication. Prefer env var PLOTLINE_API_KEY.
	APIKey string `yaml:"api_key"`
	// ReadOnlyAPIKey is accepted on GET book routes only.
	ReadOnlyAPIKey string `yaml:"readonly_api_key"`
	// ReindexIntervalSeconds is the minimum spacing between reindexes of one book.
	ReindexIntervalSeconds int `yaml:"reindex_interval_seconds"`
	// RateLimit and RateBurst bound search and suggest per client and book.
	RateLimit int `yaml:"rate_limit"`
	RateBurst int `yaml:"rate_burst"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	// PublicKey is the Langfuse public key. Prefer env var LANGFUSE_PUBLIC_KEY.
	PublicKey string `yaml:"public_key"`
	// SecretKey is the Langfuse secret key. Prefer env var LANGFUSE_SECRET_KEY.
	SecretKey string `yaml:"secret_key"`
	// Host is the Langfuse API host.
	Host string `yaml:"host"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Model.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return float32Str(c.Model.Temperature) }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Model.Ollama.Model }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *Config) string { return c.Model.OpenAI.Model }},
	{"OPENROUTER_API_KEY", func(c *Config) string { return c.Model.OpenRouter.APIKey }},
	{"OPENROUTER_MODEL", func(c *Config) string { return c.Model.OpenRouter.Model }},
	{"XAI_API_KEY", func(c *Config) string { return c.Model.XAI.APIKey }},
	{"XAI_MODEL", func(c *Config) string { return c.Model.XAI.Model }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Model.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Model.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Model.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Model.Azure.APIVersion }},
	{"GOOGLE_API_KEY", func(c *Config) string { return c.Model.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *Config) string { return c.Model.Gemini.Model }},
	{"ARK_API_KEY", func(c *Config) string { return c.Model.Ark.APIKey }},
	{"ARK_MODEL", func(c *Config) string { return c.Model.Ark.Model }},
	{"ARK_BASE_URL", func(c *Config) string { return c.Model.Ark.BaseURL }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"EMBEDDING_MAX_CHARS", func(c *Config) string { return intStr(c.Embedding.MaxChars) }},
	{"EMBEDDING_TIMEOUT", func(c *Config) string { return intStr(c.Embedding.TimeoutSeconds) }},
	{"PLOTLINE_DB_DRIVER", func(c *Config) string { return c.Database.Driver }},
	{"PLOTLINE_DB_DSN", func(c *Config) string { return c.Database.DSN }},
	{"VECTOR_BACKEND", func(c *Config) string { return c.VectorStore.Backend }},
	{"QDRANT_HOST", func(c *Config) string { return c.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Qdrant.TLS) }},
	{"REDIS_ADDR", func(c *Config) string { return c.Redis.Addr }},
	{"REDIS_PASSWORD", func(c *Config) string { return c.Redis.Password }},
	{"REDIS_DB", func(c *Config) string { return intStr(c.Redis.DB) }},
	{"REDIS_TTL", func(c *Config) string { return intStr(c.Redis.TTLSeconds) }},
	{"PLANNING_TOKEN_BUDGET", func(c *Config) string { return intStr(c.Planning.TokenBudget) }},
	{"PLANNING_CHARS_PER_TOKEN", func(c *Config) string { return intStr(c.Planning.CharsPerToken) }},
	{"PLANNING_ROW_CAP", func(c *Config) string { return intStr(c.Planning.RowCap) }},
	{"CHUNK_SIZE", func(c *Config) string { return intStr(c.Chunking.Size) }},
	{"CHUNK_OVERLAP", func(c *Config) string { return intStr(c.Chunking.Overlap) }},
	{"PLOTLINE_HOST", func(c *Config) string { return c.Server.Host }},
	{"PLOTLINE_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"PLOTLINE_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"PLOTLINE_READONLY_API_KEY", func(c *Config) string { return c.Server.ReadOnlyAPIKey }},
	{"PLOTLINE_REINDEX_INTERVAL", func(c *Config) string { return intStr(c.Server.ReindexIntervalSeconds) }},
	{"PLOTLINE_RATE_LIMIT", func(c *Config) string { return intStr(c.Server.RateLimit) }},
	{"PLOTLINE_RATE_BURST", func(c *Config) string { return intStr(c.Server.RateBurst) }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" || yamlVal == "0" || yamlVal == "false" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set
		}
		os.Setenv(m.envKey, yamlVal)
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("PLOTLINE_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".plotline", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("plotline.yaml"); err == nil {
		return "plotline.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%d", v)
}

// float32Str converts a float32 to string, returning "" for zero values.
func float32Str(v float32) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
