package embedder

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Supported embedding providers.
const (
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderXAI        = "xai"
	ProviderAzure      = "azure"
	ProviderOllama     = "ollama"
)

// Default embedding models and endpoints per backend.
const (
	defaultOllamaModel     = "nomic-embed-text"
	defaultOpenAIModel     = "text-embedding-3-small"
	defaultOpenRouterModel = "openai/text-embedding-3-small"
	defaultXAIModel        = "v1"

	defaultOllamaHost    = "http://localhost:11434"
	defaultOpenAIURL     = "https://api.openai.com/v1"
	defaultOpenRouterURL = "https://openrouter.ai/api/v1"
	defaultXAIURL        = "https://api.x.ai/v1"
	defaultAzureVersion  = "2025-04-01-preview"

	// defaultOllamaDimensions is the output dimension of nomic-embed-text.
	defaultOllamaDimensions = 768
	// defaultOpenAIDimensions is the output dimension of text-embedding-3-small.
	defaultOpenAIDimensions = 1536
)

// ProviderConfig is a fully resolved embedding configuration: which provider,
// which model, and the credential to use. Callers resolve it once (from env
// or from a user's stored settings) and hand it to [New] or attach it to a
// request with [WithCallerConfig].
type ProviderConfig struct {
	// Provider is one of openai, openrouter, xai, azure, ollama.
	Provider string
	// Model is the embedding model. Empty selects the provider default.
	Model string
	// APIKey is the credential. Ollama needs none.
	APIKey string
	// BaseURL overrides the provider endpoint (Ollama host, Azure resource URL).
	BaseURL string
	// Dimensions requests a specific vector size where the provider supports it.
	Dimensions int
	// APIVersion is the Azure OpenAI API version.
	APIVersion string
	// Timeout caps a single HTTP exchange with the provider.
	Timeout time.Duration
}

// Usable reports whether cfg names a provider and carries what that provider
// needs to authenticate.
func (c ProviderConfig) Usable() bool {
	switch c.Provider {
	case ProviderOllama:
		return true
	case ProviderAzure:
		return c.APIKey != "" && c.BaseURL != ""
	case ProviderOpenAI, ProviderOpenRouter, ProviderXAI:
		return c.APIKey != ""
	default:
		return false
	}
}

// Label identifies the configuration in logs and metrics without exposing
// the credential.
func (c ProviderConfig) Label() string {
	return c.Provider + "/" + c.modelOrDefault()
}

func (c ProviderConfig) modelOrDefault() string {
	if c.Model != "" {
		return c.Model
	}
	switch c.Provider {
	case ProviderOllama:
		return defaultOllamaModel
	case ProviderOpenRouter:
		return defaultOpenRouterModel
	case ProviderXAI:
		return defaultXAIModel
	default:
		return defaultOpenAIModel
	}
}

// New constructs a Backend for cfg.
func New(cfg ProviderConfig) (Backend, error) {
	model := cfg.modelOrDefault()
	switch cfg.Provider {
	case ProviderOllama:
		host := cfg.BaseURL
		if host == "" {
			host = defaultOllamaHost
		}
		return NewOllamaEmbedder(&OllamaConfig{Host: host, Model: model, Timeout: cfg.Timeout}), nil

	case ProviderOpenAI, ProviderOpenRouter, ProviderXAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("embedder: %s requires an API key", cfg.Provider)
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = defaultBaseURL(cfg.Provider)
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    strings.TrimRight(baseURL, "/"),
			APIKey:     cfg.APIKey,
			Model:      model,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
		}), nil

	case ProviderAzure:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("embedder: azure requires an API key")
		}
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("embedder: azure requires an endpoint")
		}
		apiVersion := cfg.APIVersion
		if apiVersion == "" {
			apiVersion = defaultAzureVersion
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    strings.TrimRight(cfg.BaseURL, "/") + "/openai",
			APIKey:     cfg.APIKey,
			Model:      model,
			Dimensions: cfg.Dimensions,
			Azure:      true,
			APIVersion: apiVersion,
			Timeout:    cfg.Timeout,
		}), nil

	case "":
		return nil, ErrNoProvider

	default:
		return nil, fmt.Errorf("embedder: unknown provider %q, valid values: openai, openrouter, xai, azure, ollama", cfg.Provider)
	}
}

func defaultBaseURL(provider string) string {
	switch provider {
	case ProviderOpenRouter:
		return defaultOpenRouterURL
	case ProviderXAI:
		return defaultXAIURL
	default:
		return defaultOpenAIURL
	}
}

// DefaultDimensions returns the default vector size for provider.
// EMBEDDING_DIMENSIONS always takes precedence when set.
func DefaultDimensions(provider string) int {
	if v := getEnvInt("EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	if provider == ProviderOllama {
		return defaultOllamaDimensions
	}
	return defaultOpenAIDimensions
}

// ConfigFromEnv resolves the deployment's default embedding provider.
// Credentials and endpoints cascade from the chat provider env vars when the
// EMBEDDING_* overrides are unset.
//
// Resolution order:
//
//  1. EMBEDDING_PROVIDER, else MODEL_PROVIDER, else ollama
//  2. EMBEDDING_API_KEY, else the provider's own key variable
//  3. EMBEDDING_ENDPOINT, else the provider's endpoint variable
//  4. EMBEDDING_MODEL, EMBEDDING_DIMENSIONS
//
// A chat-only MODEL_PROVIDER (gemini, ark) is not an embedding provider; the
// result then has an empty Provider and [New] reports ErrNoProvider.
func ConfigFromEnv() ProviderConfig {
	provider := getEnv("EMBEDDING_PROVIDER")
	if provider == "" {
		provider = getEnvOrDefault("MODEL_PROVIDER", ProviderOllama)
		switch provider {
		case ProviderOpenAI, ProviderOpenRouter, ProviderXAI, ProviderAzure, ProviderOllama:
		default:
			provider = ""
		}
	}

	cfg := ProviderConfig{
		Provider:   provider,
		Model:      getEnv("EMBEDDING_MODEL"),
		APIKey:     getEnv("EMBEDDING_API_KEY"),
		BaseURL:    getEnv("EMBEDDING_ENDPOINT"),
		Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 0),
	}

	switch provider {
	case ProviderOllama:
		if cfg.BaseURL == "" {
			cfg.BaseURL = getEnvOrDefault("OLLAMA_HOST", defaultOllamaHost)
		}
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			cfg.APIKey = getEnv("OPENAI_API_KEY")
		}
	case ProviderOpenRouter:
		if cfg.APIKey == "" {
			cfg.APIKey = getEnv("OPENROUTER_API_KEY")
		}
	case ProviderXAI:
		if cfg.APIKey == "" {
			cfg.APIKey = getEnv("XAI_API_KEY")
		}
	case ProviderAzure:
		if cfg.APIKey == "" {
			cfg.APIKey = getEnv("AZURE_OPENAI_API_KEY")
		}
		if cfg.BaseURL == "" {
			cfg.BaseURL = getEnv("AZURE_OPENAI_ENDPOINT")
		}
		cfg.APIVersion = getEnvOrDefault("AZURE_OPENAI_API_VERSION", defaultAzureVersion)
	}
	return cfg
}

// getEnv returns the value of the named environment variable, or empty string.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
