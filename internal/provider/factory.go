package provider

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/cloudwego/eino/components/model"
)

// ConfigFromEnv resolves a Config from environment variables. MODEL_PROVIDER
// selects the backend; each provider uses its own native credential env vars.
//
// Environment variables:
//
//	MODEL_PROVIDER   = ollama | openai | openrouter | xai | azure | gemini | ark (default: ollama)
//
//	Ollama:     OLLAMA_HOST (default: http://localhost:11434), OLLAMA_MODEL (default: llama3)
//	OpenAI:     OPENAI_API_KEY, OPENAI_MODEL (default: gpt-4o)
//	OpenRouter: OPENROUTER_API_KEY, OPENROUTER_MODEL (default: anthropic/claude-3.5-sonnet)
//	X.AI:       XAI_API_KEY, XAI_MODEL (default: grok-2-latest)
//	Azure:      AZURE_OPENAI_API_KEY, AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_DEPLOYMENT,
//	            AZURE_OPENAI_API_VERSION (default: 2024-02-01)
//	Gemini:     GOOGLE_API_KEY, GEMINI_MODEL (default: gemini-1.5-pro)
//	Ark:        ARK_API_KEY, ARK_MODEL, ARK_BASE_URL
//
//	Shared:     MODEL_MAX_TOKENS (default: 4096), MODEL_TEMPERATURE (default: 0.7)
func ConfigFromEnv() *Config {
	return &Config{
		Backend: Backend(getEnvOrDefault("MODEL_PROVIDER", string(BackendOllama))),
		Ollama: ProviderOllama{
			Host:  getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434"),
			Model: getEnvOrDefault("OLLAMA_MODEL", "llama3"),
		},
		OpenAI: ProviderOpenAI{
			APIKey: os.Getenv("OPENAI_API_KEY"),
			Model:  getEnvOrDefault("OPENAI_MODEL", "gpt-4o"),
		},
		OpenRouter: ProviderOpenAI{
			APIKey:  os.Getenv("OPENROUTER_API_KEY"),
			Model:   getEnvOrDefault("OPENROUTER_MODEL", "anthropic/claude-3.5-sonnet"),
			BaseURL: OpenRouterBaseURL,
		},
		XAI: ProviderOpenAI{
			APIKey:  os.Getenv("XAI_API_KEY"),
			Model:   getEnvOrDefault("XAI_MODEL", "grok-2-latest"),
			BaseURL: XAIBaseURL,
		},
		AzureOpenAI: ProviderAzureOpenAI{
			APIKey:     os.Getenv("AZURE_OPENAI_API_KEY"),
			Endpoint:   os.Getenv("AZURE_OPENAI_ENDPOINT"),
			Deployment: os.Getenv("AZURE_OPENAI_DEPLOYMENT"),
			APIVersion: getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2024-02-01"),
		},
		Gemini: ProviderGemini{
			APIKey: os.Getenv("GOOGLE_API_KEY"),
			Model:  getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-pro"),
		},
		Ark: ProviderArk{
			APIKey:  os.Getenv("ARK_API_KEY"),
			Model:   os.Getenv("ARK_MODEL"),
			BaseURL: os.Getenv("ARK_BASE_URL"),
		},
		Tuning: SharedTuning{
			MaxTokens:   getEnvInt("MODEL_MAX_TOKENS", 4096),
			Temperature: getEnvFloat32("MODEL_TEMPERATURE", 0.7),
		},
	}
}

// NewFromEnv constructs a ChatModel from ConfigFromEnv.
func NewFromEnv(ctx context.Context) (model.ToolCallingChatModel, *Config, error) {
	cfg := ConfigFromEnv()
	m, err := New(ctx, cfg)
	if err != nil {
		return nil, cfg, err
	}
	return m, cfg, nil
}

// New constructs a ChatModel from an explicit Config. It validates the config
// first so callers get a clear error at startup rather than on the first
// request.
func New(ctx context.Context, cfg *Config) (model.ToolCallingChatModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var (
		m   model.ToolCallingChatModel
		err error
	)
	switch cfg.Backend {
	case BackendOllama:
		m, err = newOllama(ctx, cfg)
	case BackendOpenAI:
		m, err = newOpenAICompatible(ctx, cfg.OpenAI, cfg.Tuning)
	case BackendOpenRouter:
		m, err = newOpenAICompatible(ctx, withBaseURL(cfg.OpenRouter, OpenRouterBaseURL), cfg.Tuning)
	case BackendXAI:
		m, err = newOpenAICompatible(ctx, withBaseURL(cfg.XAI, XAIBaseURL), cfg.Tuning)
	case BackendAzure:
		m, err = newAzure(ctx, cfg)
	case BackendGemini:
		m, err = newGemini(ctx, cfg)
	case BackendArk:
		m, err = newArk(ctx, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("provider: %s: %w", cfg.Backend, err)
	}
	return m, nil
}

func withBaseURL(p ProviderOpenAI, fallback string) ProviderOpenAI {
	if p.BaseURL == "" {
		p.BaseURL = fallback
	}
	return p
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

// getEnvFloat32 returns the float32 value of the named environment variable,
// or fallback if the variable is unset, empty, or not parseable.
func getEnvFloat32(key string, fallback float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return fallback
}
