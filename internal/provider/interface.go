// Package provider builds the chat model used by the writing assistant.
// Supported backends: Ollama, OpenAI, OpenRouter, X.AI, Azure OpenAI,
// Google Gemini and Volcengine Ark.
package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
)

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendOpenRouter selects OpenRouter's OpenAI-compatible API.
	BackendOpenRouter Backend = "openrouter"
	// BackendXAI selects X.AI's OpenAI-compatible API.
	BackendXAI Backend = "xai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
	// BackendArk selects Volcengine Ark.
	BackendArk Backend = "ark"
)

// Default OpenAI-compatible endpoints.
const (
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
	XAIBaseURL        = "https://api.x.ai/v1"
)

// ProviderOllama holds Ollama settings.
type ProviderOllama struct {
	Host  string
	Model string
}

// ProviderOpenAI holds settings for OpenAI and the OpenAI-compatible hosted
// APIs (OpenRouter, X.AI). BaseURL is empty for OpenAI itself.
type ProviderOpenAI struct {
	APIKey  string
	Model   string
	BaseURL string
}

// ProviderAzureOpenAI holds Azure OpenAI settings.
type ProviderAzureOpenAI struct {
	APIKey     string
	Endpoint   string
	Deployment string
	APIVersion string
}

// ProviderGemini holds Google AI Studio settings.
type ProviderGemini struct {
	APIKey string
	Model  string
}

// ProviderArk holds Volcengine Ark settings.
type ProviderArk struct {
	APIKey  string
	Model   string
	BaseURL string
}

// SharedTuning holds generation parameters applied to every backend that
// accepts them.
type SharedTuning struct {
	// MaxTokens caps the number of tokens generated per response.
	MaxTokens int
	// Temperature controls response randomness (0.0–1.0).
	Temperature float32
}

// Config holds the resolved settings of every backend; Backend picks one.
type Config struct {
	Backend     Backend
	Ollama      ProviderOllama
	OpenAI      ProviderOpenAI
	OpenRouter  ProviderOpenAI
	XAI         ProviderOpenAI
	AzureOpenAI ProviderAzureOpenAI
	Gemini      ProviderGemini
	Ark         ProviderArk
	Tuning      SharedTuning
}

// Validate reports the first missing setting for the selected backend,
// naming the environment variable that supplies it.
func (c *Config) Validate() error {
	var missing []string
	need := func(v, env string) {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, env)
		}
	}
	switch c.Backend {
	case BackendOllama:
		need(c.Ollama.Model, "OLLAMA_MODEL")
	case BackendOpenAI:
		need(c.OpenAI.APIKey, "OPENAI_API_KEY")
		need(c.OpenAI.Model, "OPENAI_MODEL")
	case BackendOpenRouter:
		need(c.OpenRouter.APIKey, "OPENROUTER_API_KEY")
		need(c.OpenRouter.Model, "OPENROUTER_MODEL")
	case BackendXAI:
		need(c.XAI.APIKey, "XAI_API_KEY")
		need(c.XAI.Model, "XAI_MODEL")
	case BackendAzure:
		need(c.AzureOpenAI.APIKey, "AZURE_OPENAI_API_KEY")
		need(c.AzureOpenAI.Endpoint, "AZURE_OPENAI_ENDPOINT")
		need(c.AzureOpenAI.Deployment, "AZURE_OPENAI_DEPLOYMENT")
	case BackendGemini:
		need(c.Gemini.APIKey, "GOOGLE_API_KEY")
		need(c.Gemini.Model, "GEMINI_MODEL")
	case BackendArk:
		need(c.Ark.APIKey, "ARK_API_KEY")
		need(c.Ark.Model, "ARK_MODEL")
	default:
		return fmt.Errorf("provider: unknown backend %q, valid values: ollama, openai, openrouter, xai, azure, gemini, ark", c.Backend)
	}
	if len(missing) > 0 {
		return fmt.Errorf("provider: %s backend requires %s", c.Backend, strings.Join(missing, ", "))
	}
	return nil
}

// ModelName returns the model or deployment name of the selected backend.
func (c *Config) ModelName() string {
	switch c.Backend {
	case BackendOllama:
		return c.Ollama.Model
	case BackendOpenAI:
		return c.OpenAI.Model
	case BackendOpenRouter:
		return c.OpenRouter.Model
	case BackendXAI:
		return c.XAI.Model
	case BackendAzure:
		return c.AzureOpenAI.Deployment
	case BackendGemini:
		return c.Gemini.Model
	case BackendArk:
		return c.Ark.Model
	}
	return ""
}

// Factory constructs a ChatModel from a Config. Implementations must be safe
// to call from multiple goroutines.
type Factory interface {
	New(ctx context.Context, cfg *Config) (model.ToolCallingChatModel, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, cfg *Config) (model.ToolCallingChatModel, error)

// New calls f.
func (f FactoryFunc) New(ctx context.Context, cfg *Config) (model.ToolCallingChatModel, error) {
	return f(ctx, cfg)
}
