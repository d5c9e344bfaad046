package embedder

import (
	"fmt"
	"log/slog"
	"strings"
)

// knownChatModelPrefixes contains name fragments that identify chat/completion
// models which are not suitable for embedding.
var knownChatModelPrefixes = []string{
	"gpt-4",
	"gpt-3.5",
	"gpt-35",
	"o1",
	"o3",
	"grok",
	"llama3",
	"llama2",
	"llama-3",
	"llama-2",
	"mistral",
	"mixtral",
	"gemma",
	"phi-",
	"phi3",
	"claude",
	"command-r",
	"deepseek",
	"qwen",
	"solar",
	"vicuna",
	"falcon",
	"yi-",
}

// looksLikeChatModel returns true when the model name resembles a known
// chat/completion model rather than a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	if strings.Contains(lower, "embed") {
		return false
	}
	for _, prefix := range knownChatModelPrefixes {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

// Validate is a pre-flight check for the default embedding configuration.
// It returns an error when the configuration cannot work (missing key or
// endpoint) and logs a warning when the model looks like a chat model.
// An empty Provider is not an error: semantic search is then disabled and
// callers get ErrNoProvider at embed time.
func Validate(cfg ProviderConfig, log *slog.Logger) error {
	if cfg.Provider == "" {
		log.Warn("embedder: no embedding provider configured, semantic search disabled",
			slog.String("hint", "set EMBEDDING_PROVIDER=ollama (or openai/openrouter/xai/azure)"),
		)
		return nil
	}

	switch cfg.Provider {
	case ProviderOllama:
	case ProviderOpenAI, ProviderOpenRouter, ProviderXAI:
		if cfg.APIKey == "" {
			return fmt.Errorf("embedder: %s embedding needs an API key, set EMBEDDING_API_KEY or the provider key variable", cfg.Provider)
		}
	case ProviderAzure:
		if cfg.APIKey == "" {
			return fmt.Errorf("embedder: azure embedding needs AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		if cfg.BaseURL == "" {
			return fmt.Errorf("embedder: azure embedding needs AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
	default:
		return fmt.Errorf("embedder: unknown provider %q, valid values: openai, openrouter, xai, azure, ollama", cfg.Provider)
	}

	if cfg.Model != "" && looksLikeChatModel(cfg.Model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model, not an embedding model",
			slog.String("model", cfg.Model),
			slog.String("hint", "use a dedicated embedding model e.g. nomic-embed-text, text-embedding-3-small"),
		)
	}

	return nil
}
