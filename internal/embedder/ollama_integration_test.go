//go:build integration

package embedder

import (
	"context"
	"os"
	"testing"
	"time"
)

// TestOllamaEmbedder_Integration performs real HTTP calls to a locally running
// Ollama instance through the Adapter.
//
// Prerequisites:
//
//	ollama pull nomic-embed-text
//	ollama serve
//
// Run with:
//
//	go test -tags=integration -run TestOllamaEmbedder_Integration ./internal/embedder/
func TestOllamaEmbedder_Integration(t *testing.T) {
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		host = defaultOllamaHost
	}
	model := os.Getenv("EMBEDDING_MODEL")
	if model == "" {
		model = defaultOllamaModel
	}

	a := NewAdapter(&AdapterConfig{
		Default:      NewOllamaEmbedder(&OllamaConfig{Host: host, Model: model}),
		DefaultLabel: "ollama/" + model,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	first, err := a.Embed(ctx, "Alice opens her bakery on the first morning of spring.")
	if err != nil {
		t.Fatalf("Embed() failed: %v\n\nEnsure Ollama is running and %q is pulled:\n  ollama pull %s", err, model, model)
	}
	second, err := a.Embed(ctx, "The harbour town floods during the autumn storms.")
	if err != nil {
		t.Fatalf("Embed() failed: %v", err)
	}

	if len(first) == 0 || len(first) != len(second) {
		t.Fatalf("unexpected dimensions: %d and %d", len(first), len(second))
	}

	identical := true
	for j := range first {
		if first[j] != second[j] {
			identical = false
			break
		}
	}
	if identical {
		t.Error("embeddings for different texts are identical, model may not be working correctly")
	}

	t.Logf("model=%s dim=%d (set EMBEDDING_DIMENSIONS=%d for the Qdrant collection)", model, len(first), len(first))
}
