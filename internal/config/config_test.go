package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_NoFile(t *testing.T) {
	t.Parallel()

	log := slog.Default()
	path, err := Load("/nonexistent/path/config.yaml", log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "" {
		t.Errorf("expected empty path, got %q", path)
	}
}

func TestLoad_ValidFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
model:
  provider: openrouter
  max_tokens: 8192
  temperature: 0.7
  openrouter:
    model: anthropic/claude-3.5-sonnet
embedding:
  provider: ollama
  model: nomic-embed-text
  max_chars: 6000
database:
  driver: postgres
  dsn: postgres://plotline@db/plotline
vector_store:
  backend: qdrant
qdrant:
  host: qdrant.internal
  port: 6334
  collection: manuscripts
planning:
  token_budget: 12000
  chars_per_token: 3
chunking:
  size: 600
  overlap: 80
logging:
  level: debug
  format: text
server:
  readonly_api_key: ro-key
  reindex_interval_seconds: 120
  rate_limit: 5
  rate_burst: 8
`)

	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	envKeys := []string{
		"MODEL_PROVIDER", "MODEL_MAX_TOKENS", "MODEL_TEMPERATURE", "OPENROUTER_MODEL",
		"EMBEDDING_PROVIDER", "EMBEDDING_MODEL", "EMBEDDING_MAX_CHARS",
		"PLOTLINE_DB_DRIVER", "PLOTLINE_DB_DSN", "VECTOR_BACKEND",
		"QDRANT_HOST", "QDRANT_PORT", "QDRANT_COLLECTION",
		"PLANNING_TOKEN_BUDGET", "PLANNING_CHARS_PER_TOKEN",
		"CHUNK_SIZE", "CHUNK_OVERLAP",
		"LOG_LEVEL", "LOG_FORMAT",
		"PLOTLINE_READONLY_API_KEY", "PLOTLINE_REINDEX_INTERVAL", "PLOTLINE_RATE_LIMIT", "PLOTLINE_RATE_BURST",
	}
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	log := slog.Default()
	loaded, err := Load(cfgPath, log)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != cfgPath {
		t.Errorf("loaded path: got %q, want %q", loaded, cfgPath)
	}

	checks := map[string]string{
		"MODEL_PROVIDER":            "openrouter",
		"MODEL_MAX_TOKENS":          "8192",
		"MODEL_TEMPERATURE":         "0.7",
		"OPENROUTER_MODEL":          "anthropic/claude-3.5-sonnet",
		"EMBEDDING_PROVIDER":        "ollama",
		"EMBEDDING_MODEL":           "nomic-embed-text",
		"EMBEDDING_MAX_CHARS":       "6000",
		"PLOTLINE_DB_DRIVER":        "postgres",
		"PLOTLINE_DB_DSN":           "postgres://plotline@db/plotline",
		"VECTOR_BACKEND":            "qdrant",
		"QDRANT_HOST":               "qdrant.internal",
		"QDRANT_PORT":               "6334",
		"QDRANT_COLLECTION":         "manuscripts",
		"PLANNING_TOKEN_BUDGET":     "12000",
		"PLANNING_CHARS_PER_TOKEN":  "3",
		"CHUNK_SIZE":                "600",
		"CHUNK_OVERLAP":             "80",
		"LOG_LEVEL":                 "debug",
		"LOG_FORMAT":                "text",
		"PLOTLINE_READONLY_API_KEY": "ro-key",
		"PLOTLINE_REINDEX_INTERVAL": "120",
		"PLOTLINE_RATE_LIMIT":       "5",
		"PLOTLINE_RATE_BURST":       "8",
	}
	for k, want := range checks {
		got := os.Getenv(k)
		if got != want {
			t.Errorf("%s: got %q, want %q", k, got, want)
		}
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
model:
  provider: ollama
vector_store:
  backend: qdrant
`)
	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("MODEL_PROVIDER", "xai")
	t.Setenv("VECTOR_BACKEND", "gorm")

	log := slog.Default()
	_, err := Load(cfgPath, log)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := os.Getenv("MODEL_PROVIDER"); got != "xai" {
		t.Errorf("MODEL_PROVIDER: expected env override %q, got %q", "xai", got)
	}
	if got := os.Getenv("VECTOR_BACKEND"); got != "gorm" {
		t.Errorf("VECTOR_BACKEND: expected env override %q, got %q", "gorm", got)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(cfgPath, []byte("{{invalid yaml"), 0o644); err != nil {
		t.Fatal(err)
	}

	log := slog.Default()
	_, err := Load(cfgPath, log)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestFloat32Str(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   float32
		want string
	}{
		{0.0, ""},
		{0.2, "0.2"},
		{0.3, "0.3"},
		{1.0, "1"},
	}
	for _, tt := range tests {
		if got := float32Str(tt.in); got != tt.want {
			t.Errorf("float32Str(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBoolStrAndIntStr(t *testing.T) {
	t.Parallel()
	if got := boolStr(false); got != "" {
		t.Errorf("boolStr(false) = %q, want empty", got)
	}
	if got := boolStr(true); got != "true" {
		t.Errorf("boolStr(true) = %q, want true", got)
	}
	if got := intStr(0); got != "" {
		t.Errorf("intStr(0) = %q, want empty", got)
	}
	if got := intStr(32000); got != "32000" {
		t.Errorf("intStr(32000) = %q, want 32000", got)
	}
}
