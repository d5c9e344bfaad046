package provider

import (
	"strings"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		// ── Ollama ────────────────────────────────────────────────────────────
		{
			name: "ollama/valid",
			cfg: Config{
				Backend: BackendOllama,
				Ollama:  ProviderOllama{Host: "http://localhost:11434", Model: "llama3"},
			},
		},
		{
			name:    "ollama/missing model",
			cfg:     Config{Backend: BackendOllama, Ollama: ProviderOllama{Host: "http://localhost:11434"}},
			wantErr: "OLLAMA_MODEL",
		},

		// ── OpenAI ────────────────────────────────────────────────────────────
		{
			name: "openai/valid",
			cfg: Config{
				Backend: BackendOpenAI,
				OpenAI:  ProviderOpenAI{APIKey: "sk-test", Model: "gpt-4o"},
			},
		},
		{
			name:    "openai/missing api key",
			cfg:     Config{Backend: BackendOpenAI, OpenAI: ProviderOpenAI{Model: "gpt-4o"}},
			wantErr: "OPENAI_API_KEY",
		},
		{
			name:    "openai/missing model",
			cfg:     Config{Backend: BackendOpenAI, OpenAI: ProviderOpenAI{APIKey: "sk-test"}},
			wantErr: "OPENAI_MODEL",
		},

		// ── Azure ─────────────────────────────────────────────────────────────
		{
			name: "azure/valid",
			cfg: Config{
				Backend: BackendAzure,
				AzureOpenAI: ProviderAzureOpenAI{
					APIKey:     "key",
					Endpoint:   "https://my.openai.azure.com",
					Deployment: "gpt-4o",
					APIVersion: "2024-02-01",
				},
			},
		},
		{
			name: "azure/missing api key",
			cfg: Config{
				Backend: BackendAzure,
				AzureOpenAI: ProviderAzureOpenAI{
					Endpoint:   "https://my.openai.azure.com",
					Deployment: "gpt-4o",
				},
			},
			wantErr: "AZURE_OPENAI_API_KEY",
		},
		{
			name: "azure/missing endpoint",
			cfg: Config{
				Backend: BackendAzure,
				AzureOpenAI: ProviderAzureOpenAI{
					APIKey:     "key",
					Deployment: "gpt-4o",
				},
			},
			wantErr: "AZURE_OPENAI_ENDPOINT",
		},
		{
			name: "azure/missing deployment",
			cfg: Config{
				Backend: BackendAzure,
				AzureOpenAI: ProviderAzureOpenAI{
					APIKey:   "key",
					Endpoint: "https://my.openai.azure.com",
				},
			},
			wantErr: "AZURE_OPENAI_DEPLOYMENT",
		},

		// ── OpenRouter / X.AI ────────────────────────────────────────────────
		{
			name: "openrouter/valid",
			cfg: Config{
				Backend:    BackendOpenRouter,
				OpenRouter: ProviderOpenAI{APIKey: "sk-or", Model: "anthropic/claude-3.5-sonnet"},
			},
		},
		{
			name:    "openrouter/missing api key",
			cfg:     Config{Backend: BackendOpenRouter, OpenRouter: ProviderOpenAI{Model: "x"}},
			wantErr: "OPENROUTER_API_KEY",
		},
		{
			name: "xai/valid",
			cfg:  Config{Backend: BackendXAI, XAI: ProviderOpenAI{APIKey: "xai-test", Model: "grok-2-latest"}},
		},
		{
			name:    "xai/missing model",
			cfg:     Config{Backend: BackendXAI, XAI: ProviderOpenAI{APIKey: "xai-test"}},
			wantErr: "XAI_MODEL",
		},

		// ── Ark ──────────────────────────────────────────────────────────────
		{
			name: "ark/valid",
			cfg:  Config{Backend: BackendArk, Ark: ProviderArk{APIKey: "ark", Model: "doubao-pro"}},
		},
		{
			name:    "ark/missing both",
			cfg:     Config{Backend: BackendArk},
			wantErr: "ARK_API_KEY, ARK_MODEL",
		},

		// ── Gemini ────────────────────────────────────────────────────────────
		{
			name: "gemini/valid",
			cfg: Config{
				Backend: BackendGemini,
				Gemini:  ProviderGemini{APIKey: "AIza-test", Model: "gemini-1.5-pro"},
			},
		},
		{
			name:    "gemini/missing api key",
			cfg:     Config{Backend: BackendGemini, Gemini: ProviderGemini{Model: "gemini-1.5-pro"}},
			wantErr: "GOOGLE_API_KEY",
		},
		{
			name:    "gemini/missing model",
			cfg:     Config{Backend: BackendGemini, Gemini: ProviderGemini{APIKey: "AIza-test"}},
			wantErr: "GEMINI_MODEL",
		},

		// ── Unknown backend ───────────────────────────────────────────────────
		{
			name:    "unknown backend",
			cfg:     Config{Backend: "unknown"},
			wantErr: "unknown backend",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("Validate() error = %q, want substring %q", err.Error(), tc.wantErr)
			}
		})
	}
}

func TestIsAzureReasoningModel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		deployment string
		want       bool
	}{
		// known o-series: should be detected
		{"o1", true},
		{"o1-preview", true},
		{"o1-mini", true},
		{"o3", true},
		{"o3-mini", true},
		{"o3-pro", true},
		{"o4-mini", true},
		{"O1-PREVIEW", true}, // case-insensitive
		{"O3-Mini", true},    // case-insensitive
		// codex-class: should be detected
		{"codex-mini", true},
		{"codex", true},
		{"gpt-5.2-codex", false}, // "codex" not at start: not matched by prefix rule
		// standard models: should NOT be detected
		{"gpt-4o", false},
		{"gpt-4o-mini", false},
		{"gpt-4", false},
		{"gpt-4.1", false},
		{"gpt-35-turbo", false},
		{"my-custom-deployment", false},
		{"", false},
	}

	for _, tc := range tests {
		t.Run(tc.deployment, func(t *testing.T) {
			t.Parallel()
			got := isAzureReasoningModel(tc.deployment)
			if got != tc.want {
				t.Errorf("isAzureReasoningModel(%q) = %v, want %v", tc.deployment, got, tc.want)
			}
		})
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("MODEL_PROVIDER", "openrouter")
	t.Setenv("OPENROUTER_API_KEY", "sk-or-test")
	t.Setenv("OPENROUTER_MODEL", "")
	t.Setenv("MODEL_MAX_TOKENS", "2048")
	t.Setenv("MODEL_TEMPERATURE", "not-a-number")

	cfg := ConfigFromEnv()
	if cfg.Backend != BackendOpenRouter {
		t.Errorf("Backend = %q, want openrouter", cfg.Backend)
	}
	if cfg.OpenRouter.BaseURL != OpenRouterBaseURL {
		t.Errorf("OpenRouter.BaseURL = %q", cfg.OpenRouter.BaseURL)
	}
	if cfg.ModelName() != "anthropic/claude-3.5-sonnet" {
		t.Errorf("ModelName() = %q, want default openrouter model", cfg.ModelName())
	}
	if cfg.Tuning.MaxTokens != 2048 {
		t.Errorf("MaxTokens = %d, want 2048", cfg.Tuning.MaxTokens)
	}
	if cfg.Tuning.Temperature != 0.7 {
		t.Errorf("Temperature = %v, want fallback 0.7", cfg.Tuning.Temperature)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	_, err := New(t.Context(), &Config{Backend: BackendOpenAI})
	if err == nil || !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Fatalf("New() error = %v, want missing OPENAI_API_KEY", err)
	}
}

func TestWithBaseURL(t *testing.T) {
	t.Parallel()
	if got := withBaseURL(ProviderOpenAI{}, XAIBaseURL).BaseURL; got != XAIBaseURL {
		t.Errorf("withBaseURL fallback = %q", got)
	}
	if got := withBaseURL(ProviderOpenAI{BaseURL: "http://proxy"}, XAIBaseURL).BaseURL; got != "http://proxy" {
		t.Errorf("withBaseURL override = %q", got)
	}
}
