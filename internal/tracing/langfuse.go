// Package tracing exports writing-assistant runs to Langfuse.
package tracing

import (
	"os"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"

	"github.com/54b3r/plotline-go/internal/version"
)

// DefaultHost is used when LANGFUSE_HOST is unset.
const DefaultHost = "http://localhost:3000"

// Config holds the Langfuse connection settings.
type Config struct {
	Host      string
	PublicKey string
	SecretKey string
}

// FromEnv reads LANGFUSE_HOST, LANGFUSE_PUBLIC_KEY and LANGFUSE_SECRET_KEY.
// It returns nil when either key is missing.
func FromEnv() *Config {
	cfg := &Config{
		Host:      os.Getenv("LANGFUSE_HOST"),
		PublicKey: os.Getenv("LANGFUSE_PUBLIC_KEY"),
		SecretKey: os.Getenv("LANGFUSE_SECRET_KEY"),
	}
	if cfg.PublicKey == "" || cfg.SecretKey == "" {
		return nil
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	return cfg
}

// Setup initialises the Langfuse callback handler from the environment.
// The returned flush function must be called before process exit so pending
// traces are sent. When Langfuse is not configured ok is false and tracing is
// disabled.
func Setup() (handler callbacks.Handler, flush func(), ok bool) {
	cfg := FromEnv()
	if cfg == nil {
		return nil, nil, false
	}
	handler, flush = langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      cfg.Host,
		PublicKey: cfg.PublicKey,
		SecretKey: cfg.SecretKey,
		Name:      "plotline",
		Release:   version.Version,
	})
	return handler, flush, true
}
