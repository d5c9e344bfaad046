package server

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/qdrant/go-client/qdrant"
	"gorm.io/gorm"

	"github.com/54b3r/plotline-go/internal/cache"
	"github.com/54b3r/plotline-go/internal/store"
)

// DBPinger probes the relational database.
type DBPinger struct {
	db *gorm.DB
}

// NewDBPinger constructs a DBPinger for db.
func NewDBPinger(db *gorm.DB) *DBPinger { return &DBPinger{db: db} }

// Name returns the dependency label used in readiness responses.
func (p *DBPinger) Name() string { return "database" }

// Ping checks the underlying connection pool.
func (p *DBPinger) Ping(ctx context.Context) error { return store.Ping(ctx, p.db) }

// QdrantPinger probes a Qdrant instance using its native HealthCheck RPC.
type QdrantPinger struct {
	// client is the Qdrant gRPC client to probe.
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for the given Qdrant client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	if _, err := p.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// CachePinger probes the planning-context cache.
type CachePinger struct {
	cache cache.Cache
}

// NewCachePinger constructs a CachePinger for c.
func NewCachePinger(c cache.Cache) *CachePinger { return &CachePinger{cache: c} }

// Name returns the dependency label used in readiness responses.
func (p *CachePinger) Name() string { return "redis" }

// Ping calls the cache's Ping.
func (p *CachePinger) Ping(ctx context.Context) error { return p.cache.Ping(ctx) }

// LLMPinger probes an LLM backend with a single-token generate request.
// Each probe consumes a token, so readiness checks should be infrequent.
type LLMPinger struct {
	// model is the chat model to probe.
	model model.BaseChatModel
	// name identifies the backend in readiness responses (e.g. "ollama").
	name string
}

// NewLLMPinger constructs an LLMPinger for the given model and backend name.
func NewLLMPinger(m model.BaseChatModel, name string) *LLMPinger {
	return &LLMPinger{model: m, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *LLMPinger) Name() string { return p.name }

// Ping sends "ping" and expects any non-nil reply.
func (p *LLMPinger) Ping(ctx context.Context) error {
	resp, err := p.model.Generate(ctx, []*schema.Message{schema.UserMessage("ping")}, model.WithMaxTokens(1))
	if err != nil {
		return fmt.Errorf("generate failed: %w", err)
	}
	if resp == nil {
		return fmt.Errorf("generate returned nil response")
	}
	return nil
}
