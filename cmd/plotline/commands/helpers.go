package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/54b3r/plotline-go/internal/agent"
	"github.com/54b3r/plotline-go/internal/budget"
	"github.com/54b3r/plotline-go/internal/cache"
	"github.com/54b3r/plotline-go/internal/chunker"
	"github.com/54b3r/plotline-go/internal/embedder"
	"github.com/54b3r/plotline-go/internal/planning"
	"github.com/54b3r/plotline-go/internal/provider"
	"github.com/54b3r/plotline-go/internal/rag"
	"github.com/54b3r/plotline-go/internal/retrieval"
	"github.com/54b3r/plotline-go/internal/store"
	"github.com/54b3r/plotline-go/internal/tools"
)

// Vector backends selectable with VECTOR_BACKEND.
const (
	backendGorm   = "gorm"
	backendQdrant = "qdrant"
	backendMemory = "memory"
)

// app holds the services shared by every command. Build it with newApp and
// release it with close.
type app struct {
	log *slog.Logger

	db      *gorm.DB
	repo    *planning.GormRepo
	planner *planning.Builder
	history *store.History

	chunks    *rag.ChunkStore
	qdrant    *rag.QdrantStore
	embedder  *embedder.Adapter
	retrieval *retrieval.Service
	cache     cache.Cache
}

// newApp opens the database, migrates the planning schema and wires the
// retrieval stack from the environment. Embedding and retrieval collectors are
// registered with reg; serve passes the registry /metrics gathers from.
func newApp(ctx context.Context, log *slog.Logger, reg prometheus.Registerer) (*app, error) {
	db, err := store.Open(store.FromEnv(log))
	if err != nil {
		return nil, err
	}
	a := &app{log: log, db: db, cache: cache.Nop{}}

	if err := planning.Migrate(db); err != nil {
		a.close()
		return nil, err
	}
	a.repo = planning.NewGormRepo(db)
	a.planner = planning.NewBuilder(a.repo, budget.PlanningFromEnv())

	if a.history, err = store.NewHistory(db); err != nil {
		a.close()
		return nil, err
	}

	embCfg := embedder.ConfigFromEnv()
	if err := embedder.Validate(embCfg, log); err != nil {
		a.close()
		return nil, err
	}
	a.embedder, err = buildEmbedder(embCfg, reg)
	if err != nil {
		a.close()
		return nil, err
	}

	backend, err := a.buildBackend(ctx, embCfg)
	if err != nil {
		a.close()
		return nil, err
	}
	if a.chunks, err = rag.NewChunkStore(backend); err != nil {
		a.close()
		return nil, err
	}

	a.retrieval, err = retrieval.New(&retrieval.Config{
		Store:           a.chunks,
		Embedder:        a.embedder,
		Chunker:         chunker.New(chunker.FromEnv()),
		Entities:        a.repo,
		MetricsRegistry: reg,
	})
	if err != nil {
		a.close()
		return nil, err
	}

	if rc := cache.RedisConfigFromEnv(); rc != nil {
		r, err := cache.NewRedis(ctx, rc)
		if err != nil {
			// The cache is optional: planning context is rebuilt per request.
			log.Warn("redis unavailable, planning cache disabled", slog.Any("error", err))
		} else {
			a.cache = r
			log.Info("planning cache enabled", slog.String("addr", rc.Addr))
		}
	}
	return a, nil
}

// buildEmbedder returns the Adapter around the default provider. An empty
// provider leaves the adapter without a default so calls fail with
// ErrNoProvider.
func buildEmbedder(cfg embedder.ProviderConfig, reg prometheus.Registerer) (*embedder.Adapter, error) {
	var def embedder.Backend
	if cfg.Provider != "" {
		b, err := embedder.New(cfg)
		if err != nil {
			return nil, err
		}
		def = b
	}
	return embedder.NewAdapter(&embedder.AdapterConfig{
		Default:         def,
		DefaultLabel:    cfg.Label(),
		MaxChars:        envInt("EMBEDDING_MAX_CHARS", 0),
		Timeout:         time.Duration(envInt("EMBEDDING_TIMEOUT", 0)) * time.Second,
		MetricsRegistry: reg,
	}), nil
}

// buildBackend selects the chunk backend named by VECTOR_BACKEND.
func (a *app) buildBackend(ctx context.Context, embCfg embedder.ProviderConfig) (rag.VectorStore, error) {
	switch name := strings.ToLower(os.Getenv("VECTOR_BACKEND")); name {
	case "", backendGorm:
		return rag.NewGormStore(a.db)
	case backendMemory:
		a.log.Warn("memory vector backend: chunks are lost on exit")
		return rag.NewMemoryStore(), nil
	case backendQdrant:
		qs, err := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
			Host:       os.Getenv("QDRANT_HOST"),
			Port:       envInt("QDRANT_PORT", 0),
			Collection: os.Getenv("QDRANT_COLLECTION"),
			VectorSize: uint64(embedder.DefaultDimensions(embCfg.Provider)),
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     os.Getenv("QDRANT_TLS") == "true",
		})
		if err != nil {
			return nil, err
		}
		a.qdrant = qs
		return qs, nil
	default:
		return nil, fmt.Errorf("unknown VECTOR_BACKEND %q, valid values: gorm, qdrant, memory", name)
	}
}

// newAgent constructs the chat model from the environment and the writing
// agent around it.
func (a *app) newAgent(ctx context.Context) (*agent.WritingAgent, model.ToolCallingChatModel, *provider.Config, error) {
	chatModel, providerCfg, err := provider.NewFromEnv(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	wa, err := agent.New(ctx, &agent.Config{
		ChatModel: chatModel,
		Tools:     buildTools(a),
		Planning:  a.planner,
		Searcher:  a.retrieval,
		History:   a.history,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialise agent: %w", err)
	}
	return wa, chatModel, providerCfg, nil
}

// buildTools constructs the Eino tools offered to the writing agent.
func buildTools(a *app) []tool.BaseTool {
	return []tool.BaseTool{
		tools.NewSearchTool(a.retrieval),
		tools.NewPlanningTool(a.planner),
		tools.NewEntityTool(a.repo),
	}
}

// close releases every open connection. Errors are logged.
func (a *app) close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.log.Warn("cache close failed", slog.Any("error", err))
		}
	}
	if a.chunks != nil {
		if err := a.chunks.Close(); err != nil {
			a.log.Warn("chunk store close failed", slog.Any("error", err))
		}
	}
	if a.db != nil {
		if err := store.Close(a.db); err != nil {
			a.log.Warn("database close failed", slog.Any("error", err))
		}
	}
}

// envInt returns the integer value of key, or fallback when unset or malformed.
func envInt(key string, fallback int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return fallback
}
