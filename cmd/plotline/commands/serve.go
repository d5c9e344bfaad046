package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/plotline-go/internal/logging"
	"github.com/54b3r/plotline-go/internal/server"
	"github.com/54b3r/plotline-go/internal/tracing"
)

// NewServeCmd constructs the `plotline serve` command, which starts the HTTP
// API used by the book editor.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the plotline HTTP server",
		Long: `Start the plotline HTTP server.

The server exposes planning context, semantic search, reindexing and the
streaming writing assistant under /api/books/{bookID}. The writing assistant
is disabled when no chat model is configured; everything else still works.

Examples:
  plotline serve
  plotline serve --port 9090
  VECTOR_BACKEND=qdrant plotline serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting",
				slog.String("provider", os.Getenv("MODEL_PROVIDER")),
				slog.String("vector_backend", os.Getenv("VECTOR_BACKEND")),
			)

			// Setup Langfuse tracing: opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			a, err := newApp(ctx, log, prometheus.DefaultRegisterer)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer a.close()

			pingers := []server.Pinger{server.NewDBPinger(a.db)}
			if a.qdrant != nil {
				pingers = append(pingers, server.NewQdrantPinger(a.qdrant.Client()))
			}
			if os.Getenv("REDIS_ADDR") != "" {
				pingers = append(pingers, server.NewCachePinger(a.cache))
			}

			deps := &server.Deps{
				Retrieval: a.retrieval,
				Planning:  a.planner,
				Entities:  a.repo,
				Cache:     a.cache,
			}
			wa, chatModel, providerCfg, err := a.newAgent(ctx)
			if err != nil {
				log.Warn("writing assistant disabled", slog.Any("error", err))
			} else {
				deps.Agent = wa
				pingers = append(pingers, server.NewLLMPinger(chatModel, string(providerCfg.Backend)))
				log.Info("provider initialised",
					slog.String("provider", string(providerCfg.Backend)),
					slog.String("model", providerCfg.ModelName()),
				)
			}

			// Flags win; env is read here so .env and YAML values apply.
			if host == "" {
				host = os.Getenv("PLOTLINE_HOST")
			}
			if port == 0 {
				port = envInt("PLOTLINE_PORT", 0)
			}

			srv, err := server.New(deps, &server.Config{
				Host:            host,
				Port:            port,
				Logger:          log,
				Pingers:         pingers,
				APIKey:          os.Getenv("PLOTLINE_API_KEY"),
				ReadOnlyAPIKey:  os.Getenv("PLOTLINE_READONLY_API_KEY"),
				RateLimit:       float64(envInt("PLOTLINE_RATE_LIMIT", 0)),
				RateBurst:       envInt("PLOTLINE_RATE_BURST", 0),
				ReindexInterval: time.Duration(envInt("PLOTLINE_REINDEX_INTERVAL", 0)) * time.Second,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Host address to bind to (default 127.0.0.1, env PLOTLINE_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "TCP port to listen on (default 8080, env PLOTLINE_PORT)")

	return cmd
}
