package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/agrai/agrai-go/internal/chat"
	"github.com/agrai/agrai-go/internal/logging"
	"github.com/agrai/agrai-go/internal/provider"
	"github.com/agrai/agrai-go/internal/server"
	"github.com/agrai/agrai-go/internal/tracing"
)

// NewServeCmd constructs the `agrai serve` command, which starts the HTTP
// server exposing the assistant and its memory.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the agrai HTTP server",
		Long: `Start the agrai HTTP server on localhost.

The server exposes a REST API for chat, similarity search over past
conversations, and memory administration. Semantic memory is persisted to
disk and survives restarts.

Examples:
  agrai serve
  agrai serve --port 9090
  MODEL_PROVIDER=azure agrai serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise model provider: %w", err)
			}
			log.Info("provider initialised", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			mem, resolved, err := openMemoryStore(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			history, closeHistory := openHistory(log)
			defer closeHistory()

			assistant, err := chat.New(&chat.Config{
				ChatModel:      chatModel,
				Memory:         mem,
				History:        history,
				ContextResults: contextResultsFromEnv(3),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to initialise assistant: %w", err)
			}

			snapshotDir, err := memoryDir()
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			pingers := []server.Pinger{
				server.NewEmbedderPinger(resolved.Embedder, resolved.Backend),
				server.NewMemoryDirPinger(snapshotDir),
			}

			srv, err := server.New(assistant, mem, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: pingers,
				APIKey:  os.Getenv("AGRAI_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
