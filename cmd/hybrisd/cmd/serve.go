package cmd

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezkaaufar/hybrid-search-service/internal/ingest"
	"github.com/rezkaaufar/hybrid-search-service/internal/rerank"
	"github.com/rezkaaufar/hybrid-search-service/internal/search"
	"github.com/rezkaaufar/hybrid-search-service/internal/server"
)

// newServeCmd creates the serve command.
func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP search and rerank API",
		Long: `Start the HTTP server exposing POST /query (hybrid search),
POST /rerank (cross-encoder reranking), and GET /health.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	cfg, logCleanup, err := setupLogging(opts)
	if err != nil {
		return err
	}
	defer logCleanup()

	stack, err := buildStack(ctx, cfg)
	if err != nil {
		return err
	}
	defer stack.Close()

	if !stack.Embedder.Available(ctx) {
		slog.Warn("embedder_unavailable_semantic_search_degraded",
			slog.String("model", stack.Embedder.ModelName()))
	}

	// An empty vector index with persisted embeddings means the sidecar
	// is missing or stale; rebuild from chunk rows.
	if stack.Vector.Count() == 0 {
		added, err := ingest.RebuildVectorIndex(ctx, stack.Docs, stack.Vector)
		if err != nil {
			slog.Warn("vector_index_rebuild_failed",
				slog.String("error", err.Error()))
		} else if added > 0 {
			slog.Info("vector_index_rebuilt", slog.Int("vectors", added))
		}
	}

	executor := search.NewExecutor(stack.Lexical, stack.Vector, stack.Embedder, stack.Docs,
		search.ExecutorConfig{RRFConstant: cfg.Search.RRFConstant})

	gate := rerank.NewGate(newScorer(ctx, cfg), rerank.GateConfig{
		Permits:      cfg.Rerank.Permits,
		MaxDocuments: cfg.Rerank.MaxDocuments,
	})
	defer gate.Close()

	// Warm before accepting traffic; failure degrades, never aborts.
	gate.Warm(ctx)

	srv := server.New(server.Deps{Executor: executor, Gate: gate, Config: cfg})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
