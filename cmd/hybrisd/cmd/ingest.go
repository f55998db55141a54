package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezkaaufar/hybrid-search-service/internal/config"
	"github.com/rezkaaufar/hybrid-search-service/internal/ingest"
)

// newIngestCmd creates the ingest command.
func newIngestCmd(opts *rootOptions) *cobra.Command {
	var dataPath string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest review datasets into the search indexes",
		Long: `Download (or read from local disk) the configured review datasets,
chunk and embed their contents, and populate the lexical and vector
indexes. Re-running on unchanged data is a no-op per document.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logCleanup, err := setupLogging(opts)
			if err != nil {
				return err
			}
			defer logCleanup()

			if dataPath != "" {
				cfg.Ingest.LocalDataPath = dataPath
			}

			stack, err := buildStack(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer stack.Close()

			pipeline := ingest.NewPipeline(stack.Docs, stack.Lexical, stack.Vector, stack.Embedder,
				ingest.PipelineConfig{
					ChunkSize:       cfg.Search.ChunkSize,
					ChunkOverlap:    cfg.Search.ChunkOverlap,
					Workers:         cfg.Ingest.Workers,
					Dimensions:      cfg.Embeddings.Dimensions,
					VectorIndexPath: cfg.VectorIndexPath(),
				})

			summary, err := pipeline.Run(cmd.Context(), buildSources(cfg))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Ingest run %s complete in %s\n", summary.RunID, summary.Elapsed.Round(time.Millisecond))
			fmt.Fprintf(out, "  documents: %d\n", summary.Documents)
			fmt.Fprintf(out, "  chunks:    %d\n", summary.Chunks)
			if summary.SourcesFailed > 0 {
				fmt.Fprintf(out, "  sources skipped: %d\n", summary.SourcesFailed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dataPath, "data-path", "", "ingest local review files from this directory instead of downloading")
	return cmd
}

// buildSources resolves the configured sources: a local directory takes
// precedence over the remote dataset list.
func buildSources(cfg *config.Config) []ingest.Source {
	if cfg.Ingest.LocalDataPath != "" {
		return []ingest.Source{
			ingest.NewLocalDirSource(cfg.Ingest.LocalDataPath, cfg.Ingest.MaxItemsPerDataset),
		}
	}
	sources := make([]ingest.Source, 0, len(cfg.Ingest.DatasetNames))
	for i, name := range cfg.Ingest.DatasetNames {
		sources = append(sources, ingest.NewRemoteDataset(
			name, cfg.Ingest.DatasetURLs[i],
			cfg.Ingest.MaxItemsPerDataset, cfg.Ingest.RequestTimeout))
	}
	return sources
}
