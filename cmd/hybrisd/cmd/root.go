// Package cmd provides the CLI commands for hybrisd.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/rezkaaufar/hybrid-search-service/pkg/version"
)

// rootOptions are flags shared by all subcommands.
type rootOptions struct {
	configDir string
	debug     bool
}

// NewRootCmd creates the root command for the hybrisd CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "hybrisd",
		Short: "Hybrid lexical + semantic passage retrieval service",
		Long: `hybrisd serves hybrid search (full-text + vector similarity with
rank fusion) and cross-encoder reranking over ingested review datasets.

Run 'hybrisd init' to create a data directory and default config,
'hybrisd ingest' to load datasets, and 'hybrisd serve' to start the API.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("hybrisd version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&opts.configDir, "config-dir", ".",
		"Directory containing hybris.yaml")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false,
		"Enable debug logging")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newIngestCmd(opts))
	cmd.AddCommand(newInitCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
