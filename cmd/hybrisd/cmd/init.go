package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rezkaaufar/hybrid-search-service/internal/config"
)

// newInitCmd creates the init command.
func newInitCmd(opts *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default hybris.yaml configuration",
		Long: `Create the data directory and write a hybris.yaml with default
settings into the config directory. An existing file is backed up
first unless it would be left untouched.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := filepath.Join(opts.configDir, config.ConfigFileName)

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			backup, err := config.BackupConfigFile(path)
			if err != nil {
				return fmt.Errorf("backing up existing config: %w", err)
			}

			cfg := config.NewConfig()
			if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
				return fmt.Errorf("creating data directory: %w", err)
			}
			if err := cfg.WriteYAML(path); err != nil {
				return fmt.Errorf("writing config: %w", err)
			}

			out := cmd.OutOrStdout()
			if backup != "" {
				fmt.Fprintf(out, "Backed up existing config to %s\n", backup)
			}
			fmt.Fprintf(out, "Wrote %s\n", path)
			fmt.Fprintf(out, "Data directory: %s\n", cfg.Paths.DataDir)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}
