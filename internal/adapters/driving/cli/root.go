// Package cli implements the evbench command line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	configfile "github.com/custodia-labs/evidence-bench/internal/adapters/driven/config/file"
	"github.com/custodia-labs/evidence-bench/internal/core/domain"
	"github.com/custodia-labs/evidence-bench/internal/core/ports/driven"
	"github.com/custodia-labs/evidence-bench/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

// Root flags.
var (
	verbose      bool
	logFormat    string
	configDir    string
	outputFormat string
)

// cfg is loaded from the config directory before every command runs.
var cfg = domain.DefaultConfig()

// configStore is the store cfg was loaded from.
var configStore driven.ConfigStore

var rootCmd = &cobra.Command{
	Use:   "evbench",
	Short: "Evidence retrieval for scientific claim verification",
	Long: `evbench chunks a corpus of cleaned paper texts, builds a persistent
dense index over the chunks and retrieves supporting evidence for claims.

Generous retrieval searches the chunks of one paper and widens the top hits
with their neighbours. Persistent retrieval queries the whole corpus index
and degrades to empty results when the index or embedding API is missing.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadRuntime,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", string(logger.FormatText), "log format (text, json)")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default ~/.evbench)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", outputTable, "output format (table, json, yaml)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx, which commands use for
// cancellation.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// loadRuntime configures logging, reads .env and loads the configuration.
func loadRuntime(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)
	logger.SetOutput(cmd.ErrOrStderr())
	if err := logger.SetFormat(logger.Format(logFormat)); err != nil {
		return err
	}
	if err := validateOutputFormat(outputFormat); err != nil {
		return err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("Ignoring unreadable .env file: %v", err)
	}

	store, err := configfile.NewConfigStore(configDir)
	if err != nil {
		return fmt.Errorf("opening config: %w", err)
	}
	loaded, err := configfile.LoadConfig(store)
	if err != nil {
		return err
	}
	cfg = loaded
	configStore = store
	logger.Debug("Loaded config from %s", store.Path())
	return nil
}
