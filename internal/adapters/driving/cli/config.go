package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	configfile "github.com/custodia-labs/evidence-bench/internal/adapters/driven/config/file"
	"github.com/custodia-labs/evidence-bench/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/evidence-bench/internal/core/domain"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show and change configuration",
	Long: `Reads and writes config.toml in the config directory. Values set through
EVBENCH_<SECTION>_<NAME> environment variables take precedence over the file.`,
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every configuration key with its effective value",
	Args:  cobra.NoArgs,
	RunE:  runConfigList,
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Print the effective value of one key",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Store a value in config.toml",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset [key]",
	Short: "Remove a value from config.toml so the default applies",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigUnset,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), configStore.Path())
	},
}

func init() {
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// configEntry is one line of config output.
type configEntry struct {
	Key    string `json:"key" yaml:"key"`
	Value  any    `json:"value" yaml:"value"`
	Source string `json:"source" yaml:"source"`
}

// effectiveValues flattens cfg back into its dot keys.
func effectiveValues() map[string]any {
	return map[string]any{
		configfile.KeyChunkSize:         cfg.Chunking.Size,
		configfile.KeyChunkOverlap:      cfg.Chunking.Overlap,
		configfile.KeyTopK:              cfg.Retrieval.TopK,
		configfile.KeyThreshold:         cfg.Retrieval.Threshold,
		configfile.KeyCap:               cfg.Retrieval.Cap,
		configfile.KeyEmbedder:          string(cfg.Retrieval.Embedder),
		configfile.KeyMaxCandidates:     cfg.Proposer.MaxCandidates,
		configfile.KeyEmbeddingModel:    cfg.Embedding.Model,
		configfile.KeyEmbeddingBaseURL:  cfg.Embedding.BaseURL,
		configfile.KeyBatchSize:         cfg.Embedding.BatchSize,
		configfile.KeyTimeoutSeconds:    int(cfg.Embedding.Timeout.Seconds()),
		configfile.KeyMaxAttempts:       cfg.Embedding.MaxAttempts,
		configfile.KeyRequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		configfile.KeyCorpusDir:         cfg.Paths.CorpusDir,
		configfile.KeyChunkDir:          cfg.Paths.ChunkDir,
		configfile.KeyIndexDir:          cfg.Paths.IndexDir,
		configfile.KeySkipPolicy:        string(cfg.Ingest.SkipPolicy),
		configfile.KeyManifestBackend:   string(cfg.Ingest.ManifestBackend),
	}
}

func valueSource(key string) string {
	if fs, ok := configStore.(*configfile.ConfigStore); ok && fs.Overridden(key) {
		return "env"
	}
	if _, ok := configStore.Get(key); ok {
		return "file"
	}
	return "default"
}

func runConfigList(cmd *cobra.Command, _ []string) error {
	values := effectiveValues()
	entries := make([]configEntry, 0, len(values))
	for _, key := range configfile.KnownKeys() {
		entries = append(entries, configEntry{Key: key, Value: values[key], Source: valueSource(key)})
	}

	return render(cmd, entries, func(w io.Writer) {
		fmt.Fprintln(w, titleStyle.Render("Configuration:"))
		for _, e := range entries {
			fmt.Fprintf(w, "  %-32s %-28v %s\n", e.Key, e.Value, mutedStyle.Render(e.Source))
		}
	})
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	key := args[0]
	if err := checkKey(key); err != nil {
		return err
	}
	entry := configEntry{Key: key, Value: effectiveValues()[key], Source: valueSource(key)}
	return render(cmd, entry, func(w io.Writer) {
		fmt.Fprintln(w, entry.Value)
	})
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, raw := args[0], args[1]
	value, err := configfile.ParseValue(key, raw)
	if err != nil {
		return err
	}

	candidate := memory.Snapshot(configStore)
	if err := candidate.Set(key, value); err != nil {
		return err
	}
	if _, err := configfile.LoadConfig(candidate); err != nil {
		return err
	}

	if err := configStore.Set(key, value); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s = %v\n", successStyle.Render("Set"), key, value)
	if valueSource(key) == "env" {
		fmt.Fprintln(cmd.ErrOrStderr(), warningStyle.Render("Warning: ")+
			"an environment variable overrides this key")
	}
	return nil
}

func runConfigUnset(cmd *cobra.Command, args []string) error {
	key := args[0]
	if err := checkKey(key); err != nil {
		return err
	}
	if err := configStore.Unset(key); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", successStyle.Render("Unset"), key)
	return nil
}

func checkKey(key string) error {
	for _, k := range configfile.KnownKeys() {
		if k == key {
			return nil
		}
	}
	return fmt.Errorf("%w: unknown config key %q", domain.ErrInvalidInput, key)
}
