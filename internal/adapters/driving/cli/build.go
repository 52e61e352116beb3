package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/evidence-bench/internal/adapters/driven/flatindex"
	storagefile "github.com/custodia-labs/evidence-bench/internal/adapters/driven/storage/file"
	"github.com/custodia-labs/evidence-bench/internal/core/domain"
	"github.com/custodia-labs/evidence-bench/internal/core/ports/driven"
	"github.com/custodia-labs/evidence-bench/internal/core/services"
)

var (
	buildChunksRoot string
	buildOutputDir  string
	buildModel      string
	buildBatchSize  int
	buildMetric     string
	buildOverwrite  bool
)

var buildIndexCmd = &cobra.Command{
	Use:   "build-index",
	Short: "Build the persistent evidence index",
	Long: `Embeds every chunk file under the chunks root with the remote embedding
API and writes three artifacts to the output directory:

  chunks.index           exact similarity index
  chunks_metadata.jsonl  one row per vector: vector_id, paper_id, chunk_id, file_path
  index_manifest.json    build id, model, metric, dimension and vector count

All three carry the build id; a set mixing two builds is refused on load.

Requires OPENAI_API_KEY. Existing artifacts are only replaced with --overwrite.`,
	Args: cobra.NoArgs,
	RunE: runBuildIndex,
}

func init() {
	defaults := domain.DefaultConfig()
	buildIndexCmd.Flags().StringVar(&buildChunksRoot, "chunks-root", defaults.Paths.ChunkDir, "directory of chunk files")
	buildIndexCmd.Flags().StringVar(&buildOutputDir, "output-dir", defaults.Paths.IndexDir, "directory for index artifacts")
	buildIndexCmd.Flags().StringVar(&buildModel, "embedding-model", defaults.Embedding.Model, "embedding model name")
	buildIndexCmd.Flags().IntVar(&buildBatchSize, "batch-size", defaults.Embedding.BatchSize, "texts per embedding request")
	buildIndexCmd.Flags().StringVar(&buildMetric, "metric", string(domain.MetricCosine), "similarity metric (cosine, l2)")
	buildIndexCmd.Flags().BoolVar(&buildOverwrite, "overwrite", false, "replace existing artifacts")
	rootCmd.AddCommand(buildIndexCmd)
}

func runBuildIndex(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	if flags.Changed("chunks-root") {
		cfg.Paths.ChunkDir = buildChunksRoot
	}
	if flags.Changed("output-dir") {
		cfg.Paths.IndexDir = buildOutputDir
	}
	if flags.Changed("embedding-model") {
		cfg.Embedding.Model = buildModel
	}
	if flags.Changed("batch-size") {
		cfg.Embedding.BatchSize = buildBatchSize
	}

	metric, err := domain.ParseMetric(buildMetric)
	if err != nil {
		return err
	}
	req := domain.BuildRequest{
		EmbeddingModel: cfg.Embedding.Model,
		BatchSize:      cfg.Embedding.BatchSize,
		Metric:         metric,
		Overwrite:      buildOverwrite,
	}

	chunks, err := storagefile.NewChunkStore(cfg.Paths.ChunkDir)
	if err != nil {
		return err
	}
	artifacts, err := flatindex.NewStore(cfg.Paths.IndexDir)
	if err != nil {
		return err
	}

	builder := services.NewIndexBuilder(chunks, artifacts, func(model string) (driven.EmbeddingService, error) {
		settings := cfg.Embedding
		settings.Model = model
		return newEmbeddingService(settings)
	})
	builder.SetMetrics(metrics)

	summary, err := builder.Build(cmd.Context(), req, progressPrinter(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}

	return render(cmd, summary, func(w io.Writer) {
		fmt.Fprintln(w, successStyle.Render("Index build complete."))
		fmt.Fprintf(w, "  Build ID:   %s\n", summary.BuildID)
		fmt.Fprintf(w, "  Chunks:     %d\n", summary.NumChunks)
		fmt.Fprintf(w, "  Dimension:  %d\n", summary.Dimension)
		fmt.Fprintf(w, "  Index:      %s\n", summary.Index)
		fmt.Fprintf(w, "  Metadata:   %s\n", summary.Metadata)
		fmt.Fprintf(w, "  Manifest:   %s\n", summary.Manifest)
	})
}

// progressPrinter returns a progress callback that redraws one status line
// on w, or nil when stderr is not a terminal.
func progressPrinter(w io.Writer) domain.BuildProgress {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return nil
	}
	return func(fraction float64, msg string) {
		fmt.Fprintf(w, "\r\033[K[%3.0f%%] %s", fraction*100, msg)
		if fraction >= 1 {
			fmt.Fprintln(w)
		}
	}
}
