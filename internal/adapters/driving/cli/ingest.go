package cli

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/evidence-bench/internal/core/domain"
	"github.com/custodia-labs/evidence-bench/internal/core/services"
)

var (
	ingestForce     bool
	ingestCorpusDir string
	ingestChunkDir  string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [source-file...]",
	Short: "Chunk corpus documents",
	Long: `Splits cleaned paper texts into overlapping token windows and writes one
file per chunk under <chunks-root>/<paper_id>/.

Without arguments every *.txt file in the corpus directory is ingested.
Documents that already have chunks are skipped unless --force is given.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestForce, "force", false, "re-chunk documents that already have chunks")
	ingestCmd.Flags().StringVar(&ingestCorpusDir, "corpus-dir", "", "directory of cleaned .txt documents (default from config)")
	ingestCmd.Flags().StringVar(&ingestChunkDir, "chunks-root", "", "chunk output directory (default from config)")
	rootCmd.AddCommand(ingestCmd)
}

// ingestResult is one line of ingest output.
type ingestResult struct {
	PaperID    string `json:"paper_id" yaml:"paper_id"`
	ChunkCount int    `json:"chunk_count" yaml:"chunk_count"`
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestCorpusDir != "" {
		cfg.Paths.CorpusDir = ingestCorpusDir
	}
	if ingestChunkDir != "" {
		cfg.Paths.ChunkDir = ingestChunkDir
	}

	svc, cleanup, err := openIngestService()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	var (
		summary = domain.IngestSummary{}
		runErr  error
	)
	if len(args) == 0 {
		summary, runErr = svc.IngestAll(ctx, ingestForce)
	} else {
		var errs []error
		for _, path := range args {
			chunks, err := svc.IngestDocument(ctx, path, ingestForce)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			summary[services.PaperIDFromPath(path)] = len(chunks)
		}
		runErr = errors.Join(errs...)
	}

	results := make([]ingestResult, 0, len(summary))
	for id, n := range summary {
		results = append(results, ingestResult{PaperID: id, ChunkCount: n})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].PaperID < results[j].PaperID })

	if err := render(cmd, results, func(w io.Writer) {
		fmt.Fprintln(w, titleStyle.Render("Ingested documents:"))
		if len(results) == 0 {
			fmt.Fprintln(w, mutedStyle.Render("  (none)"))
		}
		for _, r := range results {
			fmt.Fprintf(w, "  %-40s %d chunks\n", r.PaperID, r.ChunkCount)
		}
	}); err != nil {
		return err
	}

	if runErr != nil {
		return fmt.Errorf("ingest finished with errors: %w", runErr)
	}
	return nil
}
