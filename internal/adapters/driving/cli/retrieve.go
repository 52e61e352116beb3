package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/evidence-bench/internal/core/domain"
	"github.com/custodia-labs/evidence-bench/internal/logger"
)

var (
	retrieveChunkDir  string
	retrieveIndexDir  string
	generousPaper     string
	generousTopK      int
	generousThreshold float64
	generousCap       int
	topLimit          int
	topWithText       bool
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve",
	Short: "Retrieve evidence candidates for a claim",
}

var retrieveGenerousCmd = &cobra.Command{
	Use:   "generous [query]",
	Short: "Search one paper's chunks with neighbour expansion",
	Long: `Scores every chunk of one paper against the query, keeps the top hits
and their immediate neighbours, adds every chunk at or above the threshold
and returns at most cap candidates ranked by score.`,
	Args: cobra.ExactArgs(1),
	RunE: runRetrieveGenerous,
}

var retrieveTopCmd = &cobra.Command{
	Use:   "top [query]",
	Short: "Search the persistent corpus index",
	Long: `Queries the persistent index built by build-index. When the index or the
embedding API is unavailable the result is empty and the reason is printed
as a warning.`,
	Args: cobra.ExactArgs(1),
	RunE: runRetrieveTop,
}

func init() {
	defaults := domain.DefaultConfig()
	retrieveCmd.PersistentFlags().StringVar(&retrieveChunkDir, "chunks-root", "", "chunk directory (default from config)")
	retrieveCmd.PersistentFlags().StringVar(&retrieveIndexDir, "index-dir", "", "index artifact directory (default from config)")

	retrieveGenerousCmd.Flags().StringVar(&generousPaper, "paper", "", "paper id whose chunks are searched")
	retrieveGenerousCmd.Flags().IntVar(&generousTopK, "top-k", defaults.Retrieval.TopK, "hits whose neighbours are included")
	retrieveGenerousCmd.Flags().Float64Var(&generousThreshold, "threshold", defaults.Retrieval.Threshold, "minimum score for threshold hits")
	retrieveGenerousCmd.Flags().IntVar(&generousCap, "cap", defaults.Retrieval.Cap, "maximum number of candidates")
	_ = retrieveGenerousCmd.MarkFlagRequired("paper")

	retrieveTopCmd.Flags().IntVarP(&topLimit, "limit", "n", 10, "maximum number of candidates")
	retrieveTopCmd.Flags().BoolVar(&topWithText, "with-text", false, "include chunk text")

	retrieveCmd.AddCommand(retrieveGenerousCmd)
	retrieveCmd.AddCommand(retrieveTopCmd)
	rootCmd.AddCommand(retrieveCmd)
}

// applyRetrieveFlags copies the shared retrieve flags into cfg.
func applyRetrieveFlags() {
	if retrieveChunkDir != "" {
		cfg.Paths.ChunkDir = retrieveChunkDir
	}
	if retrieveIndexDir != "" {
		cfg.Paths.IndexDir = retrieveIndexDir
	}
}

// candidateRow is one line of retrieval output.
type candidateRow struct {
	Rank    int     `json:"rank" yaml:"rank"`
	ChunkID string  `json:"chunk_id" yaml:"chunk_id"`
	Score   float64 `json:"score" yaml:"score"`
	Text    string  `json:"text,omitempty" yaml:"text,omitempty"`
}

func runRetrieveGenerous(cmd *cobra.Command, args []string) error {
	applyRetrieveFlags()
	flags := cmd.Flags()
	if flags.Changed("top-k") {
		cfg.Retrieval.TopK = generousTopK
	}
	if flags.Changed("threshold") {
		cfg.Retrieval.Threshold = generousThreshold
	}
	if flags.Changed("cap") {
		cfg.Retrieval.Cap = generousCap
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	candidates, err := generousCandidates(cmd.Context(), args[0], generousPaper)
	if err != nil {
		return err
	}
	return renderCandidates(cmd, toRows(candidates, nil))
}

// generousCandidates loads a paper's chunks and runs generous retrieval.
func generousCandidates(ctx context.Context, query, paperID string) ([]domain.EvidenceCandidate, error) {
	ingest, closeIngest, err := openIngestService()
	if err != nil {
		return nil, err
	}
	defer closeIngest()

	chunks, err := ingest.Chunks(ctx, paperID)
	if err != nil {
		return nil, fmt.Errorf("reading chunks for %s: %w", paperID, err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no chunks for paper %s, run ingest first", domain.ErrNotFound, paperID)
	}

	retrieval, closeRetrieval, err := openRetrievalService(ctx)
	if err != nil {
		return nil, err
	}
	defer closeRetrieval()

	return retrieval.RetrieveGenerous(ctx, query, chunks)
}

func runRetrieveTop(cmd *cobra.Command, args []string) error {
	applyRetrieveFlags()
	ctx := cmd.Context()

	retrieval, cleanup, err := openRetrievalService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	candidates := retrieval.RetrieveTop(ctx, args[0], topLimit)
	warnLastError(cmd, candidates, retrieval.LastError())

	var texts map[string]domain.Chunk
	if topWithText && len(candidates) > 0 {
		texts = retrieval.LoadChunksForCandidates(ctx, candidates)
	}
	return renderCandidates(cmd, toRows(candidates, texts))
}

// warnLastError prints the soft-failure reason of an empty persistent
// retrieval.
func warnLastError(cmd *cobra.Command, candidates []domain.EvidenceCandidate, lastErr string) {
	if len(candidates) > 0 || lastErr == "" {
		return
	}
	logger.Debug("persistent retrieval soft failure: %s", lastErr)
	fmt.Fprintln(cmd.ErrOrStderr(), warningStyle.Render("Warning: ")+lastErr)
}

func toRows(candidates []domain.EvidenceCandidate, texts map[string]domain.Chunk) []candidateRow {
	rows := make([]candidateRow, len(candidates))
	for i, c := range candidates {
		rows[i] = candidateRow{Rank: c.Rank, ChunkID: c.ChunkID, Score: c.Score}
		if chunk, ok := texts[c.ChunkID]; ok {
			rows[i].Text = chunk.Text
		}
	}
	return rows
}

func renderCandidates(cmd *cobra.Command, rows []candidateRow) error {
	return render(cmd, rows, func(w io.Writer) {
		if len(rows) == 0 {
			fmt.Fprintln(w, "No candidates found.")
			return
		}
		fmt.Fprintln(w, titleStyle.Render("Candidates:"))
		for _, r := range rows {
			fmt.Fprintf(w, "  [%d] %s (%.4f)\n", r.Rank, r.ChunkID, r.Score)
			if r.Text != "" {
				fmt.Fprintf(w, "      %s\n", mutedStyle.Render(r.Text))
			}
		}
	})
}
