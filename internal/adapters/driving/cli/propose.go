package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/evidence-bench/internal/core/domain"
)

var (
	proposePaper string
	proposeMax   int
	proposeLimit int
	proposeChunk string
	proposeIndex string
)

var proposeCmd = &cobra.Command{
	Use:   "propose [query]",
	Short: "Propose gold evidence chunks for a claim",
	Long: `Retrieves candidates and proposes the highest scoring chunk ids as gold
evidence. With --paper the paper's chunks are searched with generous
retrieval, otherwise the persistent corpus index is queried.`,
	Args: cobra.ExactArgs(1),
	RunE: runPropose,
}

func init() {
	defaults := domain.DefaultConfig()
	proposeCmd.Flags().StringVar(&proposePaper, "paper", "", "search this paper with generous retrieval")
	proposeCmd.Flags().IntVar(&proposeMax, "max", defaults.Proposer.MaxCandidates, "maximum number of chunk ids to propose")
	proposeCmd.Flags().IntVarP(&proposeLimit, "limit", "n", 10, "persistent retrieval depth")
	proposeCmd.Flags().StringVar(&proposeChunk, "chunks-root", "", "chunk directory (default from config)")
	proposeCmd.Flags().StringVar(&proposeIndex, "index-dir", "", "index artifact directory (default from config)")
	rootCmd.AddCommand(proposeCmd)
}

func runPropose(cmd *cobra.Command, args []string) error {
	if proposeChunk != "" {
		cfg.Paths.ChunkDir = proposeChunk
	}
	if proposeIndex != "" {
		cfg.Paths.IndexDir = proposeIndex
	}
	if cmd.Flags().Changed("max") {
		cfg.Proposer.MaxCandidates = proposeMax
	}
	ctx := cmd.Context()
	query := args[0]

	var candidates []domain.EvidenceCandidate
	if proposePaper != "" {
		var err error
		candidates, err = generousCandidates(ctx, query, proposePaper)
		if err != nil {
			return err
		}
	} else {
		retrieval, cleanup, err := openRetrievalService(ctx)
		if err != nil {
			return err
		}
		defer cleanup()
		candidates = retrieval.RetrieveTop(ctx, query, max(proposeLimit, cfg.Proposer.MaxCandidates))
		warnLastError(cmd, candidates, retrieval.LastError())
	}

	ids := proposer.Propose(candidates, cfg.Proposer.MaxCandidates)
	return render(cmd, ids, func(w io.Writer) {
		if len(ids) == 0 {
			fmt.Fprintln(w, "No evidence proposed.")
			return
		}
		fmt.Fprintln(w, titleStyle.Render("Proposed evidence:"))
		for _, id := range ids {
			fmt.Fprintf(w, "  %s\n", id)
		}
	})
}
