package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

var manifestChunkDir string

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "List the build manifest",
	Long:  `Lists one entry per chunked document: source path, content hash, chunk count and last update.`,
	Args:  cobra.NoArgs,
	RunE:  runManifest,
}

func init() {
	manifestCmd.Flags().StringVar(&manifestChunkDir, "chunks-root", "", "chunk directory holding the manifest (default from config)")
	rootCmd.AddCommand(manifestCmd)
}

func runManifest(cmd *cobra.Command, _ []string) error {
	if manifestChunkDir != "" {
		cfg.Paths.ChunkDir = manifestChunkDir
	}

	svc, cleanup, err := openIngestService()
	if err != nil {
		return err
	}
	defer cleanup()

	entries, err := svc.Manifest(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing manifest: %w", err)
	}

	return render(cmd, entries, func(w io.Writer) {
		if len(entries) == 0 {
			fmt.Fprintln(w, "No documents have been ingested.")
			return
		}
		fmt.Fprintln(w, titleStyle.Render("Build manifest:"))
		for _, e := range entries {
			sum := e.SHA256
			if len(sum) > 12 {
				sum = sum[:12]
			}
			fmt.Fprintf(w, "  %-40s %4d chunks  %s  %s\n", e.PaperID, e.ChunkCount, sum,
				mutedStyle.Render(e.UpdatedAt.Local().Format(time.DateTime)))
		}
	})
}
