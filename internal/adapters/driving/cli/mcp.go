package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/evidence-bench/internal/adapters/driving/mcp"
	"github.com/custodia-labs/evidence-bench/internal/logger"
	"github.com/custodia-labs/evidence-bench/internal/observability"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  `Commands for the Model Context Protocol (MCP) server integration.`,
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol server so annotation assistants can
retrieve and propose evidence.

By default, the server communicates over stdio using JSON-RPC.

Use --port to start an HTTP server instead.
Use --watch to pick up a rebuilt index without restarting.
Use --metrics-addr to expose Prometheus metrics.

Examples:
  # Stdio mode (default)
  evbench mcp serve

  # HTTP mode with metrics on the same listener
  evbench mcp serve --port 8080 --metrics-addr :8080

  # Stdio mode with a separate metrics listener
  evbench mcp serve --metrics-addr :9090 --watch`,
	RunE: runMCPServe,
}

func init() {
	mcpServeCmd.Flags().IntP("port", "p", 0, "HTTP port (0 = use stdio)")
	mcpServeCmd.Flags().Bool("watch", false, "reload the persistent index when it is rebuilt")
	mcpServeCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	port, err := flags.GetInt("port")
	if err != nil {
		return fmt.Errorf("getting port flag: %w", err)
	}
	watch, err := flags.GetBool("watch")
	if err != nil {
		return fmt.Errorf("getting watch flag: %w", err)
	}
	metricsAddr, err := flags.GetString("metrics-addr")
	if err != nil {
		return fmt.Errorf("getting metrics-addr flag: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if metricsAddr != "" && metrics == nil {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	retrieval, closeRetrieval, err := openRetrievalService(ctx)
	if err != nil {
		return err
	}
	defer closeRetrieval()

	ingest, closeIngest, err := openIngestService()
	if err != nil {
		return err
	}
	defer closeIngest()

	server, err := mcp.NewServer(&mcp.Ports{
		Retrieval: retrieval,
		Proposer:  proposer,
		Ingest:    ingest,
	})
	if err != nil {
		return err
	}

	if watch {
		if err := os.MkdirAll(cfg.Paths.IndexDir, 0o755); err != nil {
			return fmt.Errorf("creating index directory: %w", err)
		}
		go func() {
			if err := newIndexWatcher(cfg.Paths.IndexDir, retrieval).Run(ctx); err != nil {
				logger.Warn("Index watcher stopped: %v", err)
			}
		}()
	}

	if port > 0 {
		addr := fmt.Sprintf(":%d", port)
		extra := map[string]http.Handler{}
		if metricsAddr != "" {
			if metricsAddr == addr {
				extra["/metrics"] = metrics.Handler()
			} else {
				go serveMetrics(ctx, metricsAddr)
			}
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "MCP server listening on http://localhost%s\n", addr)
		return server.RunHTTP(ctx, addr, extra)
	}

	if metricsAddr != "" {
		go serveMetrics(ctx, metricsAddr)
	}
	return server.Run(ctx)
}

// serveMetrics exposes /metrics until ctx is cancelled.
func serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background()) //nolint:errcheck
	}()

	logger.Info("Metrics listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Warn("Metrics server: %v", err)
	}
}
