package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/evidence-bench/internal/core/services"
	"github.com/custodia-labs/evidence-bench/internal/logger"
)

// Version is the MCP server version.
const Version = "0.1.0"

// HealthPath serves the readiness report in HTTP mode.
const HealthPath = "/healthz"

// Server exposes evidence retrieval to MCP clients.
type Server struct {
	ports  *Ports
	server *mcp.Server
}

// NewServer creates a new MCP server with the given ports.
func NewServer(ports *Ports) (*Server, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("validating ports: %w", err)
	}
	if ports.Proposer == nil {
		ports.Proposer = services.NewProposer()
	}

	impl := &mcp.Implementation{
		Name:    "evbench",
		Version: Version,
	}

	s := &Server{
		ports:  ports,
		server: mcp.NewServer(impl, nil),
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Run serves MCP over stdio until the context is cancelled or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	logger.Debug("MCP server running on stdio")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// HealthReport is the body served at HealthPath.
type HealthReport struct {
	Status          string `json:"status"`
	PersistentError string `json:"persistent_error,omitempty"`
}

// Handler returns the HTTP handler: the streamable MCP endpoint at "/",
// the health report and any extra handlers such as /metrics.
func (s *Server) Handler(extra map[string]http.Handler) http.Handler {
	mux := http.NewServeMux()
	for pattern, h := range extra {
		mux.Handle(pattern, h)
	}
	mux.HandleFunc(HealthPath, s.handleHealth)
	mux.Handle("/", mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.server
	}, nil))
	return mux
}

// handleHealth always answers 200; a persistent index problem only
// degrades retrieve_top, so it is reported rather than failed.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	report := HealthReport{Status: "ok"}
	if msg := s.ports.Retrieval.LastError(); msg != "" {
		report.Status = "degraded"
		report.PersistentError = msg
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report) //nolint:errcheck
}

// RunHTTP serves Handler on addr until the context is cancelled.
func (s *Server) RunHTTP(ctx context.Context, addr string, extra map[string]http.Handler) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(extra),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown when context is cancelled
	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.Background()) //nolint:errcheck
	}()

	logger.Debug("MCP server listening on %s", addr)
	err := httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
