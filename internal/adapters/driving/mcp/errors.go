// Package mcp provides an MCP (Model Context Protocol) server adapter for
// evidence-bench. It lets AI assistants run evidence retrieval and
// proposal against the local chunk store and persistent index.
package mcp

import "errors"

// ErrMissingRetrievalService is returned when the retrieval service is not provided.
var ErrMissingRetrievalService = errors.New("mcp: retrieval service is required")

// ErrMissingIngestService is returned by tools that need stored chunks when
// no ingest service was provided.
var ErrMissingIngestService = errors.New("mcp: ingest service is not configured")
