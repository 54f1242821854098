package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server wraps the MCP server with dependencies.
type Server struct {
	server *mcp.Server
}

// Config holds server dependencies.
type Config struct {
	Collection string
	Ingester   Ingester
	Searcher   Searcher
	Asker      Asker
	Catalog    Catalog
	Version    string
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	version := cfg.Version
	if version == "" {
		version = "v0.1.0"
	}
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "motor-documents-server",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ingest_document",
		Description: "Extract, chunk, embed and index an uploaded vehicle PDF. Failed documents are removed from storage and the response carries a remediation hint.",
	}, makeIngestHandler(cfg.Ingester, cfg.Collection))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_documents",
		Description: "Search indexed vehicle documents semantically. Returns reranked excerpts with their content type and figures.",
	}, makeSearchHandler(cfg.Searcher))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask_question",
		Description: "Answer a question about the indexed vehicle documents, citing the excerpts used. Statistical questions get aggregated figures.",
	}, makeAskHandler(cfg.Asker))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_documents",
		Description: "List indexed documents, optionally for one user.",
	}, makeListHandler(cfg.Catalog, cfg.Collection))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_index_status",
		Description: "Get the number of indexed documents and chunks.",
	}, makeStatusHandler(cfg.Catalog, cfg.Collection))

	return &Server{server: server}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
