package mcp

import (
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// HTTPHandlerOptions configures the HTTP transport behavior.
type HTTPHandlerOptions struct {
	// Stateless disables session management. Default: false (stateful).
	Stateless bool
}

// NewHTTPHandler creates an HTTP handler for the MCP server using Streamable HTTP transport.
func NewHTTPHandler(server *Server, opts *HTTPHandlerOptions) http.Handler {
	if opts == nil {
		opts = &HTTPHandlerOptions{}
	}
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server.MCPServer()
	}, &mcp.StreamableHTTPOptions{Stateless: opts.Stateless})
}

// Routes are the HTTP surfaces served next to MCP.
type Routes struct {
	MCP     http.Handler
	Health  http.Handler
	Metrics http.Handler
}

// NewMux mounts the landing page at /, MCP at /mcp, health at /health and metrics at /metrics.
// Nil routes are skipped.
func NewMux(routes Routes) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/", NewLandingHandler())
	if routes.MCP != nil {
		mux.Handle("/mcp", routes.MCP)
	}
	if routes.Health != nil {
		mux.Handle("/health", routes.Health)
	}
	if routes.Metrics != nil {
		mux.Handle("/metrics", routes.Metrics)
	}
	return mux
}
