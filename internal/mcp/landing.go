package mcp

import "net/http"

const landingHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Motor Documents MCP Server</title>
<style>
  body { margin: 0; font: 15px/1.6 system-ui, sans-serif; background: #f4f4f0; color: #1c1c1c; }
  main { max-width: 640px; margin: 4rem auto; padding: 0 1.25rem; }
  h1 { font-size: 1.6rem; margin: 0 0 .25rem; }
  h2 { font-size: .8rem; text-transform: uppercase; letter-spacing: .08em; color: #6b6b6b; margin: 2rem 0 .5rem; }
  p.lead { color: #4a4a4a; margin: 0; }
  table { border-collapse: collapse; width: 100%; }
  td { padding: .35rem .5rem; border-bottom: 1px solid #dedede; vertical-align: top; }
  td:first-child { font-family: ui-monospace, monospace; white-space: nowrap; color: #9a3412; }
  a { color: #9a3412; }
</style>
</head>
<body>
<main>
  <h1>Motor Documents MCP Server</h1>
  <p class="lead">Ingestion, semantic search and question answering over vehicle spec sheets, brochures, price lists and service manuals.</p>

  <h2>Tools</h2>
  <table>
    <tr><td>ingest_document</td><td>Extract, chunk, embed and index an uploaded PDF</td></tr>
    <tr><td>search_documents</td><td>Reranked excerpts for a query</td></tr>
    <tr><td>ask_question</td><td>Grounded answer with cited excerpts</td></tr>
    <tr><td>list_documents</td><td>Indexed documents per user</td></tr>
    <tr><td>get_index_status</td><td>Document and chunk counts</td></tr>
  </table>

  <h2>Endpoints</h2>
  <table>
    <tr><td><a href="/mcp">/mcp</a></td><td>MCP Streamable HTTP</td></tr>
    <tr><td><a href="/health">/health</a></td><td>Qdrant and records health</td></tr>
    <tr><td><a href="/metrics">/metrics</a></td><td>Prometheus metrics</td></tr>
  </table>
</main>
</body>
</html>`

// NewLandingHandler returns an HTTP handler that serves the landing page at /.
func NewLandingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(landingHTML))
	}
}
