// Package mcp exposes document ingestion, search and question answering as MCP tools.
package mcp

// IngestInput defines the input parameters for the ingest_document tool.
type IngestInput struct {
	// Key is the blob storage key of the uploaded PDF.
	Key string `json:"key" jsonschema:"Blob storage key of the uploaded PDF (e.g. uploads/alice/corolla.pdf)"`
	// UserID owns the document.
	UserID string `json:"user_id" jsonschema:"Identifier of the user who uploaded the document"`
	// Filename is the display name; defaults to the key's base name.
	Filename string `json:"filename,omitempty" jsonschema:"Display name of the document"`
}

// IngestOutput describes the processing outcome.
type IngestOutput struct {
	DocumentID  string  `json:"document_id"`
	Status      string  `json:"status"`
	Stage       string  `json:"stage"`
	Method      string  `json:"method,omitempty"`
	Quality     float64 `json:"quality,omitempty"`
	Pages       int     `json:"pages,omitempty"`
	Chunks      int     `json:"chunks"`
	Indexed     int     `json:"indexed"`
	SuccessRate float64 `json:"success_rate"`
	DurationMs  int64   `json:"duration_ms"`
	// Error and Hint are set when processing failed.
	Error string `json:"error,omitempty"`
	Hint  string `json:"hint,omitempty"`
}

// SearchInput defines the input parameters for the search_documents tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"Natural-language search query"`
	// UserID restricts results to one user's documents when set.
	UserID     string  `json:"user_id,omitempty" jsonschema:"Only search documents uploaded by this user"`
	MaxResults int     `json:"max_results,omitempty" jsonschema:"Maximum number of excerpts to return"`
	MinScore   float64 `json:"min_score,omitempty" jsonschema:"Minimum relevance score between 0 and 1"`
}

// SearchOutput contains the search results.
type SearchOutput struct {
	QueryType string         `json:"query_type"`
	Results   []SearchResult `json:"results"`
	// Message provides informational context (e.g., "No matching excerpts found").
	Message string `json:"message,omitempty"`
}

// SearchResult is one reranked excerpt.
type SearchResult struct {
	Filename    string   `json:"filename"`
	ContentType string   `json:"content_type"`
	Score       float32  `json:"score"`
	VectorScore float32  `json:"vector_score"`
	Rank        int      `json:"rank"`
	Excerpt     string   `json:"excerpt"`
	Metrics     []string `json:"metrics,omitempty"`
}

// AskInput defines the input parameters for the ask_question tool.
type AskInput struct {
	Question string `json:"question" jsonschema:"Question about the uploaded vehicle documents"`
	UserID   string `json:"user_id,omitempty" jsonschema:"Identifier of the asking user"`
}

// AskOutput contains the grounded answer.
type AskOutput struct {
	Answer      string   `json:"answer"`
	QueryType   string   `json:"query_type"`
	Sources     []string `json:"sources"`
	ResultCount int      `json:"result_count"`
	TotalTokens int      `json:"total_tokens"`
	Cached      bool     `json:"cached"`
}

// ListDocumentsInput defines the input parameters for the list_documents tool.
type ListDocumentsInput struct {
	UserID string `json:"user_id,omitempty" jsonschema:"Only list documents uploaded by this user"`
}

// ListDocumentsOutput lists indexed documents.
type ListDocumentsOutput struct {
	Documents []DocumentSummary `json:"documents"`
	Count     int               `json:"count"`
}

// DocumentSummary is one indexed document.
type DocumentSummary struct {
	DocumentID string `json:"document_id"`
	Key        string `json:"key"`
	Filename   string `json:"filename"`
	UserID     string `json:"user_id"`
	Chunks     int    `json:"chunks"`
}

// StatusInput takes no parameters.
type StatusInput struct{}

// StatusOutput reports index size.
type StatusOutput struct {
	Collection  string `json:"collection"`
	TotalDocs   int    `json:"total_docs"`
	TotalChunks int    `json:"total_chunks"`
}
