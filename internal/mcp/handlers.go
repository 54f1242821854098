package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/answer"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/apperr"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/indexer"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/retrieval"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/storage"
)

const (
	defaultMaxResults = 10
	maxExcerptLength  = 600
)

// Ingester processes uploaded documents. indexer.Pipeline satisfies it.
type Ingester interface {
	Process(ctx context.Context, req indexer.Request) (*indexer.ProcessResult, error)
}

// Searcher runs a text query. app.App satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string, opts retrieval.Options) ([]retrieval.Result, error)
}

// Asker answers questions. answer.Service satisfies it.
type Asker interface {
	Ask(ctx context.Context, q answer.Question) (*answer.Answer, error)
}

// Catalog lists what is indexed. storage.QdrantStorage satisfies it.
type Catalog interface {
	ListSources(ctx context.Context, collection, userID string) ([]storage.SourceSummary, error)
	GetCollectionInfo(ctx context.Context, collection string) (*storage.CollectionInfo, error)
}

// makeIngestHandler creates the ingest_document tool handler.
// Processing failures are reported in the output with a remediation hint rather than as
// tool errors, since the caller usually needs to act on them.
func makeIngestHandler(ingester Ingester, collection string) func(
	context.Context, *mcp.CallToolRequest, IngestInput,
) (*mcp.CallToolResult, IngestOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input IngestInput) (
		*mcp.CallToolResult, IngestOutput, error,
	) {
		if input.Key == "" {
			return nil, IngestOutput{}, errors.New("key is required")
		}

		res, err := ingester.Process(ctx, indexer.Request{
			Key:        input.Key,
			UserID:     input.UserID,
			Filename:   input.Filename,
			Collection: collection,
		})
		if res == nil {
			if err == nil {
				err = errors.New("no result")
			}
			return nil, IngestOutput{}, fmt.Errorf("ingest failed: %w", err)
		}

		out := IngestOutput{
			DocumentID: res.DocumentID,
			Status:     res.Status,
			Stage:      string(res.Stage),
			Method:     string(res.Method),
			Quality:    res.Quality,
			Pages:      res.Pages,
			Chunks:     res.Chunks,
			DurationMs: res.Duration.Milliseconds(),
		}
		if res.Index != nil {
			out.Indexed = res.Index.SuccessCount
			out.SuccessRate = res.Index.SuccessRate
		}
		if err != nil {
			out.Error = err.Error()
			out.Hint = apperr.HintOf(err)
		}
		return nil, out, nil
	}
}

// makeSearchHandler creates the search_documents tool handler.
func makeSearchHandler(searcher Searcher) func(
	context.Context, *mcp.CallToolRequest, SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchInput) (
		*mcp.CallToolResult, SearchOutput, error,
	) {
		if input.Query == "" {
			return nil, SearchOutput{}, errors.New("query is required")
		}
		maxResults := input.MaxResults
		if maxResults <= 0 {
			maxResults = defaultMaxResults
		}

		queryType := retrieval.ClassifyQuery(input.Query)
		opts := retrieval.Options{
			QueryType:      queryType,
			ScoreThreshold: float32(input.MinScore),
		}
		// Aggregations need their wide profile; only narrow the others.
		if queryType != retrieval.QueryAggregation {
			opts.Limit = maxResults
		}
		if input.UserID != "" {
			opts.Filter = map[string]string{"user_id": input.UserID}
		}

		hits, err := searcher.Search(ctx, input.Query, opts)
		if err != nil {
			return nil, SearchOutput{}, fmt.Errorf("search failed: %w", err)
		}
		if len(hits) > maxResults {
			hits = hits[:maxResults]
		}

		results := make([]SearchResult, 0, len(hits))
		for _, h := range hits {
			results = append(results, SearchResult{
				Filename:    h.Filename(),
				ContentType: h.ContentType(),
				Score:       h.Score,
				VectorScore: h.VectorScore,
				Rank:        h.Rank,
				Excerpt:     excerpt(h.Content(), maxExcerptLength),
				Metrics:     h.MetricStrings(),
			})
		}

		out := SearchOutput{QueryType: string(queryType), Results: results}
		if len(results) == 0 {
			out.Message = "No matching excerpts found. Try broader search terms."
		}
		return nil, out, nil
	}
}

// makeAskHandler creates the ask_question tool handler.
func makeAskHandler(asker Asker) func(
	context.Context, *mcp.CallToolRequest, AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AskInput) (
		*mcp.CallToolResult, AskOutput, error,
	) {
		ans, err := asker.Ask(ctx, answer.Question{UserID: input.UserID, Text: input.Question})
		if err != nil {
			return nil, AskOutput{}, fmt.Errorf("ask failed: %w", err)
		}

		sources := make([]string, 0, len(ans.Sources))
		seen := make(map[string]bool)
		for _, s := range ans.Sources {
			if s.Filename != "" && !seen[s.Filename] {
				seen[s.Filename] = true
				sources = append(sources, s.Filename)
			}
		}
		return nil, AskOutput{
			Answer:      ans.Text,
			QueryType:   string(ans.QueryType),
			Sources:     sources,
			ResultCount: ans.ResultCount,
			TotalTokens: ans.Usage.TotalTokens,
			Cached:      ans.Cached,
		}, nil
	}
}

// makeListHandler creates the list_documents tool handler.
func makeListHandler(catalog Catalog, collection string) func(
	context.Context, *mcp.CallToolRequest, ListDocumentsInput,
) (*mcp.CallToolResult, ListDocumentsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListDocumentsInput) (
		*mcp.CallToolResult, ListDocumentsOutput, error,
	) {
		sources, err := catalog.ListSources(ctx, collection, input.UserID)
		if err != nil {
			return nil, ListDocumentsOutput{}, fmt.Errorf("failed to list documents: %w", err)
		}

		docs := make([]DocumentSummary, 0, len(sources))
		for _, s := range sources {
			docs = append(docs, DocumentSummary{
				DocumentID: s.DocumentID,
				Key:        s.SourceKey,
				Filename:   s.Filename,
				UserID:     s.UserID,
				Chunks:     s.Chunks,
			})
		}
		return nil, ListDocumentsOutput{Documents: docs, Count: len(docs)}, nil
	}
}

// makeStatusHandler creates the get_index_status tool handler.
func makeStatusHandler(catalog Catalog, collection string) func(
	context.Context, *mcp.CallToolRequest, StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (
		*mcp.CallToolResult, StatusOutput, error,
	) {
		sources, err := catalog.ListSources(ctx, collection, "")
		if err != nil {
			return nil, StatusOutput{}, fmt.Errorf("qdrant_error: failed to list documents: %w", err)
		}
		info, err := catalog.GetCollectionInfo(ctx, collection)
		if err != nil {
			return nil, StatusOutput{}, fmt.Errorf("qdrant_error: failed to get collection info: %w", err)
		}
		return nil, StatusOutput{
			Collection:  collection,
			TotalDocs:   len(sources),
			TotalChunks: int(info.PointsCount),
		}, nil
	}
}

// excerpt truncates s to at most n runes.
func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
