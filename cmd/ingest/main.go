// Package main provides the operator CLI for ingesting vehicle documents and querying the index.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/answer"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/app"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/apperr"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/config"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/indexer"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/records"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/retrieval"
)

var (
	configPath string
	userID     string
	filename   string
	limit      int
)

var rootCmd = &cobra.Command{
	Use:   "motor-ingest",
	Short: "Vehicle document ingestion and retrieval tool",
	Long:  "CLI tool for indexing uploaded vehicle PDFs into Qdrant and querying them",
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <key>...",
	Short: "Process uploaded PDFs from blob storage",
	Long: `Runs each document through download, extraction, chunking, embedding and indexing.

A document that fails any stage is deleted from blob storage and its vectors are removed.

Environment variables:
  QDRANT_HOST     Qdrant hostname (default: localhost)
  QDRANT_PORT     Qdrant gRPC port (default: 6334)
  OPENAI_API_KEY  OpenAI API key for embeddings (required)
  BLOB_BACKEND    fs or s3 (default: fs)
  BLOB_ROOT       Upload directory for the fs backend`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from the indexed documents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Show reranked excerpts for a query",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List processed documents and recent questions",
	RunE:  runHistory,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "optional config file (yaml, toml or json)")
	rootCmd.PersistentFlags().StringVar(&userID, "user", "", "user id owning or asking")

	ingestCmd.Flags().StringVar(&filename, "filename", "", "display name (single document only)")
	searchCmd.Flags().IntVar(&limit, "limit", 0, "maximum excerpts (default: query profile)")
	historyCmd.Flags().IntVar(&limit, "limit", 20, "maximum rows per table")

	rootCmd.AddCommand(ingestCmd, askCmd, searchCmd, historyCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setup(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := config.NewLogger(cfg.Log, os.Stderr)
	return app.New(ctx, cfg, logger)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()
	start := time.Now()

	if filename != "" && len(args) > 1 {
		return errors.New("--filename applies to a single document")
	}

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	failed := 0
	for _, key := range args {
		fmt.Printf("Processing %s...\n", key)
		res, err := a.Pipeline.Process(ctx, indexer.Request{Key: key, UserID: userID, Filename: filename})
		if err != nil {
			failed++
			fmt.Printf("  FAILED at %s: %v\n", stageOf(res), err)
			if hint := apperr.HintOf(err); hint != "" {
				fmt.Printf("  Hint: %s\n", hint)
			}
			if ctx.Err() != nil {
				break
			}
			continue
		}
		fmt.Printf("  Document: %s\n", res.DocumentID)
		fmt.Printf("  Extraction: %s (quality %.2f, %d pages)\n", res.Method, res.Quality, res.Pages)
		fmt.Printf("  Chunks: %d/%d indexed\n", res.Index.SuccessCount, res.Chunks)
		fmt.Printf("  Duration: %s\n", res.Duration.Round(time.Millisecond))
	}

	fmt.Println()
	fmt.Printf("Processed %d document(s), %d failed in %s\n", len(args), failed, time.Since(start).Round(time.Second))
	if failed > 0 {
		return fmt.Errorf("%d document(s) failed", failed)
	}
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	ans, err := a.Answers.Ask(ctx, answer.Question{UserID: userID, Text: strings.Join(args, " ")})
	if err != nil {
		return err
	}

	fmt.Println(ans.Text)
	fmt.Println()
	fmt.Printf("(%s query, %d excerpts, %d tokens", ans.QueryType, ans.ResultCount, ans.Usage.TotalTokens)
	if ans.Cached {
		fmt.Print(", cached")
	}
	fmt.Println(")")
	for i, s := range ans.Sources {
		fmt.Printf("  [%d] %s (%s, %.2f)\n", i+1, s.Filename, s.ContentType, s.Score)
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := retrieval.Options{Limit: limit}
	if userID != "" {
		opts.Filter = map[string]string{"user_id": userID}
	}
	results, err := a.Search(ctx, strings.Join(args, " "), opts)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("No matching excerpts found.")
		return nil
	}
	for _, r := range results {
		fmt.Printf("#%d (was #%d) %.3f [vector %.3f +%.3f] %s %s\n",
			r.Rank, r.OriginalRank, r.Score, r.VectorScore, r.Boost, r.Filename(), r.ContentType())
		fmt.Printf("    %s\n", oneLine(r.Content(), 160))
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Records.Path == "" {
		return errors.New("records are disabled (records.path is empty)")
	}
	store, err := records.Open(cfg.Records.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	docs, err := store.ListDocuments(ctx, userID, limit)
	if err != nil {
		return err
	}
	fmt.Printf("Documents (%d):\n", len(docs))
	for _, d := range docs {
		fmt.Printf("  %s  %-30s %-8s %3d chunks  %.0f%%  %s\n",
			d.CreatedAt.Format(time.DateTime), filepath.Base(d.Filename), d.ExtractionMethod,
			d.TotalChunks, d.SuccessRate*100, d.UserID)
	}

	queries, err := store.ListQueries(ctx, userID, limit)
	if err != nil {
		return err
	}
	fmt.Println()
	fmt.Printf("Questions (%d):\n", len(queries))
	for _, q := range queries {
		cached := ""
		if q.Cached {
			cached = " (cached)"
		}
		fmt.Printf("  %s  %s%s\n    %s\n", q.CreatedAt.Format(time.DateTime), q.Question, cached, oneLine(q.Answer, 120))
	}
	return nil
}

func stageOf(res *indexer.ProcessResult) indexer.Stage {
	if res == nil {
		return indexer.StageInit
	}
	return res.Stage
}

func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}
