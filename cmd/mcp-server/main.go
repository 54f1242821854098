// Package main provides the MCP server entry point for vehicle document ingestion and retrieval.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/app"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/config"
	mcpserver "github.com/hassan8537/motor-chatbot-backend-sub000/internal/mcp"
)

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	// stdout carries the MCP stdio protocol, so logs always go to stderr.
	logger := config.NewLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to initialise: %v", err)
	}
	defer a.Close()
	a.StartBackground(ctx)

	server := mcpserver.NewServer(&mcpserver.Config{
		Collection: cfg.Qdrant.Collection,
		Ingester:   a.Pipeline,
		Searcher:   a,
		Asker:      a.Answers,
		Catalog:    a.Vectors,
	})

	checks := map[string]mcpserver.HealthChecker{"qdrant": a.Vectors}
	if a.Records != nil {
		checks["records"] = a.Records
	}
	mux := mcpserver.NewMux(mcpserver.Routes{
		MCP:     mcpserver.NewHTTPHandler(server, nil),
		Health:  mcpserver.NewHealthHandler(checks),
		Metrics: promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}),
	})
	httpServer := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Server.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	if cfg.Server.Mode == "http" {
		// HTTP mode: serve MCP over HTTP for remote clients
		logger.Info("Starting HTTP server", "addr", httpServer.Addr, "mcp", "/mcp", "health", "/health", "metrics", "/metrics")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server error: %v", err)
		}
		return
	}

	// Stdio mode: MCP over stdin/stdout, with health and metrics served in the background
	go func() {
		logger.Info("Starting health server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Health server error", "error", err)
		}
	}()

	logger.Info("Starting motor documents MCP server (stdio mode)")
	if err := server.Run(ctx); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
}
