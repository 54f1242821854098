// Package records keeps the append-only history of processed documents and answered
// questions in SQLite.
package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/records/migrations"
)

// DocumentRecord describes one successfully processed document.
type DocumentRecord struct {
	ID               string
	DocumentID       string
	UserID           string
	SourceKey        string
	Filename         string
	Collection       string
	ExtractionMethod string
	QualityScore     float64
	Pages            int
	TotalChunks      int
	SuccessCount     int
	ErrorCount       int
	SuccessRate      float64
	Duration         time.Duration
	CreatedAt        time.Time
}

// QueryRecord describes one answered question.
type QueryRecord struct {
	ID               string
	UserID           string
	Question         string
	Answer           string
	QueryType        string
	ResultCount      int
	Sources          []string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Cached           bool
	Duration         time.Duration
	CreatedAt        time.Time
}

// SQLiteStore is the metadata store.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Open creates or opens the database at path and applies pending migrations.
// ":memory:" opens a private in-memory database.
func Open(path string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		// WAL so the MCP server and the CLI can share the file.
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == ":memory:" {
		// Each connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Health pings the database.
func (s *SQLiteStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

// SaveDocument appends a processed-document record.
func (s *SQLiteStore) SaveDocument(ctx context.Context, rec DocumentRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, document_id, user_id, source_key, filename, collection,
			extraction_method, quality_score, pages, total_chunks, success_count, error_count,
			success_rate, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.DocumentID, rec.UserID, rec.SourceKey, rec.Filename, rec.Collection,
		rec.ExtractionMethod, rec.QualityScore, rec.Pages, rec.TotalChunks, rec.SuccessCount,
		rec.ErrorCount, rec.SuccessRate, rec.Duration.Milliseconds(), rec.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("saving document record: %w", err)
	}
	return nil
}

// SaveQuery appends a question/answer record.
func (s *SQLiteStore) SaveQuery(ctx context.Context, rec QueryRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	sources := rec.Sources
	if sources == nil {
		sources = []string{}
	}
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("marshalling sources: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO queries (id, user_id, question, answer, query_type, result_count, sources,
			prompt_tokens, completion_tokens, total_tokens, cached, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.UserID, rec.Question, rec.Answer, rec.QueryType, rec.ResultCount,
		string(sourcesJSON), rec.PromptTokens, rec.CompletionTokens, rec.TotalTokens,
		rec.Cached, rec.Duration.Milliseconds(), rec.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("saving query record: %w", err)
	}
	return nil
}

// ListDocuments returns a user's document records, newest first. An empty userID lists all.
func (s *SQLiteStore) ListDocuments(ctx context.Context, userID string, limit int) ([]DocumentRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, user_id, source_key, filename, collection, extraction_method,
			quality_score, pages, total_chunks, success_count, error_count, success_rate,
			duration_ms, created_at
		FROM documents
		WHERE ? = '' OR user_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, userID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var out []DocumentRecord
	for rows.Next() {
		var (
			rec        DocumentRecord
			durationMS int64
		)
		if err := rows.Scan(&rec.ID, &rec.DocumentID, &rec.UserID, &rec.SourceKey, &rec.Filename,
			&rec.Collection, &rec.ExtractionMethod, &rec.QualityScore, &rec.Pages, &rec.TotalChunks,
			&rec.SuccessCount, &rec.ErrorCount, &rec.SuccessRate, &durationMS, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListQueries returns a user's question history, newest first. An empty userID lists all.
func (s *SQLiteStore) ListQueries(ctx context.Context, userID string, limit int) ([]QueryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, question, answer, query_type, result_count, sources, prompt_tokens,
			completion_tokens, total_tokens, cached, duration_ms, created_at
		FROM queries
		WHERE ? = '' OR user_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, userID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying queries: %w", err)
	}
	defer rows.Close()

	var out []QueryRecord
	for rows.Next() {
		var (
			rec         QueryRecord
			sourcesJSON string
			durationMS  int64
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Question, &rec.Answer, &rec.QueryType,
			&rec.ResultCount, &sourcesJSON, &rec.PromptTokens, &rec.CompletionTokens,
			&rec.TotalTokens, &rec.Cached, &durationMS, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning query: %w", err)
		}
		if err := json.Unmarshal([]byte(sourcesJSON), &rec.Sources); err != nil {
			return nil, fmt.Errorf("unmarshalling sources: %w", err)
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, rec)
	}
	return out, rows.Err()
}
