package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/llm"
)

// DefaultMaxTokens is the maximum content length before truncation (in tokens).
const DefaultMaxTokens = 16000

// maxEntities bounds the makes/models list copied into every chunk payload.
const maxEntities = 20

// DocumentMetadata contains LLM-generated metadata for a document.
type DocumentMetadata struct {
	Title    string   `json:"title"`
	Summary  string   `json:"summary"`
	Entities []string `json:"entities"`
}

// Generator produces document metadata with a completion model.
type Generator struct {
	completer llm.Completer
	maxTokens int
	logger    *slog.Logger
}

// NewGenerator creates a metadata generator.
// Optional maxTokens parameter sets truncation limit (defaults to DefaultMaxTokens).
func NewGenerator(completer llm.Completer, logger *slog.Logger, maxTokens ...int) *Generator {
	max := DefaultMaxTokens
	if len(maxTokens) > 0 && maxTokens[0] > 0 {
		max = maxTokens[0]
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		completer: completer,
		maxTokens: max,
		logger:    logger,
	}
}

const systemPrompt = `You catalogue motor-vehicle documents such as spec sheets, brochures, price lists and service manuals.`

// GenerateMetadata analyzes document content and produces a summary and the makes and models it covers.
func (g *Generator) GenerateMetadata(ctx context.Context, name, content string) (*DocumentMetadata, error) {
	truncated := g.truncateContent(content)

	prompt := fmt.Sprintf(`Analyze this vehicle document and provide:
1. A short title naming the vehicle(s) and document kind
2. A concise summary (1-2 sentences) capturing the main topic and key figures
3. A list of vehicle makes and models mentioned (e.g. "Toyota", "Corolla Altis 1.8")

Document name: %s

Document content:
%s

Respond in JSON format:
{"title": "...", "summary": "...", "entities": ["Make", "Model"]}`, name, truncated)

	resp, err := g.completer.Complete(ctx, llm.Request{
		System: systemPrompt,
		User:   prompt,
		JSON:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("metadata completion failed: %w", err)
	}

	return parseMetadata(resp.Text)
}

func parseMetadata(text string) (*DocumentMetadata, error) {
	var metadata DocumentMetadata
	if err := json.Unmarshal([]byte(text), &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	seen := make(map[string]bool, len(metadata.Entities))
	entities := make([]string, 0, len(metadata.Entities))
	for _, e := range metadata.Entities {
		e = strings.TrimSpace(e)
		key := strings.ToLower(e)
		if e == "" || seen[key] {
			continue
		}
		seen[key] = true
		entities = append(entities, e)
		if len(entities) == maxEntities {
			break
		}
	}
	metadata.Entities = entities
	metadata.Title = strings.TrimSpace(metadata.Title)
	metadata.Summary = strings.TrimSpace(metadata.Summary)
	return &metadata, nil
}

// truncateContent truncates content to fit within token limits.
// Uses rough estimate of 4 characters per token and never splits a UTF-8 sequence.
func (g *Generator) truncateContent(content string) string {
	maxChars := g.maxTokens * 4

	if len(content) <= maxChars {
		return content
	}

	if g.logger != nil {
		g.logger.Warn("Truncating content for metadata generation",
			"from", len(content), "to", maxChars, "estimated_tokens", g.maxTokens)
	}

	cut := maxChars
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut]
}
