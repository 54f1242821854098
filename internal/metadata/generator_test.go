package metadata

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/llm"
)

type fakeCompleter struct {
	text string
	err  error
	req  llm.Request
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.Request) (*llm.Completion, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Completion{Text: f.text}, nil
}

// TestParseMetadataResponse verifies JSON parsing of valid response.
func TestParseMetadataResponse(t *testing.T) {
	jsonResponse := `{"title": "Corolla 2024 spec sheet", "summary": "Test summary", "entities": ["Toyota", "Corolla", " toyota ", ""]}`

	metadata, err := parseMetadata(jsonResponse)
	if err != nil {
		t.Fatalf("Failed to parse valid JSON response: %v", err)
	}

	if metadata.Summary != "Test summary" {
		t.Errorf("Expected summary 'Test summary', got '%s'", metadata.Summary)
	}
	if metadata.Title != "Corolla 2024 spec sheet" {
		t.Errorf("Unexpected title '%s'", metadata.Title)
	}

	// Duplicates and blanks are dropped
	if len(metadata.Entities) != 2 {
		t.Fatalf("Expected 2 entities, got %d: %v", len(metadata.Entities), metadata.Entities)
	}
	if metadata.Entities[0] != "Toyota" || metadata.Entities[1] != "Corolla" {
		t.Errorf("Unexpected entities %v", metadata.Entities)
	}
}

func TestParseMetadataResponse_Invalid(t *testing.T) {
	if _, err := parseMetadata("not json"); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}

func TestGenerateMetadata(t *testing.T) {
	fake := &fakeCompleter{text: `{"summary": "Spec sheet for the Civic.", "entities": ["Honda", "Civic"]}`}
	g := NewGenerator(fake, nil)

	metadata, err := g.GenerateMetadata(context.Background(), "civic.pdf", "Engine: 1.5L turbo, 180 hp")
	if err != nil {
		t.Fatalf("GenerateMetadata failed: %v", err)
	}
	if metadata.Summary != "Spec sheet for the Civic." {
		t.Errorf("Unexpected summary '%s'", metadata.Summary)
	}
	if !fake.req.JSON {
		t.Error("Expected JSON response format to be requested")
	}
	if !strings.Contains(fake.req.User, "civic.pdf") || !strings.Contains(fake.req.User, "180 hp") {
		t.Error("Prompt should include document name and content")
	}
}

func TestGenerateMetadata_CompletionError(t *testing.T) {
	g := NewGenerator(&fakeCompleter{err: errors.New("boom")}, nil)

	if _, err := g.GenerateMetadata(context.Background(), "x.pdf", "text"); err == nil {
		t.Error("Expected error from failing completer")
	}
}

// TestTruncateContent verifies truncation works correctly for very long content.
func TestTruncateContent(t *testing.T) {
	g := &Generator{
		maxTokens: DefaultMaxTokens,
	}

	// Create very long string (100k chars, well over 16k tokens)
	longContent := strings.Repeat("This is a test content. ", 4000) // ~100k chars

	truncated := g.truncateContent(longContent)

	expectedMaxChars := DefaultMaxTokens * 4
	if len(truncated) != expectedMaxChars {
		t.Errorf("Expected truncated length %d, got %d", expectedMaxChars, len(truncated))
	}

	if !strings.HasPrefix(longContent, truncated) {
		t.Error("Truncated content should be a prefix of original content")
	}
}

// TestTruncateContent_Short verifies short content is not truncated.
func TestTruncateContent_Short(t *testing.T) {
	g := &Generator{
		maxTokens: DefaultMaxTokens,
	}

	shortContent := strings.Repeat("Short. ", 140) // ~1000 chars

	if truncated := g.truncateContent(shortContent); truncated != shortContent {
		t.Error("Short content should not be truncated")
	}
}

// TestTruncateContent_MultiByte verifies truncation lands on a rune boundary.
func TestTruncateContent_MultiByte(t *testing.T) {
	g := &Generator{maxTokens: 1}

	// "é" is two bytes, so byte 4 falls inside the second "é"
	truncated := g.truncateContent("aéééé")
	if truncated != "aé" {
		t.Errorf("Expected 'aé', got '%s'", truncated)
	}
}
