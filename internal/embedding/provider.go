package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/apperr"
)

const (
	// DefaultModel is the OpenAI model used for generating embeddings.
	DefaultModel = "text-embedding-3-small"

	// DefaultDimension is the vector dimension for text-embedding-3-small.
	DefaultDimension = 1536
)

// Provider turns text into a vector.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// OpenAIProvider calls the OpenAI embeddings endpoint.
type OpenAIProvider struct {
	client *Client
	model  string
}

// NewOpenAIProvider creates a provider for model (DefaultModel when empty).
func NewOpenAIProvider(client *Client, model string) *OpenAIProvider {
	if model == "" {
		model = DefaultModel
	}
	return &OpenAIProvider{client: client, model: model}
}

// Model returns the embedding model name.
func (p *OpenAIProvider) Model() string { return p.model }

// Embed returns the embedding of a single text.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(vectors))
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in one request, preserving order.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := p.client.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		return nil, classifyAPIError("embed", err)
	}

	embeddings := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if int(data.Index) < len(embeddings) {
			embeddings[data.Index] = toFloat32(data.Embedding)
		}
	}
	for i, e := range embeddings {
		if e == nil {
			return nil, fmt.Errorf("missing embedding for input %d", i)
		}
	}
	return embeddings, nil
}

// classifyAPIError tags OpenAI HTTP failures: 429 and 5xx are transient, other 4xx
// (invalid input, auth, not found) are terminal.
func classifyAPIError(op string, err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	switch {
	case apiErr.StatusCode == 429 || apiErr.StatusCode >= 500 || apiErr.StatusCode == 408:
		return apperr.Transient(op, err)
	case apiErr.StatusCode == 404:
		return apperr.NotFound(op, err)
	default:
		return apperr.Validation(op, err)
	}
}

// IsRateLimited reports whether err is an HTTP 429 from the provider.
func IsRateLimited(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// toFloat32 converts []float64 to []float32.
// OpenAI API returns float64, but storage uses float32 for memory efficiency.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
