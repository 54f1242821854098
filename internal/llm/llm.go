// Package llm is the completion provider used for answers and document metadata.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"

	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/apperr"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/retry"
)

// DefaultModel answers questions and summarises documents.
const DefaultModel = openai.ChatModelGPT4oMini

// ErrEmptyCompletion is returned when the provider answers with no choices.
var ErrEmptyCompletion = errors.New("completion returned no choices")

// Request is one completion call.
type Request struct {
	System string
	User   string
	// JSON asks for a JSON object response.
	JSON        bool
	MaxTokens   int
	Temperature float64
}

// Usage is the token accounting reported by the provider.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Completion is the provider's answer.
type Completion struct {
	Text  string
	Usage Usage
}

// Completer produces text for a system and user prompt.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
}

// OpenAI implements Completer with chat completions.
type OpenAI struct {
	client  *openai.Client
	model   string
	policy  retry.Policy
	timeout time.Duration
	logger  *slog.Logger
}

// NewOpenAI creates a completer. An empty model selects DefaultModel.
func NewOpenAI(client *openai.Client, model string, policy retry.Policy, logger *slog.Logger) *OpenAI {
	if model == "" {
		model = string(DefaultModel)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAI{
		client:  client,
		model:   model,
		policy:  policy,
		timeout: 60 * time.Second,
		logger:  logger,
	}
}

// Model returns the chat model name.
func (o *OpenAI) Model() string { return o.model }

// Complete sends req and retries transient failures.
func (o *OpenAI) Complete(ctx context.Context, req Request) (*Completion, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.User))

	params := openai.ChatCompletionNewParams{
		Messages:    messages,
		Model:       openai.ChatModel(o.model),
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{
				Type: "json_object",
			},
		}
	}

	policy := o.policy
	policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		o.logger.Warn("Completion request failed, retrying", "attempt", attempt, "wait", wait, "error", err)
	}

	resp, err := retry.Value(ctx, policy, func(ctx context.Context) (*openai.ChatCompletion, error) {
		ctx, cancel := context.WithTimeout(ctx, o.timeout)
		defer cancel()
		return o.client.Chat.Completions.New(ctx, params)
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, apperr.Transient("complete", ErrEmptyCompletion)
	}

	return &Completion{
		Text: resp.Choices[0].Message.Content,
		Usage: Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}
