package embedding

import (
	"fmt"
	"os"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Client wraps the OpenAI client shared by embedding and completion.
type Client struct {
	client *openai.Client
}

// NewClient creates an OpenAI client. When apiKey is empty it falls back to OPENAI_API_KEY
// and returns an error if that is not set either.
// The SDK's own retries are disabled: internal/retry owns retry policy.
func NewClient(apiKey string, timeout time.Duration) (*Client, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}
	client := openai.NewClient(opts...)

	return &Client{client: &client}, nil
}

// Client returns the underlying OpenAI client for use in other packages (e.g., completion).
func (c *Client) Client() *openai.Client {
	return c.client
}
