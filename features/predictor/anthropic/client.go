// Package anthropic provides a predictor.Predictor backed by the Anthropic
// Claude Messages API. It renders the planning prompt as a single user
// message via github.com/anthropics/anthropic-sdk-go and decodes the text
// response into a structured prediction.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/wayfind-labs/wayfind/runtime/router/predictor"
)

// defaultMaxTokens caps the completion; predictions are small JSON objects.
const defaultMaxTokens = 1024

type (
	// MessagesClient captures the subset of the Anthropic SDK client used by
	// the adapter. It is satisfied by *sdk.MessageService so callers can pass
	// either a real client or a mock in tests.
	MessagesClient interface {
		New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
	}

	// Options configures the Anthropic adapter.
	Options struct {
		// Model is the Claude model identifier. Required. Use the typed model
		// constants from github.com/anthropics/anthropic-sdk-go.
		Model string

		// MaxTokens caps the completion. Defaults to 1024.
		MaxTokens int
	}

	// Client implements predictor.Predictor on top of Claude Messages.
	Client struct {
		msg       MessagesClient
		model     string
		maxTokens int
	}
)

// New builds an Anthropic-backed predictor from the provided Messages client
// and options.
func New(msg MessagesClient, opts Options) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("model identifier is required")
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Client{msg: msg, model: opts.Model, maxTokens: maxTokens}, nil
}

// NewFromAPIKey constructs a client using the default Anthropic HTTP client.
func NewFromAPIKey(apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, Options{Model: model})
}

// Predict implements predictor.Predictor.
func (c *Client) Predict(ctx context.Context, prompt string, temperature float64) (predictor.Prediction, error) {
	msg, err := c.msg.New(ctx, sdk.MessageNewParams{
		Model:       sdk.Model(c.model),
		MaxTokens:   int64(c.maxTokens),
		Temperature: sdk.Float(temperature),
		Messages:    []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(prompt))},
	})
	if err != nil {
		if isRateLimited(err) {
			return predictor.Prediction{}, fmt.Errorf("%w: %w", predictor.ErrRateLimited, err)
		}
		return predictor.Prediction{}, fmt.Errorf("anthropic messages.new: %w", err)
	}
	return predictor.Decode(collectText(msg))
}

// collectText concatenates the text blocks of the response.
func collectText(msg *sdk.Message) string {
	if msg == nil {
		return ""
	}
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

func isRateLimited(err error) bool {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}
