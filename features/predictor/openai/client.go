// Package openai provides a predictor.Predictor backed by the OpenAI Chat
// Completions API via github.com/openai/openai-go. The planning prompt is
// sent as a single user message and the completion text is decoded into a
// structured prediction.
package openai

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/wayfind-labs/wayfind/runtime/router/predictor"
)

type (
	// ChatClient captures the subset of the OpenAI SDK used by the adapter.
	// It is satisfied by the SDK's chat completion service so callers can
	// pass either a real client or a mock in tests.
	ChatClient interface {
		New(ctx context.Context, body sdk.ChatCompletionNewParams, opts ...option.RequestOption) (*sdk.ChatCompletion, error)
	}

	// Options configures the OpenAI adapter.
	Options struct {
		// Model is the chat model identifier. Required.
		Model string
	}

	// Client implements predictor.Predictor via Chat Completions.
	Client struct {
		chat  ChatClient
		model string
	}
)

// New builds an OpenAI-backed predictor from the provided chat client and
// options.
func New(chat ChatClient, opts Options) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("model identifier is required")
	}
	return &Client{chat: chat, model: opts.Model}, nil
}

// NewFromAPIKey constructs a client using the default OpenAI HTTP client.
func NewFromAPIKey(apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	oc := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&oc.Chat.Completions, Options{Model: model})
}

// Predict implements predictor.Predictor.
func (c *Client) Predict(ctx context.Context, prompt string, temperature float64) (predictor.Prediction, error) {
	resp, err := c.chat.New(ctx, sdk.ChatCompletionNewParams{
		Model:       sdk.ChatModel(c.model),
		Temperature: sdk.Float(temperature),
		Messages:    []sdk.ChatCompletionMessageParamUnion{sdk.UserMessage(prompt)},
	})
	if err != nil {
		if isRateLimited(err) {
			return predictor.Prediction{}, fmt.Errorf("%w: %w", predictor.ErrRateLimited, err)
		}
		return predictor.Prediction{}, fmt.Errorf("openai chat.completions.new: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return predictor.Prediction{}, predictor.ErrEmptyResponse
	}
	return predictor.Decode(resp.Choices[0].Message.Content)
}

func isRateLimited(err error) bool {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}
