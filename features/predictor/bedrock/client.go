// Package bedrock provides a predictor.Predictor backed by the AWS Bedrock
// Converse API. It sends the planning prompt as a single user message and
// translates the Converse text blocks back into a structured prediction.
package bedrock

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/wayfind-labs/wayfind/runtime/router/predictor"
)

// defaultMaxTokens caps the completion; predictions are small JSON objects.
const defaultMaxTokens = 1024

type (
	// RuntimeClient mirrors the subset of the AWS Bedrock runtime client
	// required by the adapter. It matches *bedrockruntime.Client so callers
	// can pass either the real client or a mock in tests.
	RuntimeClient interface {
		Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	}

	// Options configures the Bedrock adapter.
	Options struct {
		// Model is the Bedrock model identifier. Required.
		Model string

		// MaxTokens caps the completion. Defaults to 1024.
		MaxTokens int
	}

	// Client implements predictor.Predictor on top of Bedrock Converse.
	Client struct {
		runtime   RuntimeClient
		model     string
		maxTokens int
	}
)

// New builds a Bedrock-backed predictor from the provided runtime client and
// options.
func New(runtime RuntimeClient, opts Options) (*Client, error) {
	if runtime == nil {
		return nil, errors.New("bedrock runtime client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("model identifier is required")
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Client{runtime: runtime, model: opts.Model, maxTokens: maxTokens}, nil
}

// Predict implements predictor.Predictor.
func (c *Client) Predict(ctx context.Context, prompt string, temperature float64) (predictor.Prediction, error) {
	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(c.model),
		Messages: []brtypes.Message{{
			Role:    brtypes.ConversationRoleUser,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: prompt}},
		}},
		InferenceConfig: &brtypes.InferenceConfiguration{
			MaxTokens:   aws.Int32(int32(c.maxTokens)),
			Temperature: aws.Float32(float32(temperature)),
		},
	}
	out, err := c.runtime.Converse(ctx, input)
	if err != nil {
		if isRateLimited(err) {
			return predictor.Prediction{}, fmt.Errorf("%w: %w", predictor.ErrRateLimited, err)
		}
		return predictor.Prediction{}, fmt.Errorf("bedrock converse: %w", err)
	}
	return predictor.Decode(collectText(out))
}

// collectText concatenates the text blocks of the Converse output message.
func collectText(out *bedrockruntime.ConverseOutput) string {
	if out == nil {
		return ""
	}
	msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return ""
	}
	var b strings.Builder
	for _, block := range msg.Value.Content {
		if text, ok := block.(*brtypes.ContentBlockMemberText); ok {
			b.WriteString(text.Value)
		}
	}
	return b.String()
}

// isRateLimited reports whether err represents a provider rate limiting
// condition, covering both HTTP 429 responses and throttling error codes.
func isRateLimited(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			return true
		}
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 429 {
		return true
	}
	return false
}
