package anthropic

import (
	"context"
	"errors"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/require"

	"github.com/wayfind-labs/wayfind/runtime/router/predictor"
)

type stubMessagesClient struct {
	lastParams sdk.MessageNewParams
	resp       *sdk.Message
	err        error
}

func (s *stubMessagesClient) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	s.lastParams = body
	return s.resp, s.err
}

func textMessage(text string) *sdk.Message {
	return &sdk.Message{
		Content: []sdk.ContentBlockUnion{{Type: "text", Text: text}},
	}
}

func TestPredictDecodesResponse(t *testing.T) {
	stub := &stubMessagesClient{resp: textMessage(`{
		"intent": {"action_type": "navigate", "confidence": 0.9},
		"route_matching": {"resolved_route": "/landlords/L-9/overview"},
		"overall_confidence": 0.85,
		"reasoning": "direct lookup"
	}`)}
	cl, err := New(stub, Options{Model: "claude-sonnet-4-20250514"})
	require.NoError(t, err)

	pred, err := cl.Predict(context.Background(), "who is james smith", 0.1)
	require.NoError(t, err)
	require.Equal(t, "/landlords/L-9/overview", pred.RouteMatching.ResolvedRoute)
	require.InDelta(t, 0.85, pred.Confidence(), 1e-9)

	require.Equal(t, sdk.Model("claude-sonnet-4-20250514"), stub.lastParams.Model)
	require.EqualValues(t, defaultMaxTokens, stub.lastParams.MaxTokens)
	require.InDelta(t, 0.1, stub.lastParams.Temperature.Value, 1e-9)
	require.Len(t, stub.lastParams.Messages, 1)
}

func TestPredictConcatenatesTextBlocks(t *testing.T) {
	stub := &stubMessagesClient{resp: &sdk.Message{
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: `{"route_matching": {"resolved_`},
			{Type: "tool_use"},
			{Type: "text", Text: `route": "/properties"}}`},
		},
	}}
	cl, err := New(stub, Options{Model: "claude-sonnet-4-20250514"})
	require.NoError(t, err)

	pred, err := cl.Predict(context.Background(), "properties", 0.1)
	require.NoError(t, err)
	require.Equal(t, "/properties", pred.RouteMatching.ResolvedRoute)
}

func TestPredictRateLimited(t *testing.T) {
	stub := &stubMessagesClient{err: &sdk.Error{StatusCode: 429}}
	cl, err := New(stub, Options{Model: "claude-sonnet-4-20250514"})
	require.NoError(t, err)

	_, err = cl.Predict(context.Background(), "anything", 0.1)
	require.ErrorIs(t, err, predictor.ErrRateLimited)
}

func TestPredictTransportError(t *testing.T) {
	stub := &stubMessagesClient{err: errors.New("boom")}
	cl, err := New(stub, Options{Model: "claude-sonnet-4-20250514"})
	require.NoError(t, err)

	_, err = cl.Predict(context.Background(), "anything", 0.1)
	require.Error(t, err)
	require.NotErrorIs(t, err, predictor.ErrRateLimited)
}

func TestPredictEmptyResponse(t *testing.T) {
	stub := &stubMessagesClient{resp: &sdk.Message{}}
	cl, err := New(stub, Options{Model: "claude-sonnet-4-20250514"})
	require.NoError(t, err)

	_, err = cl.Predict(context.Background(), "anything", 0.1)
	require.ErrorIs(t, err, predictor.ErrEmptyResponse)
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, Options{Model: "m"})
	require.Error(t, err)

	_, err = New(&stubMessagesClient{}, Options{})
	require.Error(t, err)
}
