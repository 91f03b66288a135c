package bedrock

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"
	"github.com/stretchr/testify/require"

	"github.com/wayfind-labs/wayfind/runtime/router/predictor"
)

type stubRuntime struct {
	lastInput *bedrockruntime.ConverseInput
	out       *bedrockruntime.ConverseOutput
	err       error
}

func (s *stubRuntime) Converse(_ context.Context, params *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	s.lastInput = params
	return s.out, s.err
}

func converseText(text string) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{
			Value: brtypes.Message{
				Role:    brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: text}},
			},
		},
	}
}

func TestPredictDecodesResponse(t *testing.T) {
	stub := &stubRuntime{out: converseText(`{
		"intent": {"action_type": "navigate", "confidence": 0.9},
		"route_matching": {"resolved_route": "/tenants/t-1/overview"},
		"overall_confidence": 0.82
	}`)}
	cl, err := New(stub, Options{Model: "anthropic.claude-3-5-sonnet-20241022-v2:0"})
	require.NoError(t, err)

	pred, err := cl.Predict(context.Background(), "open tenant t-1", 0.1)
	require.NoError(t, err)
	require.Equal(t, "/tenants/t-1/overview", pred.RouteMatching.ResolvedRoute)
	require.InDelta(t, 0.82, pred.Confidence(), 1e-9)

	require.NotNil(t, stub.lastInput)
	require.Equal(t, "anthropic.claude-3-5-sonnet-20241022-v2:0", *stub.lastInput.ModelId)
	require.Len(t, stub.lastInput.Messages, 1)
	require.NotNil(t, stub.lastInput.InferenceConfig)
	require.EqualValues(t, defaultMaxTokens, *stub.lastInput.InferenceConfig.MaxTokens)
	require.InDelta(t, 0.1, *stub.lastInput.InferenceConfig.Temperature, 1e-6)
}

func TestPredictThrottled(t *testing.T) {
	stub := &stubRuntime{err: &smithy.GenericAPIError{Code: "ThrottlingException", Message: "slow down"}}
	cl, err := New(stub, Options{Model: "m"})
	require.NoError(t, err)

	_, err = cl.Predict(context.Background(), "anything", 0.1)
	require.ErrorIs(t, err, predictor.ErrRateLimited)
}

func TestPredictTransportError(t *testing.T) {
	stub := &stubRuntime{err: errors.New("boom")}
	cl, err := New(stub, Options{Model: "m"})
	require.NoError(t, err)

	_, err = cl.Predict(context.Background(), "anything", 0.1)
	require.Error(t, err)
	require.NotErrorIs(t, err, predictor.ErrRateLimited)
}

func TestPredictEmptyOutput(t *testing.T) {
	stub := &stubRuntime{out: &bedrockruntime.ConverseOutput{}}
	cl, err := New(stub, Options{Model: "m"})
	require.NoError(t, err)

	_, err = cl.Predict(context.Background(), "anything", 0.1)
	require.ErrorIs(t, err, predictor.ErrEmptyResponse)
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, Options{Model: "m"})
	require.Error(t, err)

	_, err = New(&stubRuntime{}, Options{})
	require.Error(t, err)
}
