// Package predictor defines the contract the planner uses to consult an LLM.
// It is a capability port in the style of provider-agnostic model clients:
// implementations wrap provider SDKs (Anthropic, OpenAI, Bedrock, ...) and
// translate free-text completions into the structured Prediction the planner
// consumes. The planner never imports a provider SDK.
package predictor

import (
	"context"
	"errors"
)

// Predictor maps a prompt to a structured routing prediction. Implementations
// must be safe for concurrent use and must honor the context deadline,
// releasing any in-flight resources when it elapses.
//
// On upstream failure implementations return an error; callers convert it
// into a low-confidence fallback via ErrorPrediction so a plan can still be
// produced.
type Predictor interface {
	Predict(ctx context.Context, prompt string, temperature float64) (Prediction, error)
}

// ErrRateLimited indicates the provider rejected the call due to rate
// limiting. Adapters wrap provider errors with this sentinel so callers can
// errors.Is on it.
var ErrRateLimited = errors.New("predictor: rate limited")

// ErrParse indicates the provider responded but its output could not be
// decoded into a Prediction, even after bracket-balanced extraction. Plans
// built from this failure clamp confidence to 0.1.
var ErrParse = errors.New("predictor: unparseable response")

// ErrEmptyResponse indicates the provider returned no content.
var ErrEmptyResponse = errors.New("predictor: empty response")

// Func adapts a plain function to the Predictor interface.
type Func func(ctx context.Context, prompt string, temperature float64) (Prediction, error)

// Predict implements Predictor.
func (f Func) Predict(ctx context.Context, prompt string, temperature float64) (Prediction, error) {
	return f(ctx, prompt, temperature)
}
