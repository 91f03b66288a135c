package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wayfind-labs/wayfind/runtime/router/predictor"
)

type fakePredictor struct {
	err   error
	calls int
}

func (f *fakePredictor) Predict(_ context.Context, _ string, _ float64) (predictor.Prediction, error) {
	f.calls++
	if f.err != nil {
		return predictor.Prediction{}, f.err
	}
	return predictor.Prediction{}, nil
}

func TestBackoffOnRateLimited(t *testing.T) {
	limiter := NewAdaptiveLimiter(60000, 60000)
	initialTPM := limiter.TPM()

	fake := &fakePredictor{err: fmt.Errorf("%w: provider said no", predictor.ErrRateLimited)}
	wrapped := limiter.Middleware()(fake)

	_, err := wrapped.Predict(context.Background(), "hello", 0.1)
	require.ErrorIs(t, err, predictor.ErrRateLimited)
	require.Less(t, limiter.TPM(), initialTPM)
}

func TestProbeOnSuccess(t *testing.T) {
	limiter := NewAdaptiveLimiter(60000, 120000)
	initialTPM := limiter.TPM()

	fake := &fakePredictor{}
	wrapped := limiter.Middleware()(fake)

	_, err := wrapped.Predict(context.Background(), "hello", 0.1)
	require.NoError(t, err)
	require.Greater(t, limiter.TPM(), initialTPM)
	require.Equal(t, 1, fake.calls)
}

func TestOtherErrorsDoNotBackOff(t *testing.T) {
	limiter := NewAdaptiveLimiter(60000, 60000)
	initialTPM := limiter.TPM()

	fake := &fakePredictor{err: errors.New("boom")}
	wrapped := limiter.Middleware()(fake)

	_, err := wrapped.Predict(context.Background(), "hello", 0.1)
	require.Error(t, err)
	require.Equal(t, initialTPM, limiter.TPM())
}

func TestBackoffFloors(t *testing.T) {
	limiter := NewAdaptiveLimiter(60000, 60000)
	for range 20 {
		limiter.backoff()
	}
	require.InDelta(t, limiter.minTPM, limiter.TPM(), 1e-9)
}

func TestContextCancellation(t *testing.T) {
	limiter := NewAdaptiveLimiter(60000, 60000)
	wrapped := limiter.Middleware()(&fakePredictor{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := wrapped.Predict(ctx, "hello", 0.1)
	require.Error(t, err)
}

func TestEstimateTokens(t *testing.T) {
	require.Equal(t, promptOverheadTokens, estimateTokens(""))
	require.Equal(t, promptOverheadTokens+25, estimateTokens(string(make([]byte, 100))))
}
