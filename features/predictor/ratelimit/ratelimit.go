// Package ratelimit provides a predictor.Predictor middleware that applies an
// AIMD-style adaptive token bucket at the provider boundary. It estimates the
// token cost of each prompt, blocks callers until capacity is available, and
// shrinks its effective tokens-per-minute budget when the provider signals
// rate limiting.
package ratelimit

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/time/rate"

	"github.com/wayfind-labs/wayfind/runtime/router/predictor"
)

// charsPerToken is the character-to-token ratio used by the cost heuristic.
const charsPerToken = 4

// promptOverheadTokens pads each request for provider-side framing.
const promptOverheadTokens = 64

type (
	// AdaptiveLimiter applies an adaptive tokens-per-minute budget on top of
	// a predictor. The limiter is process-local; construct one instance per
	// process and wrap the provider client with Middleware.
	AdaptiveLimiter struct {
		mu sync.Mutex

		limiter *rate.Limiter

		currentTPM float64
		minTPM     float64
		maxTPM     float64

		recoveryRate float64
	}

	limited struct {
		next    predictor.Predictor
		limiter *AdaptiveLimiter
	}
)

// NewAdaptiveLimiter constructs an AdaptiveLimiter with an initial
// tokens-per-minute budget and an upper bound. When maxTPM is zero or less
// than initialTPM, it is clamped to initialTPM.
func NewAdaptiveLimiter(initialTPM, maxTPM float64) *AdaptiveLimiter {
	if initialTPM <= 0 {
		initialTPM = 60000
	}
	if maxTPM <= 0 || maxTPM < initialTPM {
		maxTPM = initialTPM
	}
	minTPM := initialTPM * 0.1
	if minTPM < 1 {
		minTPM = 1
	}
	recoveryRate := initialTPM * 0.05
	if recoveryRate < 1 {
		recoveryRate = 1
	}
	return &AdaptiveLimiter{
		limiter:      rate.NewLimiter(rate.Limit(initialTPM/60.0), int(initialTPM)),
		currentTPM:   initialTPM,
		minTPM:       minTPM,
		maxTPM:       maxTPM,
		recoveryRate: recoveryRate,
	}
}

// Middleware returns a predictor middleware that enforces the adaptive limit.
func (l *AdaptiveLimiter) Middleware() func(predictor.Predictor) predictor.Predictor {
	return func(next predictor.Predictor) predictor.Predictor {
		if next == nil {
			return nil
		}
		return &limited{next: next, limiter: l}
	}
}

// TPM returns the current tokens-per-minute budget.
func (l *AdaptiveLimiter) TPM() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentTPM
}

// Predict enforces the limiter before delegating to the wrapped predictor.
func (c *limited) Predict(ctx context.Context, prompt string, temperature float64) (predictor.Prediction, error) {
	if err := c.limiter.limiter.WaitN(ctx, estimateTokens(prompt)); err != nil {
		return predictor.Prediction{}, err
	}
	pred, err := c.next.Predict(ctx, prompt, temperature)
	c.limiter.observe(err)
	return pred, err
}

func (l *AdaptiveLimiter) observe(err error) {
	if err == nil {
		l.probe()
		return
	}
	if errors.Is(err, predictor.ErrRateLimited) {
		l.backoff()
	}
}

// backoff halves the budget down to minTPM after a rate limit signal.
func (l *AdaptiveLimiter) backoff() {
	l.mu.Lock()
	defer l.mu.Unlock()

	newTPM := l.currentTPM * 0.5
	if newTPM < l.minTPM {
		newTPM = l.minTPM
	}
	if newTPM == l.currentTPM {
		return
	}
	l.currentTPM = newTPM
	l.limiter.SetLimit(rate.Limit(newTPM / 60.0))
	l.limiter.SetBurst(int(newTPM))
}

// probe adds back a fixed slice of the budget after each success, up to
// maxTPM.
func (l *AdaptiveLimiter) probe() {
	l.mu.Lock()
	defer l.mu.Unlock()

	newTPM := l.currentTPM + l.recoveryRate
	if newTPM > l.maxTPM {
		newTPM = l.maxTPM
	}
	if newTPM == l.currentTPM {
		return
	}
	l.currentTPM = newTPM
	l.limiter.SetLimit(rate.Limit(newTPM / 60.0))
	l.limiter.SetBurst(int(newTPM))
}

// estimateTokens computes a cheap heuristic for the token count of a prompt.
func estimateTokens(prompt string) int {
	return len(prompt)/charsPerToken + promptOverheadTokens
}
