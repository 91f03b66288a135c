package predictor

import (
	"context"
	"sync"
)

// Static is a deterministic Predictor for tests and for deployments without
// a configured provider. Responses are served from a queue when one is set,
// otherwise every call returns the configured default. The zero value serves
// a generic navigate prediction.
type Static struct {
	mu       sync.Mutex
	def      Prediction
	hasDef   bool
	queue    []response
	prompts  []string
	lastTemp float64
}

type response struct {
	p   Prediction
	err error
}

// NewStatic builds a Static predictor that always returns the given
// prediction.
func NewStatic(def Prediction) *Static {
	return &Static{def: def, hasDef: true}
}

// Enqueue appends a prediction to the response queue. Queued responses are
// served before the default, in FIFO order.
func (s *Static) Enqueue(p Prediction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, response{p: p})
}

// EnqueueError appends an error to the response queue.
func (s *Static) EnqueueError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, response{err: err})
}

// Predict serves the next queued response or the default. It honors context
// cancellation and records the prompt for later inspection.
func (s *Static) Predict(ctx context.Context, prompt string, temperature float64) (Prediction, error) {
	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	s.lastTemp = temperature
	if len(s.queue) > 0 {
		next := s.queue[0]
		s.queue = s.queue[1:]
		return next.p, next.err
	}
	if s.hasDef {
		return s.def, nil
	}
	return Prediction{
		Intent:            Intent{ActionType: "navigate", Confidence: 0.8},
		OverallConfidence: scorePtr(0.8),
		Reasoning:         "static predictor: no provider configured",
	}, nil
}

// Prompts returns the prompts observed so far.
func (s *Static) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.prompts))
	copy(out, s.prompts)
	return out
}

// Calls returns the number of Predict invocations observed.
func (s *Static) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

// LastTemperature returns the temperature of the most recent call.
func (s *Static) LastTemperature() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTemp
}
