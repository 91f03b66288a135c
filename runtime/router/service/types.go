package service

import (
	"time"

	"github.com/wayfind-labs/wayfind/runtime/router/plan"
)

const (
	// MaxQueryLength bounds the query; longer requests are rejected.
	MaxQueryLength = 500

	// MaxAlternativesLimit caps how many alternatives a request may ask for.
	MaxAlternativesLimit = 10

	// DefaultMaxAlternatives applies when the request leaves the field unset.
	DefaultMaxAlternatives = 3
)

// Latency classification thresholds.
const (
	excellentUnder  = 1000 * time.Millisecond
	goodUnder       = 3000 * time.Millisecond
	acceptableUnder = 5000 * time.Millisecond
)

type (
	// Request is one planning call.
	Request struct {
		// Query is the natural-language request. Required, at most
		// MaxQueryLength characters.
		Query string `json:"query"`

		// UserID identifies the caller. Optional.
		UserID string `json:"user_id,omitempty"`

		// UserRole is matched against RoutePattern.RequiredRoles. Optional.
		UserRole string `json:"user_role,omitempty"`

		// Context is opaque session data passed to the prompt builder.
		Context map[string]any `json:"context,omitempty"`

		// MaxAlternatives bounds the alternatives list, in
		// [0, MaxAlternativesLimit]. Nil means DefaultMaxAlternatives.
		MaxAlternatives *int `json:"max_alternatives,omitempty"`
	}

	// Performance describes how the response was produced.
	Performance struct {
		DurationMS int64  `json:"duration_ms"`
		Level      string `json:"level"`
		LLMCalls   int    `json:"llm_calls"`
		CacheHits  int    `json:"cache_hits"`
		CacheType  string `json:"cache_type"`
	}

	// Metadata echoes request facts back to the caller.
	Metadata struct {
		QueryLength int       `json:"query_length"`
		UserID      string    `json:"user_id,omitempty"`
		UserRole    string    `json:"user_role,omitempty"`
		Timestamp   time.Time `json:"timestamp"`
	}

	// Response is the planning result.
	Response struct {
		Success      bool               `json:"success"`
		ActionPlan   plan.ActionPlan    `json:"action_plan"`
		Alternatives []plan.Alternative `json:"alternatives"`
		Performance  Performance        `json:"performance"`
		Metadata     Metadata           `json:"metadata"`
	}
)

// MaxAlts returns the clamped alternatives bound for the request.
func (r Request) MaxAlts() int {
	if r.MaxAlternatives == nil {
		return DefaultMaxAlternatives
	}
	n := *r.MaxAlternatives
	if n < 0 {
		return 0
	}
	if n > MaxAlternativesLimit {
		return MaxAlternativesLimit
	}
	return n
}

// LatencyLevel classifies a duration as excellent, good, acceptable, or
// slow.
func LatencyLevel(d time.Duration) string {
	switch {
	case d < excellentUnder:
		return "excellent"
	case d < goodUnder:
		return "good"
	case d < acceptableUnder:
		return "acceptable"
	default:
		return "slow"
	}
}
