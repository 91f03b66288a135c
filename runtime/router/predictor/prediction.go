package predictor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type (
	// Prediction is the structured routing decision returned by the model.
	// Missing keys decode to zero values; callers apply the documented
	// defaults. Extra keys in the wire form are ignored.
	Prediction struct {
		// Intent summarizes the detected user intent.
		Intent Intent `json:"intent"`

		// EntityResolution lists the entity searches the model suggests. The
		// planner feeds each directive to the entity resolver.
		EntityResolution []EntityDirective `json:"entity_resolution"`

		// RouteMatching carries the model's route selection.
		RouteMatching RouteMatching `json:"route_matching"`

		// OverallConfidence is the model's self-reported confidence. Tolerant of
		// numeric strings; nil when absent. Use Confidence for the defaulted,
		// clamped value.
		OverallConfidence *Score `json:"overall_confidence"`

		// Reasoning is the model's free-text explanation.
		Reasoning string `json:"reasoning"`

		// Error carries the technical detail of an upstream failure when the
		// prediction is a fallback rather than a real model response.
		Error string `json:"error,omitempty"`
	}

	// Intent is the model's view of what the user wants.
	Intent struct {
		ActionType string   `json:"action_type"`
		Entities   []string `json:"entities"`
		ViewType   string   `json:"view_type"`
		Confidence Score    `json:"confidence"`
	}

	// EntityDirective instructs the resolver where to look for one entity.
	EntityDirective struct {
		EntityName   string   `json:"entity_name"`
		SearchTables []string `json:"search_tables"`
		SearchFields []string `json:"search_fields"`
		Confidence   Score    `json:"confidence"`
	}

	// RouteMatching carries the model's route selection: the matched template,
	// the resolved route (possibly containing the entity ID placeholder), and
	// the filled parameters.
	RouteMatching struct {
		MatchedPattern string           `json:"matched_pattern"`
		ResolvedRoute  string           `json:"resolved_route"`
		Parameters     []ParameterValue `json:"parameters"`
		Confidence     Score            `json:"confidence"`
	}

	// ParameterValue is one filled route parameter as reported by the model.
	ParameterValue struct {
		Name   string `json:"name"`
		Value  string `json:"value"`
		Type   string `json:"type"`
		Source string `json:"source"`
	}

	// Score is a confidence value tolerant of sloppy model output: it accepts
	// JSON numbers, numeric strings, and null. Malformed values decode to the
	// default of 0.5 rather than failing the whole prediction.
	Score float64
)

// UnmarshalJSON implements tolerant decoding for Score.
func (s *Score) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*s = 0.5
		return nil
	}
	if data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			*s = 0.5
			return nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
		if err != nil {
			*s = 0.5
			return nil
		}
		*s = Score(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		*s = 0.5
		return nil
	}
	*s = Score(f)
	return nil
}

// Clamped returns the score forced into [0, 1].
func (s Score) Clamped() float64 {
	f := float64(s)
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// Decode parses raw model output into a Prediction. It first attempts a
// direct JSON decode; if the output embeds the JSON object in surrounding
// prose it falls back to bracket-balanced extraction. The decoded value is
// checked against the prediction schema; any failure returns ErrParse.
func Decode(raw string) (Prediction, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Prediction{}, ErrEmptyResponse
	}
	candidate := []byte(trimmed)
	if !json.Valid(candidate) {
		extracted, ok := ExtractJSON(trimmed)
		if !ok {
			return Prediction{}, fmt.Errorf("%w: no JSON object found", ErrParse)
		}
		candidate = extracted
	}
	if err := validateShape(candidate); err != nil {
		return Prediction{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	var p Prediction
	if err := json.Unmarshal(candidate, &p); err != nil {
		return Prediction{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return p, nil
}

// Confidence returns the overall confidence clamped into [0, 1], applying
// the 0.5 default when the model omitted it.
func (p Prediction) Confidence() float64 {
	if p.OverallConfidence == nil {
		return 0.5
	}
	return p.OverallConfidence.Clamped()
}

func scorePtr(f float64) *Score {
	s := Score(f)
	return &s
}

// ErrorPrediction builds the low-confidence fallback returned when the
// upstream model fails: navigate intent, no entities, the technical detail
// preserved in both Error and Reasoning.
func ErrorPrediction(detail string) Prediction {
	return Prediction{
		Intent:            Intent{ActionType: "navigate", Confidence: 0.1},
		OverallConfidence: scorePtr(0.1),
		Reasoning:         "prediction unavailable: " + detail,
		Error:             detail,
	}
}

// IsFallback reports whether the prediction is an error-shaped fallback.
func (p Prediction) IsFallback() bool {
	return p.Error != ""
}
