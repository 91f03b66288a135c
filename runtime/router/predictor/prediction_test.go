package predictor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleResponse = `{
  "intent": {"action_type": "NAVIGATE", "entities": ["James Smith"], "view_type": "financials", "confidence": 0.9},
  "entity_resolution": [
    {"entity_name": "James Smith", "search_tables": ["users", "landlords"], "search_fields": ["name", "email"], "confidence": 0.9}
  ],
  "route_matching": {
    "matched_pattern": "/{entity_type}/{entity_id}/{view_type}",
    "resolved_route": "/landlords/ENTITY_ID_PLACEHOLDER/financials",
    "parameters": [
      {"name": "entity_type", "value": "landlords", "source": "inferred"},
      {"name": "entity_id", "value": "ENTITY_ID_PLACEHOLDER", "source": "entity"},
      {"name": "view_type", "value": "financials", "source": "inferred"}
    ],
    "confidence": 0.85
  },
  "overall_confidence": 0.87,
  "reasoning": "Income context implies the landlord financials view."
}`

func TestDecodeWellFormed(t *testing.T) {
	p, err := Decode(sampleResponse)
	require.NoError(t, err)
	require.Equal(t, "NAVIGATE", p.Intent.ActionType)
	require.Len(t, p.EntityResolution, 1)
	require.Equal(t, []string{"users", "landlords"}, p.EntityResolution[0].SearchTables)
	require.Equal(t, "/landlords/ENTITY_ID_PLACEHOLDER/financials", p.RouteMatching.ResolvedRoute)
	require.InDelta(t, 0.87, p.Confidence(), 1e-9)
	require.False(t, p.IsFallback())
}

func TestDecodeEmbeddedInProse(t *testing.T) {
	raw := "Here is my analysis:\n```json\n" + sampleResponse + "\n```\nLet me know if you need more."
	p, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, "/{entity_type}/{entity_id}/{view_type}", p.RouteMatching.MatchedPattern)
}

func TestDecodeMissingKeysDefault(t *testing.T) {
	p, err := Decode(`{"reasoning": "nothing to do"}`)
	require.NoError(t, err)
	require.Empty(t, p.Intent.ActionType)
	require.Empty(t, p.EntityResolution)
	require.Nil(t, p.OverallConfidence)
	require.InDelta(t, 0.5, p.Confidence(), 1e-9)
}

func TestDecodeRejectsWrongShape(t *testing.T) {
	_, err := Decode(`{"entity_resolution": {"entity_name": "x"}}`)
	require.ErrorIs(t, err, ErrParse)
}

func TestDecodeRejectsProseOnly(t *testing.T) {
	_, err := Decode("I could not produce a routing decision.")
	require.ErrorIs(t, err, ErrParse)
	_, err = Decode("   ")
	require.ErrorIs(t, err, ErrEmptyResponse)
}

func TestScoreToleratesStringsAndNull(t *testing.T) {
	p, err := Decode(`{"overall_confidence": "0.75"}`)
	require.NoError(t, err)
	require.InDelta(t, 0.75, p.Confidence(), 1e-9)

	p, err = Decode(`{"overall_confidence": null}`)
	require.NoError(t, err)
	require.InDelta(t, 0.5, p.Confidence(), 1e-9)

	p, err = Decode(`{"overall_confidence": "very sure"}`)
	require.NoError(t, err)
	require.InDelta(t, 0.5, p.Confidence(), 1e-9)
}

func TestScoreClamped(t *testing.T) {
	require.Equal(t, 1.0, Score(1.7).Clamped())
	require.Equal(t, 0.0, Score(-0.2).Clamped())
	require.Equal(t, 0.4, Score(0.4).Clamped())
}

func TestExtractJSONHonorsStrings(t *testing.T) {
	raw := `prefix {"reasoning": "braces } inside { strings", "intent": {}} suffix`
	got, ok := ExtractJSON(raw)
	require.True(t, ok)
	require.JSONEq(t, `{"reasoning": "braces } inside { strings", "intent": {}}`, string(got))
}

func TestErrorPrediction(t *testing.T) {
	p := ErrorPrediction("upstream timeout")
	require.True(t, p.IsFallback())
	require.Equal(t, "navigate", p.Intent.ActionType)
	require.InDelta(t, 0.1, p.Confidence(), 1e-9)
	require.Contains(t, p.Reasoning, "upstream timeout")
}

func TestStaticQueueAndDefault(t *testing.T) {
	s := NewStatic(Prediction{Reasoning: "default"})
	s.Enqueue(Prediction{Reasoning: "first"})
	s.EnqueueError(errors.New("boom"))

	p, err := s.Predict(context.Background(), "p1", 0.1)
	require.NoError(t, err)
	require.Equal(t, "first", p.Reasoning)

	_, err = s.Predict(context.Background(), "p2", 0.1)
	require.EqualError(t, err, "boom")

	p, err = s.Predict(context.Background(), "p3", 0.2)
	require.NoError(t, err)
	require.Equal(t, "default", p.Reasoning)
	require.Equal(t, 3, s.Calls())
	require.Equal(t, 0.2, s.LastTemperature())
}

func TestStaticHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewStatic(Prediction{})
	_, err := s.Predict(ctx, "p", 0.1)
	require.ErrorIs(t, err, context.Canceled)
}
