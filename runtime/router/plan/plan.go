// Package plan assembles action plans: the structured result of routing one
// natural-language query. The single-call planner consults the predictor
// once, resolves the entities it names, substitutes their identifiers into
// the route, and validates or repairs the result.
package plan

import (
	"strings"

	"github.com/wayfind-labs/wayfind/runtime/router/resolve"
)

// ActionKind is the closed set of actions a plan can describe. Unknown wire
// values are coerced to ActionNavigate for forward compatibility.
type ActionKind string

const (
	ActionNavigate ActionKind = "navigate"
	ActionQuery    ActionKind = "query"
	ActionCreate   ActionKind = "create"
	ActionEdit     ActionKind = "edit"
	ActionDelete   ActionKind = "delete"
)

// CoerceActionKind maps a wire value to an ActionKind, defaulting to
// ActionNavigate.
func CoerceActionKind(s string) ActionKind {
	switch ActionKind(strings.ToLower(strings.TrimSpace(s))) {
	case ActionNavigate, ActionQuery, ActionCreate, ActionEdit, ActionDelete:
		return ActionKind(strings.ToLower(strings.TrimSpace(s)))
	default:
		return ActionNavigate
	}
}

type (
	// EntityMatch is one resolved entity attached to a plan.
	EntityMatch struct {
		// ID is the record identifier.
		ID string `json:"id"`

		// Name is the display value.
		Name string `json:"name"`

		// Table is the backing table.
		Table string `json:"table"`

		// EntityType is the domain type derived from the table.
		EntityType string `json:"entity_type"`

		// Confidence scores the resolution in [0, 1].
		Confidence float64 `json:"confidence"`

		// MatchedFields lists the fields that matched the mention.
		MatchedFields []string `json:"matched_fields,omitempty"`

		// Row carries the raw record values.
		Row map[string]any `json:"row,omitempty"`
	}

	// RouteParameter is one filled route parameter. Source records how the
	// value was derived: entity, literal, inferred, or llm.
	RouteParameter struct {
		Name   string `json:"name"`
		Value  string `json:"value"`
		Type   string `json:"type"`
		Source string `json:"source"`
	}

	// Alternative is a shallow plan: an ActionPlan without alternatives of
	// its own. Modeling it as a distinct type keeps the structure bounded.
	Alternative struct {
		ActionKind     ActionKind       `json:"action_kind"`
		Route          string           `json:"route"`
		Confidence     float64          `json:"confidence"`
		Parameters     []RouteParameter `json:"parameters,omitempty"`
		Entities       []EntityMatch    `json:"entities,omitempty"`
		MatchedPattern string           `json:"matched_pattern"`
		Reasoning      string           `json:"reasoning"`
	}

	// ActionPlan is the complete structured result of one planning call.
	ActionPlan struct {
		ActionKind     ActionKind       `json:"action_kind"`
		Route          string           `json:"route"`
		Confidence     float64          `json:"confidence"`
		Parameters     []RouteParameter `json:"parameters,omitempty"`
		Entities       []EntityMatch    `json:"entities,omitempty"`
		MatchedPattern string           `json:"matched_pattern"`
		Reasoning      string           `json:"reasoning"`
		Alternatives   []Alternative    `json:"alternatives,omitempty"`
	}
)

// parameterSources is the closed set of RouteParameter.Source values.
var parameterSources = map[string]bool{
	"entity": true, "literal": true, "inferred": true, "llm": true,
}

// CoerceParameterSource maps a wire value to a known source, defaulting to
// "llm".
func CoerceParameterSource(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if parameterSources[s] {
		return s
	}
	return "llm"
}

// matchToEntity converts a resolver match into the plan's entity shape.
func matchToEntity(m resolve.Match) EntityMatch {
	return EntityMatch{
		ID:            m.ID,
		Name:          m.Name,
		Table:         m.Table,
		EntityType:    m.EntityType,
		Confidence:    m.Confidence,
		MatchedFields: m.MatchedFields,
		Row:           m.Row,
	}
}

// Shallow returns the plan as an Alternative, dropping nested alternatives.
func (p ActionPlan) Shallow() Alternative {
	return Alternative{
		ActionKind:     p.ActionKind,
		Route:          p.Route,
		Confidence:     p.Confidence,
		Parameters:     p.Parameters,
		Entities:       p.Entities,
		MatchedPattern: p.MatchedPattern,
		Reasoning:      p.Reasoning,
	}
}
