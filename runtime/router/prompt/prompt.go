// Package prompt renders the single planning prompt sent to the predictor.
// The prompt carries the domain label, the user query verbatim, a compact
// schema summary, and the declared route patterns with their intent
// exemplars. Rendering is pure and deterministic for a given configuration
// and query.
package prompt

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/wayfind-labs/wayfind/runtime/router/site"
)

// EntityIDPlaceholder is the literal token the model emits wherever it
// cannot yet know a record identifier. The planner substitutes the resolved
// entity ID after resolution.
const EntityIDPlaceholder = "ENTITY_ID_PLACEHOLDER"

const (
	// maxSchemaColumns bounds how many columns of a table the summary lists.
	maxSchemaColumns = 8

	// maxExemplars bounds how many intent exemplars one pattern contributes.
	maxExemplars = 2
)

// Builder renders planning prompts for one site configuration.
type Builder struct {
	cfg *site.Configuration
}

// NewBuilder returns a Builder for the configuration.
func NewBuilder(cfg *site.Configuration) (*Builder, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	return &Builder{cfg: cfg}, nil
}

// Build renders the prompt for the given query. Session data, when present,
// is appended as context lines.
func (b *Builder) Build(query string, session map[string]any) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "You are a navigation planner for a %s application.\n\n", b.cfg.Domain)
	fmt.Fprintf(&sb, "User query: %q\n\n", query)

	b.writeSchema(&sb)
	b.writePatterns(&sb)
	b.writeSession(&sb, session)
	b.writeInstructions(&sb)

	return sb.String()
}

func (b *Builder) writeSchema(sb *strings.Builder) {
	if len(b.cfg.Schema.Tables) == 0 {
		return
	}
	sb.WriteString("Database tables:\n")
	names := make([]string, 0, len(b.cfg.Schema.Tables))
	for name := range b.cfg.Schema.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		table := b.cfg.Schema.Tables[name]
		cols := make([]string, 0, maxSchemaColumns)
		for i, c := range table.Columns {
			if i == maxSchemaColumns {
				break
			}
			cols = append(cols, c.Name)
		}
		fmt.Fprintf(sb, "- %s: %s\n", name, strings.Join(cols, ", "))
	}
	sb.WriteString("\n")
}

func (b *Builder) writePatterns(sb *strings.Builder) {
	// Every declared pattern is listed; the model is told resolved_route must
	// conform to one of them, so none may be withheld.
	sb.WriteString("Available route patterns:\n")
	for i, p := range b.cfg.RoutePatterns {
		fmt.Fprintf(sb, "%d. %s", i+1, p.Template)
		if p.Description != "" {
			fmt.Fprintf(sb, " - %s", p.Description)
		}
		sb.WriteString("\n")
		for j, exemplar := range p.IntentPatterns {
			if j == maxExemplars {
				break
			}
			fmt.Fprintf(sb, "   e.g. %q\n", exemplar)
		}
		b.writeParams(sb, p)
	}
	sb.WriteString("\n")
}

func (b *Builder) writeParams(sb *strings.Builder, p site.RoutePattern) {
	names := site.TemplateParams(p.Template)
	if len(names) == 0 {
		return
	}
	parts := make([]string, 0, len(names))
	for _, name := range names {
		spec, ok := p.Parameters[name]
		if !ok {
			continue
		}
		part := name + " (" + string(spec.Type)
		if len(spec.EnumValues) > 0 {
			part += ": " + strings.Join(spec.EnumValues, "|")
		}
		part += ")"
		parts = append(parts, part)
	}
	if len(parts) > 0 {
		fmt.Fprintf(sb, "   parameters: %s\n", strings.Join(parts, ", "))
	}
}

func (b *Builder) writeSession(sb *strings.Builder, session map[string]any) {
	if len(session) == 0 {
		return
	}
	sb.WriteString("Session context:\n")
	keys := make([]string, 0, len(session))
	for k := range session {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(sb, "- %s: %v\n", k, session[k])
	}
	sb.WriteString("\n")
}

func (b *Builder) writeInstructions(sb *strings.Builder) {
	sb.WriteString(`Respond with a single JSON object and nothing else. The object MUST have exactly these keys:
- "intent": {"action_type", "entities", "view_type", "confidence"}
- "entity_resolution": list of {"entity_name", "search_tables", "search_fields", "confidence"}
- "route_matching": {"matched_pattern", "resolved_route", "parameters", "confidence"}
- "overall_confidence": number in [0, 1]
- "reasoning": short explanation

Rules:
- "resolved_route" MUST conform to one of the route patterns listed above.
- Where a route segment needs a record identifier you cannot know, emit the literal token ` + EntityIDPlaceholder + ` in its place and list the entity under "entity_resolution".
- "action_type" is one of: navigate, query, create, edit, delete.
`)
}
