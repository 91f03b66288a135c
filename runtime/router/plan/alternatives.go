package plan

import (
	"sort"
	"strings"

	"github.com/wayfind-labs/wayfind/runtime/router/site"
)

// Alternatives synthesizes up to max shallow alternative plans by varying
// the route-pattern selection: remaining patterns are ranked by keyword
// overlap with the query, filled from the primary plan's entities and the
// patterns' example values, and kept only when the filled route is valid.
// The model is never consulted again.
func (p *Planner) Alternatives(query string, primary ActionPlan, max int) []Alternative {
	if max <= 0 {
		return nil
	}
	queryTokens := tokenSet(query)

	type scored struct {
		pattern site.RoutePattern
		score   int
	}
	ranked := make([]scored, 0, len(p.cfg.RoutePatterns))
	for _, rp := range p.cfg.RoutePatterns {
		if rp.Template == primary.MatchedPattern {
			continue
		}
		ranked = append(ranked, scored{pattern: rp, score: overlap(queryTokens, rp)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	out := make([]Alternative, 0, max)
	for _, c := range ranked {
		if len(out) == max {
			break
		}
		route := fillPattern(c.pattern, primary.Entities)
		if route == "" || route == primary.Route || !p.validator.Valid(route) {
			continue
		}
		out = append(out, Alternative{
			ActionKind:     primary.ActionKind,
			Route:          route,
			Confidence:     clamp01(primary.Confidence*0.8 - 0.05*float64(len(out))),
			Entities:       primary.Entities,
			MatchedPattern: c.pattern.Template,
			Reasoning:      "alternative via the " + c.pattern.Name + " pattern",
		})
	}
	return out
}

// overlap counts query tokens appearing in the pattern's name, description,
// or intent exemplars.
func overlap(queryTokens map[string]bool, rp site.RoutePattern) int {
	text := strings.ToLower(rp.Name + " " + rp.Description + " " + strings.Join(rp.IntentPatterns, " "))
	patternTokens := tokenSet(text)
	n := 0
	for t := range queryTokens {
		if patternTokens[t] {
			n++
		}
	}
	return n
}

func tokenSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, t := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if len(t) > 2 {
			out[t] = true
		}
	}
	return out
}

// fillPattern substitutes every template slot from the resolved entities and
// the pattern's example values. Returns "" when a slot cannot be filled.
func fillPattern(rp site.RoutePattern, entities []EntityMatch) string {
	route := rp.Template
	for _, name := range site.TemplateParams(rp.Template) {
		value := ""
		switch name {
		case "entity_type":
			if len(entities) > 0 {
				value = entities[0].EntityType
			}
		case "entity_id":
			if len(entities) > 0 {
				value = entities[0].ID
			}
		}
		if value == "" {
			if spec, ok := rp.Parameters[name]; ok && len(spec.Examples) > 0 {
				value = spec.Examples[0]
			}
		}
		if value == "" {
			return ""
		}
		route = strings.ReplaceAll(route, "{"+name+"}", value)
	}
	return route
}
