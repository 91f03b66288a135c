// Package routes validates resolved routes against the configured route
// patterns and repairs routes the model hallucinated. Patterns are compiled
// once at construction; validation and repair are pure.
package routes

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/wayfind-labs/wayfind/runtime/router/site"
)

type (
	// Validator matches routes against the compiled route patterns and
	// repairs invalid ones.
	Validator struct {
		patterns []compiled
	}

	compiled struct {
		pattern site.RoutePattern
		re      *regexp.Regexp
	}

	// Repair describes a repaired route: the new route, the pattern it
	// conforms to, and a note for the plan's reasoning.
	Repair struct {
		Route   string
		Pattern string
		Note    string
	}

	// Entity is the slice of a resolved entity the repair ladder needs.
	Entity struct {
		Table string
		ID    string
		Type  string
	}
)

// ErrInvalidPlan is returned when a route is invalid and every repair
// fallback failed.
var ErrInvalidPlan = errors.New("invalid plan: route matches no pattern")

var paramRE = regexp.MustCompile(`\{[A-Za-z_][A-Za-z0-9_]*\}`)

// NewValidator compiles every pattern template. A template that fails to
// compile is a configuration error.
func NewValidator(cfg *site.Configuration) (*Validator, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	compiledPatterns := make([]compiled, 0, len(cfg.RoutePatterns))
	for _, p := range cfg.RoutePatterns {
		re, err := compileTemplate(p.Template)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p.Name, err)
		}
		compiledPatterns = append(compiledPatterns, compiled{pattern: p, re: re})
	}
	return &Validator{patterns: compiledPatterns}, nil
}

// compileTemplate turns a route template into an anchored regular expression
// where each {name} segment matches one path segment.
func compileTemplate(template string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	rest := template
	for {
		loc := paramRE.FindStringIndex(rest)
		if loc == nil {
			b.WriteString(regexp.QuoteMeta(rest))
			break
		}
		b.WriteString(regexp.QuoteMeta(rest[:loc[0]]))
		b.WriteString(`[^/]+`)
		rest = rest[loc[1]:]
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

// Valid reports whether the route starts with "/" and matches any pattern.
func (v *Validator) Valid(route string) bool {
	_, ok := v.Match(route)
	return ok
}

// Match returns the first pattern the route conforms to.
func (v *Validator) Match(route string) (site.RoutePattern, bool) {
	if !strings.HasPrefix(route, "/") {
		return site.RoutePattern{}, false
	}
	for _, c := range v.patterns {
		if c.re.MatchString(route) {
			return c.pattern, true
		}
	}
	return site.RoutePattern{}, false
}

// Unresolved reports whether the route still carries a {name} slot.
func Unresolved(route string) bool {
	return paramRE.MatchString(route)
}

// Repair attempts to replace an invalid route with a valid one. Fallbacks in
// order: the resolved entity's overview page, the first search pattern filled
// with the primary entity type, the first pattern filled with its example
// defaults. Returns ErrInvalidPlan when nothing produces a valid route.
func (v *Validator) Repair(invalid string, entities []Entity) (Repair, error) {
	if r, ok := v.entityOverview(entities); ok {
		return r, nil
	}
	if r, ok := v.searchFallback(entities); ok {
		return r, nil
	}
	if r, ok := v.staticFallback(); ok {
		return r, nil
	}
	return Repair{}, fmt.Errorf("%w: %q", ErrInvalidPlan, invalid)
}

func (v *Validator) entityOverview(entities []Entity) (Repair, bool) {
	for _, e := range entities {
		if e.Type == "" || e.ID == "" {
			continue
		}
		route := "/" + e.Type + "/" + e.ID + "/overview"
		if p, ok := v.Match(route); ok {
			return Repair{
				Route:   route,
				Pattern: p.Template,
				Note:    "route repaired to the resolved entity's overview",
			}, true
		}
	}
	return Repair{}, false
}

func (v *Validator) searchFallback(entities []Entity) (Repair, bool) {
	entityType := primaryEntityType(entities)
	for _, c := range v.patterns {
		if !strings.Contains(strings.ToLower(c.pattern.Name), "search") {
			continue
		}
		route := fillTemplate(c.pattern, entityType)
		if route == "" || !c.re.MatchString(route) {
			continue
		}
		return Repair{
			Route:   route,
			Pattern: c.pattern.Template,
			Note:    "route repaired to the search fallback",
		}, true
	}
	return Repair{}, false
}

func (v *Validator) staticFallback() (Repair, bool) {
	if len(v.patterns) == 0 {
		return Repair{}, false
	}
	c := v.patterns[0]
	route := fillTemplate(c.pattern, "")
	if route == "" || !c.re.MatchString(route) {
		return Repair{}, false
	}
	return Repair{
		Route:   route,
		Pattern: c.pattern.Template,
		Note:    "route repaired to the default pattern",
	}, true
}

func primaryEntityType(entities []Entity) string {
	for _, e := range entities {
		if e.Type != "" {
			return e.Type
		}
	}
	return ""
}

// fillTemplate substitutes every {name} slot: entity_type slots take the
// given entity type, everything else takes the first example declared for
// the parameter. An unfillable slot aborts the fill.
func fillTemplate(p site.RoutePattern, entityType string) string {
	route := p.Template
	for _, name := range site.TemplateParams(p.Template) {
		var value string
		if name == "entity_type" && entityType != "" {
			value = entityType
		} else if spec, ok := p.Parameters[name]; ok && len(spec.Examples) > 0 {
			value = spec.Examples[0]
		}
		if value == "" {
			return ""
		}
		route = strings.ReplaceAll(route, "{"+name+"}", value)
	}
	return route
}
