package site

import (
	"fmt"
	"strings"
)

// ConfigError reports a configuration invariant violation detected at load
// time. Processes should treat it as fatal.
type ConfigError struct {
	// Section names the offending part of the configuration, e.g.
	// `route_patterns["entity_detail_view"]`.
	Section string
	// Reason describes the violation.
	Reason string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("site config: %s: %s", e.Section, e.Reason)
}

func configErrorf(section, format string, args ...any) *ConfigError {
	return &ConfigError{Section: section, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks the configuration invariants. It returns the first
// violation found:
//
//   - every {name} segment of a route template has a parameter spec,
//   - pattern names are unique,
//   - enum parameters declare their value set,
//   - entity definitions reference known tables,
//   - restricted columns do not hide a primary key or an entity's unique
//     identifier.
func (c *Configuration) Validate() error {
	if c.Domain == "" {
		return configErrorf("domain", "must not be empty")
	}
	if len(c.RoutePatterns) == 0 {
		return configErrorf("route_patterns", "at least one route pattern is required")
	}

	seen := make(map[string]bool, len(c.RoutePatterns))
	for i := range c.RoutePatterns {
		p := &c.RoutePatterns[i]
		section := fmt.Sprintf("route_patterns[%q]", p.Name)
		if p.Name == "" {
			return configErrorf(fmt.Sprintf("route_patterns[%d]", i), "pattern name must not be empty")
		}
		if seen[p.Name] {
			return configErrorf(section, "duplicate pattern name")
		}
		seen[p.Name] = true
		if !strings.HasPrefix(p.Template, "/") {
			return configErrorf(section, "template %q must start with /", p.Template)
		}
		for _, name := range TemplateParams(p.Template) {
			if _, ok := p.Parameters[name]; !ok {
				return configErrorf(section, "template references unknown parameter %q", name)
			}
		}
		for name, spec := range p.Parameters {
			if spec.Type == ParameterEnum && len(spec.EnumValues) == 0 {
				return configErrorf(section, "enum parameter %q has no enum_values", name)
			}
		}
	}

	for name, def := range c.Entities {
		section := fmt.Sprintf("entities[%q]", name)
		if def.Table == "" {
			return configErrorf(section, "table must not be empty")
		}
		if len(c.Schema.Tables) > 0 {
			if _, ok := c.Schema.Tables[def.Table]; !ok {
				return configErrorf(section, "unknown table %q", def.Table)
			}
		}
	}

	restricted := make(map[string]bool, len(c.RestrictedColumns))
	for _, rc := range c.RestrictedColumns {
		if !strings.Contains(rc, ".") {
			return configErrorf("restricted_columns", "entry %q must be of the form table.column", rc)
		}
		restricted[rc] = true
	}
	for table, spec := range c.Schema.Tables {
		if spec.PrimaryKey != "" && restricted[table+"."+spec.PrimaryKey] {
			return configErrorf("restricted_columns", "primary key %s.%s cannot be restricted", table, spec.PrimaryKey)
		}
	}
	for name, def := range c.Entities {
		if def.UniqueIdentifier != "" && restricted[def.Table+"."+def.UniqueIdentifier] {
			return configErrorf(fmt.Sprintf("entities[%q]", name),
				"unique identifier %s.%s cannot be restricted", def.Table, def.UniqueIdentifier)
		}
	}
	return nil
}
