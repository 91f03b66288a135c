// Package site holds the declarative configuration the router plans against:
// entity definitions, route patterns with typed parameters, and a structural
// description of the backing store. A Configuration is loaded once at startup,
// validated, and never mutated afterwards; concurrent readers need no locking.
package site

import (
	"regexp"
)

// ParameterType enumerates the closed set of route parameter types. Unknown
// wire values are coerced to ParameterString for forward compatibility.
type ParameterType string

const (
	ParameterString  ParameterType = "string"
	ParameterInteger ParameterType = "integer"
	ParameterUUID    ParameterType = "uuid"
	ParameterSlug    ParameterType = "slug"
	ParameterEnum    ParameterType = "enum"
)

// CoerceParameterType maps a wire value to a ParameterType, defaulting to
// ParameterString when the value is not one of the closed variants.
func CoerceParameterType(s string) ParameterType {
	switch ParameterType(s) {
	case ParameterString, ParameterInteger, ParameterUUID, ParameterSlug, ParameterEnum:
		return ParameterType(s)
	default:
		return ParameterString
	}
}

type (
	// ParameterSpec describes one route parameter: its type, whether it is
	// required, the allowed values for enum parameters, and example values
	// injected into the prompt.
	ParameterSpec struct {
		// Type is the parameter type. Enum parameters must also set EnumValues.
		Type ParameterType `yaml:"type"`

		// Description is a human-readable description injected into the prompt.
		Description string `yaml:"description"`

		// Examples lists example values used for prompt injection and as static
		// defaults during route repair.
		Examples []string `yaml:"examples"`

		// EnumValues lists the allowed values when Type is ParameterEnum.
		EnumValues []string `yaml:"enum_values"`

		// Required reports whether the parameter must be filled. Nil means
		// required; use IsRequired.
		Required *bool `yaml:"required"`
	}

	// RoutePattern declares one URL shape the planner may emit. Every {name}
	// segment of Template must be a key of Parameters.
	RoutePattern struct {
		// Template is the URL pattern, e.g. "/{entity_type}/{entity_id}/{view_type}".
		Template string `yaml:"pattern"`

		// Name uniquely identifies the pattern within the configuration.
		Name string `yaml:"name"`

		// Description documents what the route does; injected into the prompt.
		Description string `yaml:"description"`

		// IntentPatterns are natural-language exemplars that teach the model the
		// shape of queries this pattern serves.
		IntentPatterns []string `yaml:"intent_patterns"`

		// Parameters maps each {name} segment of Template to its spec.
		Parameters map[string]ParameterSpec `yaml:"parameters"`

		// QueryParams describes optional query-string parameters.
		QueryParams map[string]ParameterSpec `yaml:"query_params"`

		// RequiredRoles restricts access to callers holding one of the listed
		// roles. Empty means unrestricted.
		RequiredRoles []string `yaml:"required_roles"`
	}

	// EntityDefinition describes one logical entity backed by a table.
	EntityDefinition struct {
		// Name is the entity name, e.g. "person" or "landlord".
		Name string `yaml:"name"`

		// Table is the primary backing table.
		Table string `yaml:"table"`

		// Description documents what the entity represents.
		Description string `yaml:"description"`

		// SearchFields lists the columns searched when resolving this entity.
		SearchFields []string `yaml:"search_fields"`

		// DisplayField is the column used for display names.
		DisplayField string `yaml:"display_field"`

		// UniqueIdentifier is the primary key column.
		UniqueIdentifier string `yaml:"unique_identifier"`

		// RelatedEntities maps related entity names to a relationship label.
		RelatedEntities map[string]string `yaml:"related_entities"`

		// Aliases lists alternative surface forms for this entity.
		Aliases []string `yaml:"aliases"`
	}

	// ColumnSpec describes one column of a table.
	ColumnSpec struct {
		Name        string `yaml:"name"`
		Type        string `yaml:"type"`
		Nullable    bool   `yaml:"nullable"`
		Description string `yaml:"description"`
	}

	// TableSpec describes one table of the backing store.
	TableSpec struct {
		Name        string       `yaml:"name"`
		Columns     []ColumnSpec `yaml:"columns"`
		Description string       `yaml:"description"`
		PrimaryKey  string       `yaml:"primary_key"`
	}

	// SchemaSpec is the structural description of the backing store. The
	// Relationships map expresses foreign keys as "tableA.col" -> "tableB.col".
	SchemaSpec struct {
		Tables        map[string]TableSpec `yaml:"tables"`
		Relationships map[string]string    `yaml:"relationships"`
	}

	// Configuration aggregates the full declarative site description. Load it
	// once via Load or LoadFile and treat it as immutable.
	Configuration struct {
		// Domain labels the application domain, e.g. "property_management".
		Domain string `yaml:"domain"`

		// BaseURL is the application base URL.
		BaseURL string `yaml:"base_url"`

		// Entities maps entity names to their definitions.
		Entities map[string]EntityDefinition `yaml:"entities"`

		// RoutePatterns lists the URL shapes the planner may emit.
		RoutePatterns []RoutePattern `yaml:"route_patterns"`

		// Schema describes the backing store.
		Schema SchemaSpec `yaml:"database_schema"`

		// SemanticMappings maps a canonical word to the surface forms it
		// subsumes, e.g. "income" -> [earnings, salary].
		SemanticMappings map[string][]string `yaml:"semantic_mappings"`

		// DefaultActions lists common actions for the domain.
		DefaultActions []string `yaml:"default_actions"`

		// RestrictedColumns lists "table.column" entries that must be neither
		// searched nor returned by the record searcher.
		RestrictedColumns []string `yaml:"restricted_columns"`
	}
)

// IsRequired reports whether the parameter must be filled. Parameters are
// required unless the configuration says otherwise.
func (s ParameterSpec) IsRequired() bool {
	return s.Required == nil || *s.Required
}

var templateParamRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// TemplateParams returns the parameter names referenced by a route template,
// in order of appearance.
func TemplateParams(template string) []string {
	var names []string
	for _, m := range templateParamRe.FindAllStringSubmatch(template, -1) {
		names = append(names, m[1])
	}
	return names
}

// Pattern returns the route pattern with the given name, or nil.
func (c *Configuration) Pattern(name string) *RoutePattern {
	for i := range c.RoutePatterns {
		if c.RoutePatterns[i].Name == name {
			return &c.RoutePatterns[i]
		}
	}
	return nil
}

// EntityForTable returns the entity definition whose primary table is the
// given table, or nil.
func (c *Configuration) EntityForTable(table string) *EntityDefinition {
	for name := range c.Entities {
		def := c.Entities[name]
		if def.Table == table {
			return &def
		}
	}
	return nil
}
