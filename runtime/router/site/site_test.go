package site

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const validYAML = `
domain: property_management
base_url: https://myapp.com
entities:
  person:
    table: users
    description: People in the system
    search_fields: [name, email]
    display_field: name
    unique_identifier: id
route_patterns:
  - pattern: /{entity_type}/{entity_id}/{view_type}
    name: entity_detail_view
    description: View specific details for an entity instance
    intent_patterns:
      - "show {entity} {view_data}"
    parameters:
      entity_type:
        type: string
      entity_id:
        type: string
      view_type:
        type: string
database_schema:
  tables:
    users:
      description: All users in the system
      columns:
        - {name: id, type: uuid}
        - {name: name, type: varchar}
        - {name: email, type: varchar}
`

func TestLoadValidConfiguration(t *testing.T) {
	cfg, err := Load([]byte(validYAML))
	require.NoError(t, err)
	require.Equal(t, "property_management", cfg.Domain)
	require.Len(t, cfg.RoutePatterns, 1)
	require.Equal(t, "users", cfg.Entities["person"].Table)
	require.Equal(t, "person", cfg.Entities["person"].Name)
	require.Equal(t, "id", cfg.Schema.Tables["users"].PrimaryKey)
	require.True(t, cfg.RoutePatterns[0].Parameters["entity_id"].IsRequired())
}

func TestTemplateParams(t *testing.T) {
	require.Equal(t, []string{"entity_type", "entity_id", "view_type"},
		TemplateParams("/{entity_type}/{entity_id}/{view_type}"))
	require.Empty(t, TemplateParams("/properties/create"))
}

func TestValidateUnknownTemplateParameter(t *testing.T) {
	cfg, err := Load([]byte(validYAML))
	require.NoError(t, err)
	cfg.RoutePatterns[0].Template = "/{entity_type}/{missing}"
	err = cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), `unknown parameter "missing"`)
}

func TestValidateDuplicatePatternName(t *testing.T) {
	cfg, err := Load([]byte(validYAML))
	require.NoError(t, err)
	cfg.RoutePatterns = append(cfg.RoutePatterns, cfg.RoutePatterns[0])
	err = cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate pattern name")
}

func TestValidateEnumWithoutValues(t *testing.T) {
	cfg, err := Load([]byte(validYAML))
	require.NoError(t, err)
	cfg.RoutePatterns[0].Parameters["view_type"] = ParameterSpec{Type: ParameterEnum}
	err = cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "no enum_values")
}

func TestValidateUnknownEntityTable(t *testing.T) {
	cfg, err := Load([]byte(validYAML))
	require.NoError(t, err)
	def := cfg.Entities["person"]
	def.Table = "ghosts"
	cfg.Entities["person"] = def
	err = cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), `unknown table "ghosts"`)
}

func TestValidateRestrictedIdentifier(t *testing.T) {
	cfg, err := Load([]byte(validYAML))
	require.NoError(t, err)
	cfg.RestrictedColumns = []string{"users.id"}
	err = cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "cannot be restricted")
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("WAYFIND_TEST_DOMAIN", "rentals")
	require.Equal(t, "rentals", ExpandEnv("${WAYFIND_TEST_DOMAIN}"))
	require.Equal(t, "fallback", ExpandEnv("${WAYFIND_TEST_UNSET:-fallback}"))
	require.Equal(t, "", ExpandEnv("${WAYFIND_TEST_UNSET}"))
	t.Setenv("WAYFIND_TEST_EMPTY", "")
	require.Equal(t, "", ExpandEnv("${WAYFIND_TEST_EMPTY:-fallback}"))
}

func TestCoerceParameterType(t *testing.T) {
	require.Equal(t, ParameterUUID, CoerceParameterType("uuid"))
	require.Equal(t, ParameterString, CoerceParameterType("tuple"))
}
