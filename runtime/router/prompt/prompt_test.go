package prompt

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wayfind-labs/wayfind/runtime/router/site"
)

func testConfig() *site.Configuration {
	cols := func(names ...string) []site.ColumnSpec {
		out := make([]site.ColumnSpec, len(names))
		for i, n := range names {
			out[i] = site.ColumnSpec{Name: n, Type: "text"}
		}
		return out
	}
	return &site.Configuration{
		Domain: "property_management",
		Schema: site.SchemaSpec{Tables: map[string]site.TableSpec{
			"users": {Name: "users", Columns: cols("id", "name", "email")},
			"landlords": {Name: "landlords", Columns: cols(
				"id", "name", "email", "phone", "address", "city", "postcode", "country", "tax_id", "notes",
			)},
		}},
		RoutePatterns: []site.RoutePattern{
			{
				Name:           "entity_detail_view",
				Template:       "/{entity_type}/{entity_id}/{view_type}",
				Description:    "Detail view of one entity",
				IntentPatterns: []string{"show me X's income", "view X's contact details", "open X's ledger"},
				Parameters: map[string]site.ParameterSpec{
					"entity_type": {Type: site.ParameterString},
					"entity_id":   {Type: site.ParameterString},
					"view_type":   {Type: site.ParameterEnum, EnumValues: []string{"overview", "financials"}},
				},
			},
			{Name: "property_create", Template: "/properties/create", Description: "Create a property"},
		},
	}
}

func newBuilder(t *testing.T) *Builder {
	t.Helper()
	b, err := NewBuilder(testConfig())
	require.NoError(t, err)
	return b
}

func TestBuildCarriesQueryVerbatim(t *testing.T) {
	b := newBuilder(t)
	p := b.Build("show me James Smith's monthly income", nil)
	require.Contains(t, p, `"show me James Smith's monthly income"`)
	require.Contains(t, p, "property_management")
}

func TestBuildListsPatternsAndExemplars(t *testing.T) {
	b := newBuilder(t)
	p := b.Build("q", nil)
	require.Contains(t, p, "/{entity_type}/{entity_id}/{view_type}")
	require.Contains(t, p, "/properties/create")
	require.Contains(t, p, `e.g. "show me X's income"`)
	require.Contains(t, p, `e.g. "view X's contact details"`)
	// Exemplars are capped at two per pattern.
	require.NotContains(t, p, "open X's ledger")
	require.Contains(t, p, "view_type (enum: overview|financials)")
}

func TestBuildTruncatesSchemaColumns(t *testing.T) {
	b := newBuilder(t)
	p := b.Build("q", nil)
	require.Contains(t, p, "- users: id, name, email\n")
	require.Contains(t, p, "- landlords: id, name, email, phone, address, city, postcode, country\n")
	require.NotContains(t, p, "tax_id")
}

func TestBuildListsEveryPattern(t *testing.T) {
	cfg := testConfig()
	for i := 0; i < 7; i++ {
		cfg.RoutePatterns = append(cfg.RoutePatterns, site.RoutePattern{
			Name:     fmt.Sprintf("extra_%d", i),
			Template: fmt.Sprintf("/extra/%d", i),
		})
	}
	b, err := NewBuilder(cfg)
	require.NoError(t, err)
	p := b.Build("q", nil)
	for i := 0; i < 7; i++ {
		require.Contains(t, p, fmt.Sprintf("/extra/%d", i))
	}
	require.Contains(t, p, fmt.Sprintf("%d. /extra/6", len(cfg.RoutePatterns)))
}

func TestBuildMentionsPlaceholder(t *testing.T) {
	b := newBuilder(t)
	require.Contains(t, b.Build("q", nil), EntityIDPlaceholder)
}

func TestBuildIncludesSessionContext(t *testing.T) {
	b := newBuilder(t)
	p := b.Build("q", map[string]any{"current_page": "/dashboard", "locale": "en-GB"})
	require.Contains(t, p, "- current_page: /dashboard")
	require.Contains(t, p, "- locale: en-GB")
}

func TestBuildDeterministic(t *testing.T) {
	b := newBuilder(t)
	session := map[string]any{"b": 2, "a": 1, "c": 3}
	first := b.Build("same query", session)
	for i := 0; i < 5; i++ {
		require.Equal(t, first, b.Build("same query", session))
	}
	require.True(t, strings.Contains(first, "- a: 1\n- b: 2\n- c: 3"))
}
