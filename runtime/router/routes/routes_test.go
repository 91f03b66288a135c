package routes

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wayfind-labs/wayfind/runtime/router/site"
)

func testConfig() *site.Configuration {
	return &site.Configuration{
		Domain: "property_management",
		RoutePatterns: []site.RoutePattern{
			{
				Name:     "entity_detail_view",
				Template: "/{entity_type}/{entity_id}/{view_type}",
				Parameters: map[string]site.ParameterSpec{
					"entity_type": {Type: site.ParameterString, Examples: []string{"landlords"}},
					"entity_id":   {Type: site.ParameterString, Examples: []string{"L-1"}},
					"view_type":   {Type: site.ParameterString, Examples: []string{"overview"}},
				},
			},
			{
				Name:     "entity_search",
				Template: "/{entity_type}/search",
				Parameters: map[string]site.ParameterSpec{
					"entity_type": {Type: site.ParameterString, Examples: []string{"landlords"}},
				},
			},
			{
				Name:     "property_create",
				Template: "/properties/create",
			},
		},
	}
}

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator(testConfig())
	require.NoError(t, err)
	return v
}

func TestValidRoutes(t *testing.T) {
	v := newValidator(t)
	require.True(t, v.Valid("/landlords/L-9/financials"))
	require.True(t, v.Valid("/tenants/search"))
	require.True(t, v.Valid("/properties/create"))
}

func TestInvalidRoutes(t *testing.T) {
	v := newValidator(t)
	require.False(t, v.Valid("/weird/path"))
	require.False(t, v.Valid("landlords/L-9/financials"))
	require.False(t, v.Valid("/landlords/L-9/financials/extra"))
	require.False(t, v.Valid("/landlords//financials"))
	require.False(t, v.Valid(""))
}

func TestMatchReturnsPattern(t *testing.T) {
	v := newValidator(t)
	p, ok := v.Match("/landlords/L-9/financials")
	require.True(t, ok)
	require.Equal(t, "entity_detail_view", p.Name)
}

func TestUnresolved(t *testing.T) {
	require.True(t, Unresolved("/landlords/{entity_id}/overview"))
	require.False(t, Unresolved("/landlords/L-9/overview"))
}

func TestRepairUsesEntityOverview(t *testing.T) {
	v := newValidator(t)
	r, err := v.Repair("/weird/path", []Entity{{Table: "landlords", ID: "L-9", Type: "landlords"}})
	require.NoError(t, err)
	require.Equal(t, "/landlords/L-9/overview", r.Route)
	require.Equal(t, "/{entity_type}/{entity_id}/{view_type}", r.Pattern)
	require.NotEmpty(t, r.Note)
}

func TestRepairFallsBackToSearchPattern(t *testing.T) {
	v := newValidator(t)
	r, err := v.Repair("/weird/path", nil)
	require.NoError(t, err)
	require.Equal(t, "/landlords/search", r.Route)
	require.Equal(t, "/{entity_type}/search", r.Pattern)
}

func TestRepairSearchUsesPrimaryEntityType(t *testing.T) {
	v := newValidator(t)
	r, err := v.Repair("/weird/path", []Entity{{Table: "tenants", ID: "", Type: "tenant"}})
	require.NoError(t, err)
	require.Equal(t, "/tenant/search", r.Route)
}

func TestRepairStaticDefaults(t *testing.T) {
	cfg := &site.Configuration{
		Domain: "d",
		RoutePatterns: []site.RoutePattern{
			{
				Name:     "detail",
				Template: "/{entity_type}/{entity_id}",
				Parameters: map[string]site.ParameterSpec{
					"entity_type": {Examples: []string{"landlords"}},
					"entity_id":   {Examples: []string{"L-1"}},
				},
			},
		},
	}
	v, err := NewValidator(cfg)
	require.NoError(t, err)

	r, err := v.Repair("/weird/path", nil)
	require.NoError(t, err)
	require.Equal(t, "/landlords/L-1", r.Route)
}

func TestRepairExhaustedFails(t *testing.T) {
	cfg := &site.Configuration{
		Domain: "d",
		RoutePatterns: []site.RoutePattern{
			// No examples, so the static fallback cannot fill the template.
			{Name: "detail", Template: "/{entity_type}/{entity_id}", Parameters: map[string]site.ParameterSpec{
				"entity_type": {},
				"entity_id":   {},
			}},
		},
	}
	v, err := NewValidator(cfg)
	require.NoError(t, err)

	_, err = v.Repair("/weird/path", nil)
	require.ErrorIs(t, err, ErrInvalidPlan)
}
