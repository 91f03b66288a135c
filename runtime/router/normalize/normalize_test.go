package normalize

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func TestQueryLowercasesAndTrims(t *testing.T) {
	require.Equal(t, "james smith", Query("  James SMITH  "))
}

func TestQueryStripsFillerVerbs(t *testing.T) {
	cases := map[string]string{
		"show me the tenants":      "the tenants",
		"Show Michael's flats":     "michael's flats",
		"look up sarah":            "sarah",
		"search for james":         "james",
		"give me everything":       "everything",
		"bring up the ledger":      "the ledger",
		"showing off":              "showing off",
		"getaway weekend bookings": "getaway weekend bookings",
	}
	for in, want := range cases {
		require.Equal(t, want, Query(in), "input %q", in)
	}
}

func TestQueryCollapsesPossessives(t *testing.T) {
	require.Equal(t, "michael's properties", Query("michaels properties"))
	require.Equal(t, "sarah's properties", Query("show me Sarahs properties"))
}

func TestQueryKeepsExplicitPossessives(t *testing.T) {
	// A spelled-out possessive is left alone; in particular a preceding word
	// ending in s ("james") must not grow an apostrophe.
	require.Equal(t, "james smith's income", Query("show me James Smith's income"))
	require.Equal(t, "james smith's properties", Query("james smith's properties"))
}

func TestQueryCanonicalizesSynonyms(t *testing.T) {
	require.Equal(t, "monthly income", Query("monthly earnings"))
	require.Equal(t, "monthly income", Query("monthly salary"))
	require.Equal(t, "contact for sarah", Query("info for sarah"))
	require.Equal(t, "contact for sarah", Query("information for sarah"))
}

func TestQueryEmptyAndWhitespace(t *testing.T) {
	require.Equal(t, "", Query(""))
	require.Equal(t, "", Query("   \t "))
}

func TestQueryIdempotenceProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)
	properties.Property("normalize is idempotent", prop.ForAll(
		func(q string) bool {
			once := Query(q)
			return Query(once) == once
		},
		gen.AnyString(),
	))
	properties.Property("normalize of filler-prefixed queries is idempotent", prop.ForAll(
		func(prefix, rest string) bool {
			once := Query(prefix + " " + rest)
			return Query(once) == once
		},
		gen.OneConstOf("show me", "show", "get", "find", "look up", "search for", "display", "view", "see", "give me", "bring up"),
		gen.RegexMatch(`[A-Za-z0-9' ]{0,40}`),
	))
	properties.TestingRun(t)
}
