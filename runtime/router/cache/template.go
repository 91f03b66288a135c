package cache

import (
	"fmt"
	"regexp"
	"strings"
)

// Typed placeholder patterns, applied in priority order: capitalized
// possessives first, then bare capitalized sequences, then numbers. Plain
// lowercase words stay literal so structurally different queries keep
// distinct keys.
var (
	possessiveRE = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*'s\b`)
	capitalRE    = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\b`)
	numberRE     = regexp.MustCompile(`\b\d+(?:\.\d+)?\b`)

	placeholderRE = regexp.MustCompile(`\{[A-Z_]+_\d+\}`)
	anySlotRE     = regexp.MustCompile(`\{[^}]+\}`)
)

// Templated is a query reduced to its structural shape: entity-like tokens
// replaced by typed placeholders, literal words lowercased.
type Templated struct {
	// Query is the templated query, e.g. "show me {PERSON_0} properties".
	Query string

	// Values maps each placeholder to the surface value it replaced,
	// possessive suffixes stripped.
	Values map[string]string
}

// TemplateQuery derives the structural shape of a query. Two queries that
// differ only in entity mentions and numbers template to the same string.
func TemplateQuery(query string) Templated {
	values := make(map[string]string)
	person := 0
	number := 0

	out := possessiveRE.ReplaceAllStringFunc(strings.TrimSpace(query), func(m string) string {
		ph := fmt.Sprintf("{PERSON_%d}", person)
		person++
		values[ph] = strings.TrimSuffix(m, "'s")
		return ph
	})
	out = capitalRE.ReplaceAllStringFunc(out, func(m string) string {
		ph := fmt.Sprintf("{PERSON_%d}", person)
		person++
		values[ph] = m
		return ph
	})
	out = numberRE.ReplaceAllStringFunc(out, func(m string) string {
		ph := fmt.Sprintf("{NUMBER_%d}", number)
		number++
		values[ph] = m
		return ph
	})

	return Templated{Query: lowerLiterals(out), Values: values}
}

// lowerLiterals lowercases everything outside placeholder tokens.
func lowerLiterals(s string) string {
	var b strings.Builder
	last := 0
	for _, loc := range placeholderRE.FindAllStringIndex(s, -1) {
		b.WriteString(strings.ToLower(s[last:loc[0]]))
		b.WriteString(s[loc[0]:loc[1]])
		last = loc[1]
	}
	b.WriteString(strings.ToLower(s[last:]))
	return b.String()
}

// HasPlaceholder reports whether s still carries an unresolved {…} slot of
// any kind.
func HasPlaceholder(s string) bool {
	return anySlotRE.MatchString(s)
}
