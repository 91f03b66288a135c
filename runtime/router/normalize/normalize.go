// Package normalize canonicalizes query surface forms before cache lookup
// and structural templating. The transform is deterministic and idempotent:
// normalizing an already-normalized query is a no-op.
package normalize

import (
	"regexp"
	"strings"
)

// fillerPrefixes are leading verbs stripped from queries. Longer phrases come
// first so "show me" wins over "show".
var fillerPrefixes = []string{
	"show me", "give me", "bring up", "look up", "search for",
	"show", "get", "find", "display", "view", "see",
}

// possessiveRE collapses bare possessives: "michaels properties" becomes
// "michael's properties".
var possessiveRE = regexp.MustCompile(`(\w+)s +(\w+)`)

// synonyms map interchangeable words to one canonical form.
var synonyms = []struct {
	re        *regexp.Regexp
	canonical string
}{
	{regexp.MustCompile(`\b(earnings|salary)\b`), "income"},
	{regexp.MustCompile(`\b(info|information)\b`), "contact"},
}

// Query returns the canonical form of q. The transform runs to a fixpoint so
// Query(Query(q)) == Query(q) holds for every input.
func Query(q string) string {
	prev := q
	// Each pass shortens or stabilizes the string; the bound guards against
	// a pathological non-converging input.
	for i := 0; i < len(q)+1; i++ {
		next := pass(prev)
		if next == prev {
			return next
		}
		prev = next
	}
	return prev
}

func pass(q string) string {
	q = strings.ToLower(strings.TrimSpace(q))
	q = stripFiller(q)
	// The rule infers a missing apostrophe; a query that already spells a
	// possessive is left alone so "james smith's" is not mangled.
	if !strings.Contains(q, "'s") {
		q = possessiveRE.ReplaceAllString(q, "$1's $2")
	}
	for _, s := range synonyms {
		q = s.re.ReplaceAllString(q, s.canonical)
	}
	return strings.TrimSpace(q)
}

// stripFiller removes one leading filler verb when followed by whitespace.
func stripFiller(q string) string {
	for _, prefix := range fillerPrefixes {
		rest, ok := strings.CutPrefix(q, prefix)
		if !ok {
			continue
		}
		trimmed := strings.TrimLeft(rest, " \t")
		if trimmed == rest {
			// Not a standalone word ("showing", "getaway").
			continue
		}
		return trimmed
	}
	return q
}
