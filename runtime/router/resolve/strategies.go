package resolve

import (
	"context"
	"strings"

	"github.com/wayfind-labs/wayfind/runtime/router/records"
)

// strategyLimit bounds how many rows one strategy pulls from the searcher.
const strategyLimit = 10

// exactStrategy keeps only rows with a field equal to the mention.
type exactStrategy struct {
	searcher records.Searcher
	display  string
}

func (exactStrategy) Name() string { return "exact" }

func (s exactStrategy) Resolve(ctx context.Context, mention string, tables, fields []string, limit int) ([]Match, error) {
	rows, err := s.searcher.Search(ctx, mention, tables, fields, strategyLimit)
	if err != nil {
		return nil, err
	}
	var out []Match
	for _, row := range rows {
		if !fieldEquals(row, fields, mention) {
			continue
		}
		out = append(out, toMatch(row, s.display, 0.95, s.Name(), mention, fields))
	}
	return out, nil
}

// fuzzyStrategy probes relaxed variants of the mention: lowercased,
// whitespace-stripped, and the first token alone. Candidates are scored by
// how closely a field value resembles the original mention.
type fuzzyStrategy struct {
	searcher records.Searcher
	display  string
}

func (fuzzyStrategy) Name() string { return "fuzzy" }

func (s fuzzyStrategy) Resolve(ctx context.Context, mention string, tables, fields []string, limit int) ([]Match, error) {
	var out []Match
	for _, probe := range fuzzyProbes(mention) {
		rows, err := s.searcher.Search(ctx, probe, tables, fields, strategyLimit)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			conf := scoreRow(mention, row, fields)
			if conf < 0.6 {
				continue
			}
			out = append(out, toMatch(row, s.display, conf, s.Name(), mention, fields))
		}
	}
	return out, nil
}

// fuzzyProbes returns the relaxed query variants, deduplicated in order.
func fuzzyProbes(mention string) []string {
	lowered := strings.ToLower(strings.TrimSpace(mention))
	probes := []string{lowered, strings.Join(strings.Fields(lowered), "")}
	if first, _, ok := strings.Cut(lowered, " "); ok {
		probes = append(probes, first)
	}
	seen := make(map[string]bool, len(probes))
	out := probes[:0]
	for _, p := range probes {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// semanticStrategy is the embedding-based lookup slot. No embedding store is
// wired yet, so it resolves nothing.
type semanticStrategy struct{}

func (semanticStrategy) Name() string { return "semantic" }

func (semanticStrategy) Resolve(context.Context, string, []string, []string, int) ([]Match, error) {
	return nil, nil
}

// fullTextStrategy searches each mention token of more than two characters
// independently. Token hits are weaker evidence than fuzzy hits, so scores
// are scaled down.
type fullTextStrategy struct {
	searcher records.Searcher
	display  string
}

func (fullTextStrategy) Name() string { return "fulltext" }

func (s fullTextStrategy) Resolve(ctx context.Context, mention string, tables, fields []string, limit int) ([]Match, error) {
	var out []Match
	for _, token := range strings.Fields(strings.ToLower(mention)) {
		if len(token) <= 2 {
			continue
		}
		rows, err := s.searcher.Search(ctx, token, tables, fields, strategyLimit)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			conf := 0.7 * scoreRow(mention, row, fields)
			if conf <= 0 {
				continue
			}
			out = append(out, toMatch(row, s.display, conf, s.Name(), mention, fields))
		}
	}
	return out, nil
}

// scoreRow rates how well the row's fields match the mention: equality 0.95,
// substring containment either way 0.8, any shared token 0.6, otherwise 0.
// The best field wins.
func scoreRow(mention string, row records.Row, fields []string) float64 {
	q := strings.ToLower(strings.TrimSpace(mention))
	best := 0.0
	for _, field := range fields {
		v, ok := row.Values[field]
		if !ok || v == nil {
			continue
		}
		s := strings.ToLower(strings.TrimSpace(row.Display(field)))
		if s == "" {
			continue
		}
		var score float64
		switch {
		case s == q:
			score = 0.95
		case strings.Contains(s, q) || strings.Contains(q, s):
			score = 0.8
		case sharesToken(s, q):
			score = 0.6
		}
		if score > best {
			best = score
		}
	}
	return best
}

func sharesToken(a, b string) bool {
	tokens := make(map[string]bool)
	for _, t := range strings.Fields(a) {
		tokens[t] = true
	}
	for _, t := range strings.Fields(b) {
		if tokens[t] {
			return true
		}
	}
	return false
}

func fieldEquals(row records.Row, fields []string, mention string) bool {
	q := strings.ToLower(strings.TrimSpace(mention))
	for _, field := range fields {
		v, ok := row.Values[field]
		if !ok || v == nil {
			continue
		}
		if strings.ToLower(strings.TrimSpace(row.Display(field))) == q {
			return true
		}
	}
	return false
}

func toMatch(row records.Row, display string, conf float64, strategy, mention string, fields []string) Match {
	return Match{
		Table:         row.Table,
		ID:            row.ID(),
		Name:          row.Display(display),
		EntityType:    EntityTypeForTable(row.Table),
		Confidence:    conf,
		MatchedFields: matchedFields(mention, row, fields),
		Row:           row.Clone().Values,
		Strategy:      strategy,
	}
}

// matchedFields lists the searched fields whose values resemble the mention.
func matchedFields(mention string, row records.Row, fields []string) []string {
	q := strings.ToLower(strings.TrimSpace(mention))
	var out []string
	for _, field := range fields {
		v, ok := row.Values[field]
		if !ok || v == nil {
			continue
		}
		s := strings.ToLower(strings.TrimSpace(row.Display(field)))
		if s == "" {
			continue
		}
		if s == q || strings.Contains(s, q) || strings.Contains(q, s) || sharesToken(s, q) {
			out = append(out, field)
		}
	}
	return out
}
