// Package resolve turns entity mentions from a prediction into concrete
// records. A resolver runs a fixed ladder of search strategies against the
// record searcher, stopping early once a high-confidence match is in hand,
// then deduplicates and ranks the candidates.
package resolve

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/wayfind-labs/wayfind/runtime/router/records"
	"github.com/wayfind-labs/wayfind/runtime/router/telemetry"
)

type (
	// Match is one resolved entity candidate.
	Match struct {
		// Table is the table the candidate came from.
		Table string

		// ID is the candidate's record identifier.
		ID string

		// Name is the candidate's display value.
		Name string

		// EntityType is the domain type derived from the table name.
		EntityType string

		// Confidence scores how well the candidate matches the mention.
		Confidence float64

		// MatchedFields lists the fields whose values matched the mention.
		MatchedFields []string

		// Row carries the raw record values.
		Row map[string]any

		// Strategy names the strategy that produced the candidate.
		Strategy string
	}

	// Strategy is one way of searching for an entity mention.
	Strategy interface {
		// Name identifies the strategy in logs.
		Name() string

		// Resolve returns candidates for the mention, or an error. Errors are
		// logged and swallowed by the resolver so one failing strategy never
		// sinks the lookup.
		Resolve(ctx context.Context, mention string, tables, fields []string, limit int) ([]Match, error)
	}

	// Options configures a Resolver.
	Options struct {
		// Searcher is the record search backend. Required.
		Searcher records.Searcher

		// DisplayField names the column used for candidate display values.
		// Defaults to "name".
		DisplayField string

		// Timeout bounds one Resolve call. Defaults to 30 seconds.
		Timeout time.Duration

		// Logger receives strategy failures. Defaults to a no-op logger.
		Logger telemetry.Logger

		// Strategies overrides the default ladder. Mainly for tests.
		Strategies []Strategy
	}

	// Resolver runs the strategy ladder.
	Resolver struct {
		strategies []Strategy
		timeout    time.Duration
		logger     telemetry.Logger
	}
)

// earlyStopConfidence ends the ladder once any candidate exceeds it.
const earlyStopConfidence = 0.8

// New builds a Resolver. The default ladder is exact, fuzzy, semantic,
// full-text, in that order.
func New(opts Options) (*Resolver, error) {
	if opts.Searcher == nil && opts.Strategies == nil {
		return nil, errors.New("searcher is required")
	}
	display := opts.DisplayField
	if display == "" {
		display = "name"
	}
	strategies := opts.Strategies
	if strategies == nil {
		strategies = []Strategy{
			exactStrategy{searcher: opts.Searcher, display: display},
			fuzzyStrategy{searcher: opts.Searcher, display: display},
			semanticStrategy{},
			fullTextStrategy{searcher: opts.Searcher, display: display},
		}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NoopLogger{}
	}
	return &Resolver{strategies: strategies, timeout: timeout, logger: logger}, nil
}

// Resolve looks up the mention in the given tables and fields. Candidates are
// deduplicated by (table, id) keeping the highest confidence, sorted by
// confidence descending, and truncated to maxResults. A strategy error is
// logged and the ladder continues; Resolve itself only fails on context
// expiry.
func (r *Resolver) Resolve(ctx context.Context, mention string, tables, fields []string, maxResults int) ([]Match, error) {
	mention = strings.TrimSpace(mention)
	if mention == "" || len(tables) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var collected []Match
	for _, s := range r.strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		found, err := s.Resolve(ctx, mention, tables, fields, maxResults)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return nil, err
			}
			r.logger.Warn(ctx, "entity strategy failed",
				"strategy", s.Name(), "mention", mention, "error", err.Error())
			continue
		}
		collected = append(collected, found...)
		if bestConfidence(collected) > earlyStopConfidence {
			break
		}
	}

	deduped := dedupe(collected)
	sort.SliceStable(deduped, func(i, j int) bool {
		return deduped[i].Confidence > deduped[j].Confidence
	})
	if maxResults > 0 && len(deduped) > maxResults {
		deduped = deduped[:maxResults]
	}
	return deduped, nil
}

func bestConfidence(matches []Match) float64 {
	best := 0.0
	for _, m := range matches {
		if m.Confidence > best {
			best = m.Confidence
		}
	}
	return best
}

// dedupe keeps the highest-confidence candidate per (table, id), preserving
// first-seen order otherwise.
func dedupe(matches []Match) []Match {
	type key struct{ table, id string }
	index := make(map[key]int, len(matches))
	out := make([]Match, 0, len(matches))
	for _, m := range matches {
		k := key{m.Table, m.ID}
		if i, ok := index[k]; ok {
			if m.Confidence > out[i].Confidence {
				out[i] = m
			}
			continue
		}
		index[k] = len(out)
		out = append(out, m)
	}
	return out
}

// EntityTypeForTable maps a table name to the domain entity type used in
// routes.
func EntityTypeForTable(table string) string {
	t := strings.ToLower(table)
	switch {
	case t == "users":
		return "person"
	case strings.Contains(t, "landlord"):
		return "landlord"
	case strings.Contains(t, "propert"), strings.Contains(t, "building"):
		return "property"
	case strings.Contains(t, "tenant"):
		return "tenant"
	}
	return strings.TrimSuffix(t, "s")
}
