package records

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// InMemory is a Searcher backed by in-process tables. It serves tests and
// small deployments that load their dataset at startup. Safe for concurrent
// use.
type InMemory struct {
	mu     sync.RWMutex
	tables map[string][]map[string]any
}

// NewInMemory returns an empty in-memory searcher.
func NewInMemory() *InMemory {
	return &InMemory{tables: make(map[string][]map[string]any)}
}

// Load replaces the rows of the given table. Rows are copied so callers may
// reuse their maps.
func (m *InMemory) Load(table string, rows []map[string]any) {
	cp := make([]map[string]any, len(rows))
	for i, row := range rows {
		vals := make(map[string]any, len(row))
		for k, v := range row {
			vals[k] = v
		}
		cp[i] = vals
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[table] = cp
}

// Search implements Searcher. Matching is case-insensitive substring over the
// requested fields; a row whose first requested field equals the query ranks
// ahead of substring matches. Fields a row does not have are skipped. A table
// that was never loaded is an error.
func (m *InMemory) Search(ctx context.Context, query string, tables, fields []string, limit int) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var exact, partial []Row
	for _, table := range tables {
		rows, ok := m.tables[table]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTable, table)
		}
		for _, vals := range rows {
			matched, isExact := matchRow(vals, fields, needle)
			if !matched {
				continue
			}
			row := Row{Table: table, Values: vals}.Clone()
			if isExact {
				exact = append(exact, row)
			} else {
				partial = append(partial, row)
			}
		}
	}

	out := append(exact, partial...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// matchRow reports whether any requested field contains the needle, and
// whether the first requested field equals it.
func matchRow(vals map[string]any, fields []string, needle string) (matched, isExact bool) {
	for i, field := range fields {
		v, ok := vals[field]
		if !ok || v == nil {
			continue
		}
		s := strings.ToLower(stringify(v))
		if i == 0 && s == needle {
			return true, true
		}
		if strings.Contains(s, needle) {
			matched = true
		}
	}
	return matched, false
}
