package records

import (
	"context"
	"fmt"
	"strings"
)

// Restricted wraps a Searcher with a column deny list. Restricted columns are
// removed from the search fields before the wrapped searcher runs and are
// scrubbed from returned rows, so sensitive values neither influence matching
// nor leak to callers.
type Restricted struct {
	next    Searcher
	byTable map[string]map[string]bool
}

// NewRestricted builds the policy wrapper. Entries use the "table.column"
// form; a malformed entry is an error.
func NewRestricted(next Searcher, restricted []string) (*Restricted, error) {
	if next == nil {
		return nil, fmt.Errorf("next searcher is required")
	}
	byTable := make(map[string]map[string]bool)
	for _, entry := range restricted {
		table, column, ok := strings.Cut(entry, ".")
		if !ok || table == "" || column == "" {
			return nil, fmt.Errorf("restricted column %q: want table.column", entry)
		}
		if byTable[table] == nil {
			byTable[table] = make(map[string]bool)
		}
		byTable[table][column] = true
	}
	return &Restricted{next: next, byTable: byTable}, nil
}

// Search implements Searcher. Tables sharing the same allowed field list are
// searched together so ranking within a group is preserved; the limit applies
// to the merged result.
func (r *Restricted) Search(ctx context.Context, query string, tables, fields []string, limit int) ([]Row, error) {
	var out []Row
	for _, group := range r.groupTables(tables, fields) {
		if len(group.fields) == 0 {
			continue
		}
		rows, err := r.next.Search(ctx, query, group.tables, group.fields, limit)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i] = r.scrub(out[i])
	}
	return out, nil
}

type tableGroup struct {
	tables []string
	fields []string
}

// groupTables buckets tables by their allowed field list, preserving the
// caller's table order.
func (r *Restricted) groupTables(tables, fields []string) []tableGroup {
	groups := make([]tableGroup, 0, 1)
	index := make(map[string]int)
	for _, table := range tables {
		allowed := r.allowedFields(table, fields)
		key := strings.Join(allowed, "\x00")
		if i, ok := index[key]; ok {
			groups[i].tables = append(groups[i].tables, table)
			continue
		}
		index[key] = len(groups)
		groups = append(groups, tableGroup{tables: []string{table}, fields: allowed})
	}
	return groups
}

func (r *Restricted) allowedFields(table string, fields []string) []string {
	denied := r.byTable[table]
	if len(denied) == 0 {
		return fields
	}
	allowed := make([]string, 0, len(fields))
	for _, f := range fields {
		if !denied[f] {
			allowed = append(allowed, f)
		}
	}
	return allowed
}

func (r *Restricted) scrub(row Row) Row {
	denied := r.byTable[row.Table]
	if len(denied) == 0 {
		return row
	}
	for col := range denied {
		delete(row.Values, col)
	}
	return row
}
