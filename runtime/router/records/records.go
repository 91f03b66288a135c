// Package records defines the record search port used by entity resolution.
// Backends search configured tables for rows whose fields match a free-text
// query; the resolver turns matching rows into scored entity candidates.
package records

import (
	"context"
	"errors"
	"fmt"
)

type (
	// Searcher finds rows matching a free-text query. Implementations search
	// the given fields of the given tables with case-insensitive substring
	// matching and return at most limit rows, exact matches first. Fields a
	// table does not have are skipped; an unknown table is an error.
	Searcher interface {
		Search(ctx context.Context, query string, tables, fields []string, limit int) ([]Row, error)
	}

	// Row is one matching record. Values holds the row's columns as returned
	// by the backend.
	Row struct {
		// Table is the table the row came from.
		Table string

		// Values holds the row's column values.
		Values map[string]any
	}
)

// ErrUnknownTable is returned when a search names a table the backend does
// not have.
var ErrUnknownTable = errors.New("unknown table")

// identifierColumns are probed in order when extracting a row identifier.
var identifierColumns = [...]string{"id", "uuid", "pk"}

// ID returns the row's identifier, probing the conventional identifier
// columns in order. It returns the empty string when none is present.
func (r Row) ID() string {
	for _, col := range identifierColumns {
		if v, ok := r.Values[col]; ok && v != nil {
			return stringify(v)
		}
	}
	return ""
}

// Display returns the row's value for the given display field, falling back
// to the identifier when the field is absent.
func (r Row) Display(field string) string {
	if v, ok := r.Values[field]; ok && v != nil {
		return stringify(v)
	}
	return r.ID()
}

// Clone returns a deep enough copy of the row for callers to mutate.
func (r Row) Clone() Row {
	vals := make(map[string]any, len(r.Values))
	for k, v := range r.Values {
		vals[k] = v
	}
	return Row{Table: r.Table, Values: vals}
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
