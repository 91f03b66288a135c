// Package mongo provides a records.Searcher backed by MongoDB collections.
// Each searchable table maps to a collection in the configured database and
// lookups run as case-insensitive substring matches across the requested
// fields.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/wayfind-labs/wayfind/runtime/router/records"
)

const (
	defaultOpTimeout = 5 * time.Second
	searcherName     = "records-mongo"

	// fetchFactor over-fetches partial matches so exact matches can be
	// ranked first before the limit is applied.
	fetchFactor = 4
)

type (
	// Options configures the Mongo record searcher.
	Options struct {
		// Client is a connected MongoDB client. Required.
		Client *mongodriver.Client

		// Database holds the record collections. Required.
		Database string

		// Tables lists the collections exposed to entity resolution.
		// Lookups against any other table fail with
		// records.ErrUnknownTable. Required.
		Tables []string

		// Timeout bounds each search. Defaults to 5s.
		Timeout time.Duration
	}

	// Searcher implements records.Searcher on top of MongoDB.
	Searcher struct {
		client  *mongodriver.Client
		db      *mongodriver.Database
		tables  map[string]struct{}
		timeout time.Duration
	}
)

// New returns a Searcher backed by MongoDB.
func New(opts Options) (*Searcher, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	if len(opts.Tables) == 0 {
		return nil, errors.New("at least one table is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	tables := make(map[string]struct{}, len(opts.Tables))
	for _, t := range opts.Tables {
		tables[t] = struct{}{}
	}
	return &Searcher{
		client:  opts.Client,
		db:      opts.Client.Database(opts.Database),
		tables:  tables,
		timeout: timeout,
	}, nil
}

// Name implements health.Pinger.
func (s *Searcher) Name() string { return searcherName }

// Ping implements health.Pinger.
func (s *Searcher) Ping(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.client.Ping(ctx, readpref.Primary())
}

// Search implements records.Searcher. Results place rows whose first search
// field equals the query ahead of substring matches, mirroring the in-memory
// searcher.
func (s *Searcher) Search(ctx context.Context, query string, tables, fields []string, limit int) ([]records.Row, error) {
	if query == "" || len(fields) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	fetch := int64(0)
	if limit > 0 {
		fetch = int64(limit * fetchFactor)
	}

	var exact, partial []records.Row
	for _, table := range tables {
		if _, ok := s.tables[table]; !ok {
			return nil, fmt.Errorf("%w: %s", records.ErrUnknownTable, table)
		}
		rows, err := s.searchTable(ctx, table, query, fields, fetch)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			if strings.EqualFold(fmt.Sprint(row.Values[fields[0]]), query) {
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

func (s *Searcher) searchTable(ctx context.Context, table, query string, fields []string, fetch int64) ([]records.Row, error) {
	pattern := regexp.QuoteMeta(query)
	ors := make(bson.A, 0, len(fields))
	for _, f := range fields {
		ors = append(ors, bson.M{f: bson.M{"$regex": pattern, "$options": "i"}})
	}
	findOpts := options.Find()
	if fetch > 0 {
		findOpts.SetLimit(fetch)
	}
	cur, err := s.db.Collection(table).Find(ctx, bson.M{"$or": ors}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("mongodb search %s: %w", table, err)
	}
	defer cur.Close(ctx)

	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongodb decode %s: %w", table, err)
	}
	rows := make([]records.Row, 0, len(docs))
	for _, doc := range docs {
		rows = append(rows, records.Row{Table: table, Values: toValues(doc)})
	}
	return rows, nil
}

// toValues converts a BSON document into a plain value map, exposing _id as
// id when the document carries no explicit id field.
func toValues(doc bson.M) map[string]any {
	values := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == "_id" {
			if _, ok := doc["id"]; !ok {
				values["id"] = idString(v)
			}
			continue
		}
		values[k] = v
	}
	return values
}

func idString(v any) any {
	switch id := v.(type) {
	case string:
		return id
	case bson.ObjectID:
		return id.Hex()
	default:
		return fmt.Sprint(id)
	}
}
