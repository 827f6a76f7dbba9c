package coalescer

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// SQLFetcher loads a batch with one query. The query must contain a single `IN (?)` placeholder
// that receives the keys, for instance `SELECT id, name FROM users WHERE id IN (?)`. Rows are
// scanned into V the way sqlx does it, so V is normally a struct with `db` tags.
type SQLFetcher[K comparable, V any] struct {
	db    *sqlx.DB
	query string
	idOf  func(V) K
}

func NewSQLFetcher[K comparable, V any](db *sqlx.DB, query string, idOf func(V) K) *SQLFetcher[K, V] {
	return &SQLFetcher[K, V]{
		db:    db,
		query: query,
		idOf:  idOf,
	}
}

func (f *SQLFetcher[K, V]) Fetch(ctx context.Context, keys []K) (map[K]V, error) {
	if len(keys) == 0 {
		return map[K]V{}, nil
	}

	// expand the IN clause for this batch and adapt it to the driver
	query, args, err := sqlx.In(f.query, keys)
	if err != nil {
		return nil, err
	}
	query = f.db.Rebind(query)

	var rows []V
	if err := f.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	values := make(map[K]V, len(rows))
	for _, row := range rows {
		values[f.idOf(row)] = row
	}

	return values, nil
}
