package coalescer_test

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	gocoalescer "github.com/mspnp/go-coalescer"
	"github.com/stretchr/testify/assert"
	_ "modernc.org/sqlite"
)

func newUserDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("could not open sqlite: %v", err)
	}
	// every connection to :memory: is a new database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	db.MustExec(`CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`)
	db.MustExec(`INSERT INTO users (id, name) VALUES (1, 'ada'), (2, 'grace'), (3, 'linus')`)
	return db
}

func TestSQLFetcher(t *testing.T) {
	ctx := context.Background()

	t.Run("one query returns every row of the batch", func(t *testing.T) {
		db := newUserDB(t)
		fetcher := gocoalescer.NewSQLFetcher[int, user](db, `SELECT id, name FROM users WHERE id IN (?)`, userID)
		values, err := fetcher.Fetch(ctx, []int{1, 3, 42})
		assert.NoError(t, err)
		assert.Len(t, values, 2)
		assert.Equal(t, "ada", values[1].Name)
		assert.Equal(t, "linus", values[3].Name)
	})

	t.Run("an empty batch does not query", func(t *testing.T) {
		fetcher := gocoalescer.NewSQLFetcher[int, user](nil, `SELECT id, name FROM users WHERE id IN (?)`, userID)
		values, err := fetcher.Fetch(ctx, nil)
		assert.NoError(t, err)
		assert.Empty(t, values)
	})

	t.Run("query errors are returned", func(t *testing.T) {
		db := newUserDB(t)
		fetcher := gocoalescer.NewSQLFetcher[int, user](db, `SELECT id, name FROM missing WHERE id IN (?)`, userID)
		_, err := fetcher.Fetch(ctx, []int{1})
		assert.Error(t, err)
	})

	t.Run("a load manager distributes rows into the store", func(t *testing.T) {
		db := newUserDB(t)
		fetcher := gocoalescer.NewSQLFetcher[int, user](db, `SELECT id, name FROM users WHERE id IN (?)`, userID)
		store := gocoalescer.NewMemoryStore[int, user]()
		mgr := gocoalescer.NewLoadManager[int, user](fetcher, store)
		err := mgr.Start(ctx)
		assert.NoError(t, err, "expecting no errors on startup")
		defer mgr.Stop()
		users, err := mgr.LoadMany(ctx, []int{1, 2})
		assert.NoError(t, err)
		assert.Len(t, users, 2)
		assert.Equal(t, 2, store.Len())
	})

}
