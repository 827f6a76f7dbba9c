package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	gocoalescer "github.com/mspnp/go-coalescer"
	"github.com/stretchr/testify/assert"
	_ "modernc.org/sqlite"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := sqlx.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("could not open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.MustExec(schema)
	db.MustExec(`INSERT INTO users (id, name) VALUES (1, 'ada'), (2, 'grace')`)

	srv := &server{db: db}
	fetcher := gocoalescer.NewSQLFetcher[int, User](db, `SELECT id, name FROM users WHERE id IN (?)`, userID)
	srv.users = gocoalescer.NewLoadManager[int, User](fetcher, nil).
		WithBatchFrequency(5 * time.Millisecond)
	srv.writes = gocoalescer.NewTaskQueue(10)
	assert.NoError(t, srv.users.Start(context.Background()))
	assert.NoError(t, srv.writes.Start(context.Background()))

	ts := httptest.NewServer(srv.router())
	t.Cleanup(func() {
		ts.Close()
		srv.writes.Stop()
		srv.users.Stop()
		db.Close()
	})
	return ts
}

func TestServer(t *testing.T) {
	ts := newTestServer(t)

	t.Run("check", func(t *testing.T) {
		res, err := http.Get(ts.URL + "/check")
		assert.NoError(t, err)
		defer res.Body.Close()
		assert.Equal(t, http.StatusOK, res.StatusCode)
	})

	t.Run("get a user", func(t *testing.T) {
		res, err := http.Get(ts.URL + "/users/2")
		assert.NoError(t, err)
		defer res.Body.Close()
		assert.Equal(t, http.StatusOK, res.StatusCode)
		var user User
		assert.NoError(t, json.NewDecoder(res.Body).Decode(&user))
		assert.Equal(t, User{ID: 2, Name: "grace"}, user)
	})

	t.Run("missing users are not found", func(t *testing.T) {
		res, err := http.Get(ts.URL + "/users/99")
		assert.NoError(t, err)
		defer res.Body.Close()
		assert.Equal(t, http.StatusNotFound, res.StatusCode)
	})

	t.Run("ids must be integers", func(t *testing.T) {
		res, err := http.Get(ts.URL + "/users/ada")
		assert.NoError(t, err)
		defer res.Body.Close()
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	})

	t.Run("get many users", func(t *testing.T) {
		res, err := http.Get(ts.URL + "/users?ids=1,2,3")
		assert.NoError(t, err)
		defer res.Body.Close()
		assert.Equal(t, http.StatusOK, res.StatusCode)
		var users map[string]User
		assert.NoError(t, json.NewDecoder(res.Body).Decode(&users))
		assert.Len(t, users, 2)
		assert.Equal(t, "ada", users["1"].Name)
	})

	t.Run("put then get a user", func(t *testing.T) {
		res, err := http.Post(ts.URL+"/users", "application/json", strings.NewReader(`{"id":3,"name":"linus"}`))
		assert.NoError(t, err)
		res.Body.Close()
		assert.Equal(t, http.StatusCreated, res.StatusCode)

		res, err = http.Get(ts.URL + "/users/3")
		assert.NoError(t, err)
		defer res.Body.Close()
		var user User
		assert.NoError(t, json.NewDecoder(res.Body).Decode(&user))
		assert.Equal(t, "linus", user.Name)
	})

}
