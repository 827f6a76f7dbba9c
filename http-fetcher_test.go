package coalescer_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	gocoalescer "github.com/mspnp/go-coalescer"
	"github.com/stretchr/testify/assert"
)

func newUserServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		var users []user
		for _, raw := range r.URL.Query()["uids"] {
			id, err := strconv.Atoi(raw)
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if id < 100 {
				users = append(users, user{ID: id, Name: "user" + raw})
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(users)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPFetcher(t *testing.T) {
	ctx := context.Background()

	t.Run("one request carries every key", func(t *testing.T) {
		var calls int32
		srv := newUserServer(t, &calls)
		fetcher := gocoalescer.NewHTTPFetcher[int, user](srv.URL+"/api/user/", userID).
			WithParam("uids").
			WithClient(srv.Client())
		values, err := fetcher.Fetch(ctx, []int{1, 2, 500})
		assert.NoError(t, err)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
		assert.Len(t, values, 2)
		assert.Equal(t, "user2", values[2].Name)
	})

	t.Run("non-success status codes are errors", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()
		fetcher := gocoalescer.NewHTTPFetcher[int, user](srv.URL, userID)
		_, err := fetcher.Fetch(ctx, []int{1})
		var status gocoalescer.FetchStatusError
		assert.ErrorAs(t, err, &status)
		assert.Equal(t, http.StatusBadGateway, status.StatusCode)
		_ = err.Error() // improves code coverage
	})

	t.Run("malformed bodies are errors", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("not json"))
		}))
		defer srv.Close()
		fetcher := gocoalescer.NewHTTPFetcher[int, user](srv.URL, userID)
		_, err := fetcher.Fetch(ctx, []int{1})
		assert.Error(t, err)
	})

	t.Run("a load manager makes one call per window", func(t *testing.T) {
		var calls int32
		srv := newUserServer(t, &calls)
		fetcher := gocoalescer.NewHTTPFetcher[int, user](srv.URL, userID).WithParam("uids")
		mgr := gocoalescer.NewLoadManager[int, user](fetcher, nil).
			WithBatchFrequency(20 * time.Millisecond)
		err := mgr.Start(ctx)
		assert.NoError(t, err, "expecting no errors on startup")
		defer mgr.Stop()
		users, err := mgr.LoadMany(ctx, []int{3, 4, 5})
		assert.NoError(t, err)
		assert.Len(t, users, 3)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

}
