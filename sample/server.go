package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/julienschmidt/httprouter"
	gocoalescer "github.com/mspnp/go-coalescer"
	"github.com/rs/zerolog/log"
)

type User struct {
	ID   int    `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

func userID(u User) int {
	return u.ID
}

const schema = `CREATE TABLE IF NOT EXISTS users (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`

type server struct {
	users  gocoalescer.LoadManager[int, User]
	writes gocoalescer.TaskQueue
	db     *sqlx.DB // nil when users come from an upstream service
}

func (s *server) router() *httprouter.Router {
	router := httprouter.New()
	router.GET("/check", s.check)
	router.GET("/users", s.getUsers)
	router.GET("/users/:id", s.getUser)
	if s.db != nil {
		router.POST("/users", s.putUser)
	}
	return router
}

func (s *server) check(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	fmt.Fprint(w, "Check")
}

func (s *server) getUser(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := strconv.Atoi(ps.ByName("id"))
	if err != nil {
		http.Error(w, "the id must be an integer.", http.StatusBadRequest)
		return
	}
	user, err := s.users.Load(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// getUsers answers `/users?ids=1,2,3` with every user that exists, keyed by id.
func (s *server) getUsers(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var ids []int
	for _, raw := range strings.Split(r.URL.Query().Get("ids"), ",") {
		if raw == "" {
			continue
		}
		id, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "every id must be an integer.", http.StatusBadRequest)
			return
		}
		ids = append(ids, id)
	}
	users, err := s.users.LoadMany(r.Context(), ids)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// putUser hands the write to the task queue so sqlite only ever sees one writer.
func (s *server) putUser(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var user User
	if err := json.NewDecoder(r.Body).Decode(&user); err != nil {
		http.Error(w, "the body must be a user.", http.StatusBadRequest)
		return
	}
	waiter, err := s.writes.Push(func(ctx context.Context) error {
		_, err := s.db.NamedExecContext(ctx, `INSERT OR REPLACE INTO users (id, name) VALUES (:id, :name)`, user)
		return err
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	if _, err := waiter.Wait(r.Context()); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *server) fail(w http.ResponseWriter, err error) {
	var notFound gocoalescer.NotFoundError
	switch {
	case errors.As(err, &notFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, gocoalescer.BufferFullError):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		log.Err(err).Msg("request failed.")
		http.Error(w, "internal error.", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Err(err).Msg("could not write the response.")
	}
}
