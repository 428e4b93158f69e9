package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starter/internal/middleware"
	"starter/internal/models"
	"starter/internal/repo"
	"starter/internal/service"
)

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: name is required", service.ErrValidation), http.StatusBadRequest},
		{service.ErrInvalidOperation, http.StatusBadRequest},
		{fmt.Errorf("insert: %w", repo.ErrDuplicate), http.StatusBadRequest},
		{repo.ErrUnknownField, http.StatusBadRequest},
		{service.ErrUnauthorized, http.StatusUnauthorized},
		{service.ErrNotFound, http.StatusNotFound},
		{repo.ErrNotFound, http.StatusNotFound},
		{repo.ErrConcurrency, http.StatusConflict},
		{service.ErrTimeout, http.StatusRequestTimeout},
		{fmt.Errorf("query: %w", context.DeadlineExceeded), http.StatusRequestTimeout},
		{service.ErrNotImplemented, http.StatusNotImplemented},
		{&http.MaxBytesError{Limit: 10}, http.StatusRequestEntityTooLarge},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		got, _ := status(c.err)
		assert.Equal(t, c.want, got, c.err.Error())
	}
}

func problemFor(t *testing.T, rs responder, err error) (*httptest.ResponseRecorder, models.Problem) {
	t.Helper()
	h := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs.fail(w, r, err)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/things/1", nil))
	var p models.Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return rec, p
}

func TestUnexpectedErrorDetail(t *testing.T) {
	boom := errors.New("pq: relation users does not exist")

	rec, p := problemFor(t, responder{production: true}, boom)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, unexpectedError, p.Detail)
	assert.NotContains(t, rec.Body.String(), "relation users")
	assert.Contains(t, rec.Body.String(), `"reqid"`)

	rec, p = problemFor(t, responder{}, boom)
	assert.Equal(t, unexpectedError, p.Detail)
	assert.Contains(t, rec.Body.String(), "relation users")

	rec, p = problemFor(t, responder{production: true}, fmt.Errorf("%w: email is required", service.ErrValidation))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, p.Detail, "email is required")
	assert.Equal(t, "/api/things/1", p.Instance)

	rec, _ = problemFor(t, responder{}, service.ErrUnauthorized)
	assert.Equal(t, `Bearer realm="api"`, rec.Header().Get("WWW-Authenticate"))
}

func TestBodyLimit(t *testing.T) {
	a := newTestAPI(t)
	wrapped := httptest.NewServer(middleware.MaxBodyBytes(256)(a.srv.Config.Handler))
	t.Cleanup(wrapped.Close)

	body := `{"userNameOrEmail":"` + strings.Repeat("x", 1024) + `","password":"p"}`
	resp, err := http.Post(wrapped.URL+"/api/auth/login", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestUnknownEndpoint(t *testing.T) {
	a := newTestAPI(t)
	resp := a.do(http.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))
}
