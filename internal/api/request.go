package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"starter/internal/auth"
	"starter/internal/logs"
	"starter/internal/middleware"
	"starter/internal/repo"
	"starter/internal/service"
)

// decode читает JSON-тело; пустое или битое тело: ошибка валидации.
func decode(r *http.Request, v any) error {
	if r.Body == nil {
		return fmt.Errorf("%w: request body is required", service.ErrValidation)
	}
	err := json.NewDecoder(r.Body).Decode(v)
	var tooLarge *http.MaxBytesError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &tooLarge):
		return err
	case errors.Is(err, io.EOF):
		return fmt.Errorf("%w: request body is required", service.ErrValidation)
	default:
		return fmt.Errorf("%w: invalid JSON body: %v", service.ErrValidation, err)
	}
}

func pathID(r *http.Request, name string) (uint, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", service.ErrValidation, name, raw)
	}
	return uint(id), nil
}

// pageRequest: pageNumber, pageSize, searchTerm, sortBy, sortDirection из query.
// Нечисловые значения трактуются как отсутствующие.
func pageRequest(r *http.Request) repo.PageRequest {
	q := r.URL.Query()
	num, _ := strconv.Atoi(q.Get("pageNumber"))
	size, _ := strconv.Atoi(q.Get("pageSize"))
	return repo.PageRequest{
		PageNumber:    num,
		PageSize:      size,
		SearchTerm:    q.Get("searchTerm"),
		SortBy:        q.Get("sortBy"),
		SortDirection: q.Get("sortDirection"),
	}.Normalize()
}

func queryBool(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(strings.TrimSpace(r.URL.Query().Get(name)))
	return v
}

// actorFrom собирает Actor из токена и данных клиента.
func actorFrom(r *http.Request) service.Actor {
	a := service.Actor{
		IP:        middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
		RequestID: middleware.GetRequestID(r),
	}
	if p, ok := auth.PrincipalFrom(r.Context()); ok {
		id := p.UserID
		a.UserID, a.UserName = &id, p.UserName
	}
	return a
}

// UnitOfWork даёт каждому запросу свой набор ожидающих изменений.
// Незафиксированные изменения после обработчика отбрасываются.
func UnitOfWork(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := repo.NewUnit(r.Context())
		next.ServeHTTP(w, r.WithContext(ctx))
		if n := repo.UnitFrom(ctx).Pending(); n > 0 {
			logs.WithRequest(middleware.GetRequestID(r), actorFrom(r).ID()).
				Warnf("%s %s: %d uncommitted changes discarded", r.Method, r.URL.Path, n)
		}
	})
}
