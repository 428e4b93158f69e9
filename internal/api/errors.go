package api

import (
	"context"
	"errors"
	"net/http"

	"starter/internal/logs"
	"starter/internal/middleware"
	"starter/internal/models"
	"starter/internal/repo"
	"starter/internal/service"
)

const unexpectedError = "An unexpected error occurred"

// responder пишет JSON-ответы и переводит ошибки сервисов в problem+json.
type responder struct {
	production bool
}

// status: HTTP-статус и заголовок problem для ошибки.
func status(err error) (int, string) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, "Request Entity Too Large"
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrInvalidOperation),
		errors.Is(err, repo.ErrDuplicate),
		errors.Is(err, repo.ErrUnknownField):
		return http.StatusBadRequest, "Bad Request"
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, service.ErrNotFound), errors.Is(err, repo.ErrNotFound):
		return http.StatusNotFound, "Not Found"
	case errors.Is(err, repo.ErrConcurrency):
		return http.StatusConflict, "Conflict"
	case errors.Is(err, service.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout, "Request Timeout"
	case errors.Is(err, service.ErrNotImplemented):
		return http.StatusNotImplemented, "Not Implemented"
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}

func (rs responder) fail(w http.ResponseWriter, r *http.Request, err error) {
	code, title := status(err)
	reqid := middleware.GetRequestID(r)
	extra := map[string]any{"reqid": reqid}
	detail := err.Error()

	log := logs.WithRequest(reqid, actorFrom(r).ID())
	switch {
	case code >= http.StatusInternalServerError && code != http.StatusNotImplemented:
		log.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
		detail = unexpectedError
		if !rs.production {
			extra["error"] = err.Error()
		}
	default:
		log.Debugf("%s %s -> %d: %v", r.Method, r.URL.Path, code, err)
	}
	if code == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	}
	models.WriteProblemAt(w, code, title, detail, r.URL.Path, extra)
}

func (responder) json(w http.ResponseWriter, code int, v any) {
	models.WriteJSON(w, code, v)
}
