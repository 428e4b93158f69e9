package middleware

import (
	"net/http"
	"runtime/debug"

	"starter/internal/logs"
	"starter/internal/models"
)

// Recoverer перехватывает панику в обработчике, пишет лог со стеком
// и возвращает 500 в формате application/problem+json.
// http.ErrAbortHandler пробрасывается дальше: net/http сам оборвёт соединение.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			reqid := GetRequestID(r)
			logs.WithRequest(reqid, 0).WithField("uri", r.RequestURI).
				Errorf("panic in %s handler: %v\n%s", r.Method, rec, debug.Stack())
			models.WriteProblemAt(w, http.StatusInternalServerError,
				"Internal Server Error",
				"An unexpected error occurred", r.URL.Path, map[string]any{"reqid": reqid})
		}()
		next.ServeHTTP(w, r)
	})
}
