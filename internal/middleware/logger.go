package middleware

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"starter/internal/logs"
)

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) { w.status = code; w.ResponseWriter.WriteHeader(code) }
func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// quiet: служебные пути, которые пишем только на debug.
var quiet = map[string]bool{"/healthz": true, "/readyz": true, "/metrics": true}

// LoggerMW пишет строку access-лога: 5xx на error, 4xx на warning.
func LoggerMW(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(sw, r)
		if sw.status == 0 {
			sw.status = http.StatusOK
		}

		e := logs.Logger.WithFields(logrus.Fields{
			"reqid":  GetRequestID(r),
			"method": r.Method,
			"uri":    r.RequestURI,
			"status": sw.status,
			"bytes":  sw.bytes,
			"dur":    time.Since(start).String(),
			"ip":     ClientIP(r),
			"ua":     r.UserAgent(),
		})
		switch {
		case sw.status >= http.StatusInternalServerError:
			e.Error("request failed")
		case sw.status >= http.StatusBadRequest:
			e.Warn("request rejected")
		case quiet[r.URL.Path]:
			e.Debug("request")
		default:
			e.Info("request")
		}
	})
}
