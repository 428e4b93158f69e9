package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"starter/internal/logs"
)

// Pinger: зависимость, без которой сервис не готов принимать запросы.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RegisterRoutes: базовый liveness.
func RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", liveness).Methods(http.MethodGet)
}

// RegisterRoutesWithChecks добавляет readiness: готов, только если прошли все проверки.
func RegisterRoutesWithChecks(r *mux.Router, checks map[string]Pinger) {
	RegisterRoutes(r)
	r.HandleFunc("/readyz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		for name, p := range checks {
			if p == nil {
				continue
			}
			if err := p.Ping(ctx); err != nil {
				logs.Logger.Warnf("readyz: %s unavailable: %v", name, err)
				http.Error(w, name+" unreachable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)
}

func liveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}
