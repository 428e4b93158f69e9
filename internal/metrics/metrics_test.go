package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestInstrumentUsesRouteTemplate(t *testing.T) {
	m := New()
	r := mux.NewRouter()
	r.Use(m.Instrument)
	r.HandleFunc("/api/users/{id:[0-9]+}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"1", "2", "3"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/users/"+id, nil))
	}

	body := scrape(t, m)
	assert.Contains(t, body, `http_requests_total{method="GET",route="/api/users/{id:[0-9]+}",status="404"} 3`)
	assert.NotContains(t, body, `route="/api/users/1"`)
}

func TestHandlerExposesAuthEvents(t *testing.T) {
	m := New()
	m.AuthEvent("login", true)
	m.AuthEvent("login", false)
	m.AuthEvent("login", false)

	body := scrape(t, m)
	assert.Contains(t, body, `auth_events_total{event="login",outcome="fail"} 2`)
	assert.Contains(t, body, `auth_events_total{event="login",outcome="ok"} 1`)
	assert.Contains(t, body, "go_goroutines")
}
