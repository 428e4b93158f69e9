package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"starter/internal/auth"
	"starter/internal/metrics"
	"starter/internal/middleware"
	"starter/internal/models"
	"starter/internal/service"
)

// Deps: сервисы и middleware, из которых собирается /api.
type Deps struct {
	Users         *service.UserService
	Roles         *service.RoleService
	Permissions   *service.PermissionService
	Settings      *service.SettingsService
	Notifications *service.NotificationService
	Audit         *service.AuditService
	Auth          *service.AuthService

	Authn   *auth.Middleware
	Limiter *middleware.RateLimiter // только для /api/auth, nil: без лимита
	Metrics *metrics.Metrics        // nil: без счётчиков событий входа

	Production bool
}

// Register вешает все маршруты API на r под префиксом /api.
func Register(r *mux.Router, d Deps) {
	rs := responder{production: d.Production}
	api := r.PathPrefix("/api").Subrouter()
	api.Use(d.Authn.Authenticate, UnitOfWork)
	api.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		models.WriteProblemAt(w, http.StatusNotFound, "Not Found", "no such endpoint", req.URL.Path,
			map[string]any{"reqid": middleware.GetRequestID(req)})
	})

	a := &authHandlers{responder: rs, svc: d.Auth, metrics: d.Metrics}
	authR := api.PathPrefix("/auth").Subrouter()
	if d.Limiter != nil {
		authR.Use(d.Limiter.Middleware)
	}
	a.register(authR)

	users := &userHandlers{responder: rs, svc: d.Users}
	users.register(api.PathPrefix("/users").Subrouter())

	roles := &roleHandlers{responder: rs, svc: d.Roles}
	roles.register(api.PathPrefix("/roles").Subrouter())

	perms := &permissionHandlers{responder: rs, svc: d.Permissions}
	perms.register(api.PathPrefix("/permissions").Subrouter())

	settings := &settingsHandlers{responder: rs, svc: d.Settings}
	settings.register(api.PathPrefix("/settings").Subrouter())

	notes := &notificationHandlers{responder: rs, svc: d.Notifications}
	notes.register(api.PathPrefix("/notifications").Subrouter())

	NewController[models.AuditLogDTO](d.Audit, auth.ResAuditLogs, "AuditLog", rs, ReadOnly()).
		Register(api.PathPrefix("/auditlogs").Subrouter())
}

// gate: право на маршрут; пустое perm означает "любой вошедший пользователь".
func gate(perm string, h http.HandlerFunc) http.Handler {
	if perm == "" {
		return auth.RequireAuth(h)
	}
	return auth.Require(perm)(h)
}
