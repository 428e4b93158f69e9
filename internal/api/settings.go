package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"starter/internal/auth"
	"starter/internal/middleware"
	"starter/internal/models"
	"starter/internal/service"
)

type settingsHandlers struct {
	responder
	svc *service.SettingsService
}

func (h *settingsHandlers) register(r *mux.Router) {
	read := auth.Perm(auth.ResSettings, auth.ActRead)

	r.Handle("/key/{key}", gate(read, h.byKey)).Methods(http.MethodGet)
	// права на запись проверяются в upsert: своя настройка доступна любому
	r.Handle("/key/{key}", gate("", h.upsert)).Methods(http.MethodPut)
	r.Handle("/category/{category}", gate(read, h.byCategory)).Methods(http.MethodGet)

	NewController[models.SettingsDTO](h.svc, auth.ResSettings, "Settings", h.responder).Register(r)
}

// userScope: при ?scope=global только глобальная настройка, иначе с перекрытием пользовательской.
func userScope(r *http.Request) *uint {
	if strings.EqualFold(r.URL.Query().Get("scope"), "global") {
		return nil
	}
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		return nil
	}
	id := p.UserID
	return &id
}

func (h *settingsHandlers) byKey(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.GetByKey(r.Context(), mux.Vars(r)["key"], userScope(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.json(w, http.StatusOK, st)
}

// upsert: ?scope=user пишет настройку текущего пользователя, иначе глобальную
// (нужно право Settings_Update).
func (h *settingsHandlers) upsert(w http.ResponseWriter, r *http.Request) {
	var in models.SettingsDTO
	if err := decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	p, _ := auth.PrincipalFrom(r.Context())
	var userID *uint
	if strings.EqualFold(r.URL.Query().Get("scope"), "user") {
		id := p.UserID
		userID = &id
	} else if !p.Has(auth.Perm(auth.ResSettings, auth.ActUpdate)) {
		models.WriteProblemAt(w, http.StatusForbidden, "Forbidden",
			"missing permission "+auth.Perm(auth.ResSettings, auth.ActUpdate), r.URL.Path, map[string]any{"reqid": middleware.GetRequestID(r)})
		return
	}
	st, err := h.svc.Upsert(r.Context(), actorFrom(r), mux.Vars(r)["key"], userID, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.json(w, http.StatusOK, st)
}

func (h *settingsHandlers) byCategory(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ByCategory(r.Context(), mux.Vars(r)["category"], userScope(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.json(w, http.StatusOK, items)
}
